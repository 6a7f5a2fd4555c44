package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	payloadOwnerKey   = "owner"
	payloadItemIDKey  = "item_id"
	maxErrorBodyBytes = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("6a1f3c52-8e0b-4d8e-9a47-3f2b6c1d9e70")

// QdrantConfig configures the Qdrant REST adapter.
type QdrantConfig struct {
	URL        string
	Collection string
	APIKey     string
	Dimension  int
	Timeout    time.Duration
}

// QdrantIndex talks to Qdrant's REST API.
type QdrantIndex struct {
	cfg     QdrantConfig
	baseURL string
	http    *http.Client
}

var _ Index = (*QdrantIndex)(nil)

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// NewQdrantIndex checks the server and creates the collection when missing.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig) (*QdrantIndex, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Collection) == "" {
		return nil, opErr("bootstrap", OperationErrorValidation, "qdrant url and collection are required", nil)
	}
	if cfg.Dimension <= 0 {
		return nil, opErr("bootstrap", OperationErrorValidation, "qdrant dimension must be positive", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	q := &QdrantIndex{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	slog.Info("qdrant vector index ready", "url", q.baseURL, "collection", cfg.Collection, "dimension", cfg.Dimension)
	return q, nil
}

func (q *QdrantIndex) Name() string { return "qdrant" }

func (q *QdrantIndex) Upsert(ctx context.Context, records ...Record) error {
	const op = "upsert"
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(op, q.cfg.Dimension, records); err != nil {
		return err
	}

	points := make([]map[string]any, 0, len(records))
	for _, r := range records {
		payload := make(map[string]any, len(r.Payload)+2)
		for k, v := range r.Payload {
			payload[k] = v
		}
		payload[payloadOwnerKey] = r.Owner
		payload[payloadItemIDKey] = r.ID
		points = append(points, map[string]any{
			"id":      pointID(r.ID),
			"vector":  r.Vector,
			"payload": payload,
		})
	}
	return q.doJSON(ctx, op, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (q *QdrantIndex) Query(ctx context.Context, vec []float32, filter Filter, k int) ([]Match, error) {
	const op = "query"
	if err := validateQuery(op, q.cfg.Dimension, vec, filter); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	req := map[string]any{
		"vector":       vec,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": payloadOwnerKey, "match": map[string]any{"value": filter.Owner}},
			},
		},
	}
	var raw []qdrantSearchResultItem
	if err := q.doJSON(ctx, op, http.MethodPost, q.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(raw))
	for _, item := range raw {
		id, _ := item.Payload[payloadItemIDKey].(string)
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		out = append(out, Match{ID: id, Score: item.Score})
	}
	sortMatches(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, ids ...string) error {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}
	return q.doJSON(ctx, "delete", http.MethodPost, q.collectionPath("/points/delete?wait=true"), map[string]any{"points": points}, nil)
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	const op = "bootstrap"

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := q.doJSON(ctx, op, http.MethodGet, q.collectionPath(""), nil, &info)
	var oe *OperationError
	if errors.As(err, &oe) && oe.StatusCode == http.StatusNotFound {
		slog.Info("creating qdrant collection", "collection", q.cfg.Collection, "dimension", q.cfg.Dimension)
		create := map[string]any{
			"vectors": map[string]any{"size": q.cfg.Dimension, "distance": "Cosine"},
		}
		if err := q.doJSON(ctx, op, http.MethodPut, q.collectionPath(""), create, nil); err != nil {
			return err
		}
		index := map[string]any{"field_name": payloadOwnerKey, "field_schema": "keyword"}
		return q.doJSON(ctx, op, http.MethodPut, q.collectionPath("/index?wait=true"), index, nil)
	}
	if err != nil {
		return err
	}

	vectors := info.Config.Params.Vectors
	if vectors.Size != 0 && vectors.Size != q.cfg.Dimension {
		return opErr(op, OperationErrorValidation, fmt.Sprintf(
			"qdrant collection %q vector size mismatch: expected=%d actual=%d",
			q.cfg.Collection, q.cfg.Dimension, vectors.Size), nil)
	}
	if vectors.Distance != "" && !strings.EqualFold(vectors.Distance, "cosine") {
		return opErr(op, OperationErrorValidation, fmt.Sprintf(
			"qdrant collection %q uses %s distance, cosine required", q.cfg.Collection, vectors.Distance), nil)
	}
	return nil
}

func (q *QdrantIndex) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.http.Do(req)
	if err != nil {
		return classifyCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(envelope.Status); msg != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", s)
	}

	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

// pointID maps an item id onto the UUID space Qdrant requires.
func pointID(itemID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(itemID)).String()
}

func (q *QdrantIndex) collectionPath(suffix string) string {
	return "/collections/" + q.cfg.Collection + suffix
}
