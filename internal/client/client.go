// Package client provides an HTTP client for the MindBase server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/mindbase/internal/models"
)

// Client talks to the MindBase REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses MINDBASE_SERVER_URL or defaults to localhost:8585.
// The bearer token comes from MINDBASE_TOKEN; the timeout from
// MINDBASE_CLIENT_TIMEOUT (default 2m, chat answers can be slow).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("MINDBASE_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8585"
	}

	timeout := 2 * time.Minute
	if t := os.Getenv("MINDBASE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   os.Getenv("MINDBASE_TOKEN"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithToken returns a copy of c that sends token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("server error (%s): %s", e.Code, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends a JSON request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) send(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var env models.ErrorEnvelope
		if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// Items
// =============================================================================

// SaveInput is content to save.
type SaveInput struct {
	Content  string             `json:"content"`
	Notes    string             `json:"notes,omitempty"`
	Type     models.ContentType `json:"content_type,omitempty"`
	Platform models.Platform    `json:"source_platform,omitempty"`
}

// Save ingests text or a URL.
func (c *Client) Save(ctx context.Context, input SaveInput) (*models.SavedItem, error) {
	var item models.SavedItem
	if err := c.do(ctx, http.MethodPost, "/api/v1/items", input, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UploadImage uploads an image file as multipart form data.
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte, notes string) (*models.SavedItem, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(filename)))
	hdr.Set("Content-Type", http.DetectContentType(data))
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	if notes != "" {
		if err := mw.WriteField("notes", notes); err != nil {
			return nil, fmt.Errorf("write notes: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/items/image", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var item models.SavedItem
	if err := c.send(req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListOptions filters a listing. Zero values are not sent.
type ListOptions struct {
	Limit    int
	Offset   int
	Category string
	Platform string
	Type     string
	Starred  *bool
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if o.Category != "" {
		q.Set("category", o.Category)
	}
	if o.Platform != "" {
		q.Set("platform", o.Platform)
	}
	if o.Type != "" {
		q.Set("type", o.Type)
	}
	if o.Starred != nil {
		q.Set("starred", strconv.FormatBool(*o.Starred))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// List returns one page of items, newest first.
func (c *Client) List(ctx context.Context, opts ListOptions) (*models.ItemPage, error) {
	var page models.ItemPage
	if err := c.do(ctx, http.MethodGet, "/api/v1/items"+opts.query(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches one item.
func (c *Client) Get(ctx context.Context, id string) (*models.SavedItem, error) {
	var item models.SavedItem
	if err := c.do(ctx, http.MethodGet, "/api/v1/items/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes an item.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/items/"+url.PathEscape(id), nil, nil)
}

// Star toggles an item's starred flag and returns the updated item.
func (c *Client) Star(ctx context.Context, id string) (*models.SavedItem, error) {
	var item models.SavedItem
	if err := c.do(ctx, http.MethodPost, "/api/v1/items/"+url.PathEscape(id)+"/star", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// =============================================================================
// Search and categories
// =============================================================================

// SearchOptions configures a search.
type SearchOptions struct {
	Query      string   `json:"query"`
	Limit      int      `json:"limit,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Platforms  []string `json:"platforms,omitempty"`
}

// SearchResult is a ranked result set. Mode is "semantic" or "keyword".
type SearchResult struct {
	Items []models.SavedItem `json:"items"`
	Mode  string             `json:"mode"`
}

// Search ranks items by relevance to the query.
func (c *Client) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	var res SearchResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/search", opts, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Categories lists the caller's categories, most used first.
func (c *Client) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	var res struct {
		Categories []models.CategoryCount `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/categories", nil, &res); err != nil {
		return nil, err
	}
	return res.Categories, nil
}

// =============================================================================
// Chat
// =============================================================================

// ChatResult is an answer and the items used to ground it.
type ChatResult struct {
	Answer  string             `json:"answer"`
	Sources []models.SavedItem `json:"sources"`
}

type chatRequest struct {
	Message string            `json:"message"`
	History []models.ChatTurn `json:"history,omitempty"`
}

// Chat asks a question grounded in saved items.
func (c *Client) Chat(ctx context.Context, message string, history []models.ChatTurn) (*ChatResult, error) {
	var res ChatResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat", chatRequest{Message: message, History: history}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// Admin
// =============================================================================

// ReindexOptions selects what a reindex covers.
type ReindexOptions struct {
	// All reindexes every owner's items. Requires admin access.
	All      bool `json:"all,omitempty"`
	Reenrich bool `json:"reenrich,omitempty"`
}

// ReindexResult counts what a reindex did.
type ReindexResult struct {
	Scanned   int      `json:"scanned"`
	Reindexed int      `json:"reindexed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Job is a background reindex.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	RequestedBy string         `json:"requested_by"`
	Progress    int            `json:"progress"`
	Total       int            `json:"total"`
	Result      *ReindexResult `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Done reports whether the job has finished.
func (j Job) Done() bool {
	return j.Status == "completed" || j.Status == "failed"
}

// StartReindex starts a background reindex job.
func (c *Client) StartReindex(ctx context.Context, opts ReindexOptions) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/reindex", opts, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Reindex runs a reindex and waits for the result in the same request.
func (c *Client) Reindex(ctx context.Context, opts ReindexOptions) (*ReindexResult, error) {
	var res ReindexResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/reindex?async=false", opts, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListJobs returns visible jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var res struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/jobs", nil, &res); err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

// GetJob fetches a job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Stats returns the caller's item count and server metrics.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks that the server and its store are up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
