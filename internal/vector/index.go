// Package vector stores item embeddings and answers nearest-neighbour queries.
//
// All implementations score by cosine similarity (higher is closer) and return
// matches sorted by score descending, then id ascending.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Record is one embedding keyed by item id.
type Record struct {
	ID      string
	Owner   string
	Vector  []float32
	Payload map[string]string
}

// Filter restricts a query. Owner is required.
type Filter struct {
	Owner string
}

// Match is a query hit.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Index is the vector capability used by ingestion, retrieval and reindex.
type Index interface {
	Upsert(ctx context.Context, records ...Record) error
	Query(ctx context.Context, vector []float32, filter Filter, k int) ([]Match, error)
	Delete(ctx context.Context, ids ...string) error
	Name() string
}

func sortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Score == m[j].Score {
			return m[i].ID < m[j].ID
		}
		return m[i].Score > m[j].Score
	})
}

func validateRecords(op string, dim int, records []Record) error {
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return opErr(op, OperationErrorValidation, "record id is required", nil)
		}
		if strings.TrimSpace(r.Owner) == "" {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("record %q has no owner", r.ID), nil)
		}
		if err := validateVector(op, dim, r.Vector); err != nil {
			return err
		}
	}
	return nil
}

func validateQuery(op string, dim int, vec []float32, filter Filter) error {
	if strings.TrimSpace(filter.Owner) == "" {
		return opErr(op, OperationErrorUnsupportedFilter, "owner filter is required", nil)
	}
	return validateVector(op, dim, vec)
}

func validateVector(op string, dim int, vec []float32) error {
	if len(vec) == 0 {
		return opErr(op, OperationErrorValidation, "vector is empty", nil)
	}
	if dim > 0 && len(vec) != dim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("vector dimension mismatch: expected=%d got=%d", dim, len(vec)), nil)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
