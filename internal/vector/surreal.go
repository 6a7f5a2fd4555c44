package vector

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const surrealVectorTable = "item_vector"

const surrealSchemaSQL = `
    DEFINE TABLE IF NOT EXISTS item_vector SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON item_vector TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON item_vector TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS updated_at ON item_vector TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS item_vector_owner ON item_vector FIELDS owner;
    DEFINE INDEX IF NOT EXISTS item_vector_embedding ON item_vector FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`

// SurrealIndex keeps embeddings in a SurrealDB table with an HNSW index.
type SurrealIndex struct {
	client *db.Client
	dim    int
}

var _ Index = (*SurrealIndex)(nil)

// NewSurrealIndex defines the vector table for the given dimension.
func NewSurrealIndex(ctx context.Context, client *db.Client, dim int) (*SurrealIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("surreal index: dimension must be positive")
	}
	if _, err := surrealdb.Query[any](ctx, client.DB(), fmt.Sprintf(surrealSchemaSQL, dim), nil); err != nil {
		return nil, fmt.Errorf("init vector schema: %w", err)
	}
	return &SurrealIndex{client: client, dim: dim}, nil
}

func (s *SurrealIndex) Name() string { return "surrealdb" }

func (s *SurrealIndex) Upsert(ctx context.Context, records ...Record) error {
	const op = "upsert"
	if err := validateRecords(op, s.dim, records); err != nil {
		return err
	}
	for _, r := range records {
		_, err := surrealdb.Query[any](ctx, s.client.DB(), `
			UPSERT type::record("item_vector", $id) SET
				owner = $owner,
				embedding = $embedding,
				updated_at = time::now()
		`, map[string]any{"id": r.ID, "owner": r.Owner, "embedding": r.Vector})
		if err != nil {
			return classifyCallError(op, fmt.Sprintf("upsert %s", r.ID), err)
		}
	}
	return nil
}

type surrealHit struct {
	ID       surrealmodels.RecordID `json:"id"`
	Distance float64                `json:"distance"`
}

func (s *SurrealIndex) Query(ctx context.Context, vec []float32, filter Filter, k int) ([]Match, error) {
	const op = "query"
	if err := validateQuery(op, s.dim, vec, filter); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	// The owner condition is applied after the KNN scan; over-fetch to compensate.
	sql := fmt.Sprintf(`
		SELECT id, vector::distance::knn() AS distance FROM item_vector
		WHERE embedding <|%d,40|> $emb AND owner = $owner
		ORDER BY distance
	`, k*4)

	results, err := surrealdb.Query[[]surrealHit](ctx, s.client.DB(), sql, map[string]any{
		"emb":   vec,
		"owner": filter.Owner,
	})
	if err != nil {
		return nil, classifyCallError(op, "knn query", err)
	}

	out := []Match{}
	if results != nil && len(*results) > 0 {
		for _, h := range (*results)[0].Result {
			id, err := models.RecordIDString(h.ID)
			if err != nil {
				return nil, opErr(op, OperationErrorDecodeFailed, "decode record id", err)
			}
			// Cosine distance to similarity.
			out = append(out, Match{ID: id, Score: 1 - h.Distance})
		}
	}
	sortMatches(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *SurrealIndex) Delete(ctx context.Context, ids ...string) error {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	recordIDs := make([]surrealmodels.RecordID, len(ids))
	for i, id := range ids {
		recordIDs[i] = surrealmodels.NewRecordID(surrealVectorTable, id)
	}
	if _, err := surrealdb.Query[any](ctx, s.client.DB(), `DELETE item_vector WHERE id IN $ids`, map[string]any{"ids": recordIDs}); err != nil {
		return classifyCallError("delete", "delete vectors", err)
	}
	return nil
}
