package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ReindexJob is a persisted background reindex run.
type ReindexJob struct {
	ID          surrealmodels.RecordID `json:"id"`
	RequestedBy string                 `json:"requested_by"`
	Scope       string                 `json:"scope"` // owner being reindexed, "" for all owners
	Reenrich    bool                   `json:"reenrich"`
	Status      string                 `json:"status"`
	Total       int                    `json:"total"`
	Progress    int                    `json:"progress"`
	Scanned     int                    `json:"scanned"`
	Reindexed   int                    `json:"reindexed"`
	Skipped     int                    `json:"skipped"`
	Failed      int                    `json:"failed"`
	Error       *string                `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}
