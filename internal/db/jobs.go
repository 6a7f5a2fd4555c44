package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/mindbase/internal/models"
)

// JobCounts are the outcome counters of a reindex job.
type JobCounts struct {
	Scanned   int
	Reindexed int
	Skipped   int
	Failed    int
}

// CreateReindexJob persists a new pending job.
func (c *Client) CreateReindexJob(ctx context.Context, id, requestedBy, scope string, reenrich bool, total int) error {
	_, err := queryRows[models.ReindexJob](ctx, c, `
		CREATE type::record("reindex_job", $id) CONTENT {
			requested_by: $requested_by,
			scope: $scope,
			reenrich: $reenrich,
			status: "pending",
			total: $total,
			progress: 0,
			started_at: time::now()
		}
	`, map[string]any{
		"id":           id,
		"requested_by": requestedBy,
		"scope":        scope,
		"reenrich":     reenrich,
		"total":        total,
	})
	if err != nil {
		return fmt.Errorf("create reindex job: %w", err)
	}
	return nil
}

// UpdateJobStatus sets the status of a job.
func (c *Client) UpdateJobStatus(ctx context.Context, id, status string) error {
	_, err := queryRows[models.ReindexJob](ctx, c, `
		UPDATE type::record("reindex_job", $id) SET status = $status
	`, map[string]any{"id": id, "status": status})
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// UpdateJobProgress records how many items have been processed.
func (c *Client) UpdateJobProgress(ctx context.Context, id string, progress, total int) error {
	_, err := queryRows[models.ReindexJob](ctx, c, `
		UPDATE type::record("reindex_job", $id) SET progress = $progress, total = $total
	`, map[string]any{"id": id, "progress": progress, "total": total})
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// CompleteJob marks a job completed with its counters.
func (c *Client) CompleteJob(ctx context.Context, id string, counts JobCounts) error {
	_, err := queryRows[models.ReindexJob](ctx, c, `
		UPDATE type::record("reindex_job", $id) SET
			status = "completed",
			progress = total,
			scanned = $scanned,
			reindexed = $reindexed,
			skipped = $skipped,
			failed = $failed,
			completed_at = time::now()
	`, map[string]any{
		"id":        id,
		"scanned":   counts.Scanned,
		"reindexed": counts.Reindexed,
		"skipped":   counts.Skipped,
		"failed":    counts.Failed,
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks a job failed.
func (c *Client) FailJob(ctx context.Context, id, errMsg string) error {
	_, err := queryRows[models.ReindexJob](ctx, c, `
		UPDATE type::record("reindex_job", $id) SET
			status = "failed",
			error = $error,
			completed_at = time::now()
	`, map[string]any{"id": id, "error": errMsg})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// GetIncompleteJobs returns pending or running jobs, oldest first.
func (c *Client) GetIncompleteJobs(ctx context.Context) ([]models.ReindexJob, error) {
	rows, err := queryRows[models.ReindexJob](ctx, c, `
		SELECT * FROM reindex_job WHERE status IN ["pending", "running"] ORDER BY started_at ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("get incomplete jobs: %w", err)
	}
	return rows, nil
}

// ListReindexJobs returns the most recent jobs, newest first.
func (c *Client) ListReindexJobs(ctx context.Context, limit int) ([]models.ReindexJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := queryRows[models.ReindexJob](ctx, c, `
		SELECT * FROM reindex_job ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list reindex jobs: %w", err)
	}
	return rows, nil
}
