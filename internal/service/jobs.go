package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/models"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobState is a point-in-time copy of a job.
type JobState struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Status      JobStatus      `json:"status"`
	RequestedBy string         `json:"requested_by"`
	Options     ReindexOptions `json:"options"`
	Progress    int            `json:"progress"`
	Total       int            `json:"total"`
	Result      *ReindexResult `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Job is a running or finished reindex.
type Job struct {
	mu                 sync.RWMutex
	state              JobState
	lastProgressUpdate time.Time // for debouncing DB writes
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// ID returns the job id.
func (j *Job) ID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state.ID
}

// JobStore persists jobs so they survive a restart. *db.Client implements it.
type JobStore interface {
	CreateReindexJob(ctx context.Context, id, requestedBy, scope string, reenrich bool, total int) error
	UpdateJobStatus(ctx context.Context, id, status string) error
	UpdateJobProgress(ctx context.Context, id string, progress, total int) error
	CompleteJob(ctx context.Context, id string, counts db.JobCounts) error
	FailJob(ctx context.Context, id, errMsg string) error
	GetIncompleteJobs(ctx context.Context) ([]models.ReindexJob, error)
}

var _ JobStore = (*db.Client)(nil)

// JobManager runs reindex jobs in the background and tracks them.
type JobManager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	store   JobStore
	reindex *ReindexService
	wg      sync.WaitGroup
}

// NewJobManager creates a job manager. store may be nil for in-memory tracking only.
func NewJobManager(reindex *ReindexService, store JobStore) *JobManager {
	return &JobManager{
		jobs:    make(map[string]*Job),
		store:   store,
		reindex: reindex,
	}
}

// StartReindex creates a job and runs it in the background.
func (m *JobManager) StartReindex(ctx context.Context, requestedBy string, opts ReindexOptions) (*Job, error) {
	total, err := m.reindex.Total(ctx, opts)
	if err != nil {
		return nil, err
	}

	job := &Job{state: JobState{
		ID:          uuid.New().String()[:8], // short ID for convenience
		Type:        "reindex",
		Status:      JobStatusPending,
		RequestedBy: requestedBy,
		Options:     opts,
		Total:       total,
		StartedAt:   time.Now(),
	}}

	if m.store != nil {
		if err := m.store.CreateReindexJob(ctx, job.state.ID, requestedBy, opts.Owner, opts.Reenrich, total); err != nil {
			return nil, storeErr("create job", err)
		}
	}
	m.register(job)
	slog.Info("job created", "job_id", job.state.ID, "type", "reindex", "requested_by", requestedBy, "total", total)

	m.run(job, opts)
	return job, nil
}

func (m *JobManager) register(job *Job) {
	m.mu.Lock()
	m.jobs[job.state.ID] = job
	m.mu.Unlock()
}

func (m *JobManager) run(job *Job, opts ReindexOptions) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("job goroutine panicked", "job_id", job.ID(), "panic", r)
				m.Fail(context.Background(), job, fmt.Errorf("internal panic: %v", r))
			}
		}()

		bgCtx := context.Background()
		m.SetRunning(bgCtx, job)

		result, err := m.reindex.Reindex(bgCtx, opts, func(done, total int) {
			m.UpdateProgress(bgCtx, job, done, total)
		})
		if err != nil {
			m.Fail(bgCtx, job, err)
			return
		}
		m.Complete(bgCtx, job, result)
	}()
}

// Wait blocks until every started job has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, most recent first.
func (m *JobManager) ListJobs() []JobState {
	m.mu.RLock()
	jobs := make([]JobState, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.Snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b JobState) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// UpdateProgress updates job progress with debounced DB persistence.
func (m *JobManager) UpdateProgress(ctx context.Context, job *Job, current, total int) {
	job.mu.Lock()
	// Workers report concurrently; progress never moves backwards.
	current = max(job.state.Progress, current)
	job.state.Progress = current
	job.state.Total = total
	if job.state.Status == JobStatusPending {
		job.state.Status = JobStatusRunning
	}

	// Only persist every 5 seconds or every 50 items.
	shouldPersist := m.store != nil && (time.Since(job.lastProgressUpdate) > 5*time.Second ||
		current%50 == 0 || current == total)
	if shouldPersist {
		job.lastProgressUpdate = time.Now()
	}
	id := job.state.ID
	job.mu.Unlock()

	if shouldPersist {
		if err := m.store.UpdateJobProgress(ctx, id, current, total); err != nil {
			slog.Warn("failed to persist job progress", "job_id", id, "error", err)
		}
	}
}

// SetRunning marks job as running.
func (m *JobManager) SetRunning(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.state.Status = JobStatusRunning
	id := job.state.ID
	job.mu.Unlock()

	if m.store != nil {
		if err := m.store.UpdateJobStatus(ctx, id, string(JobStatusRunning)); err != nil {
			slog.Warn("failed to set job running", "job_id", id, "error", err)
		}
	}
}

// Complete marks job as completed with result.
func (m *JobManager) Complete(ctx context.Context, job *Job, result *ReindexResult) {
	job.mu.Lock()
	job.state.Status = JobStatusCompleted
	job.state.Result = result
	job.state.Progress = job.state.Total
	now := time.Now()
	job.state.CompletedAt = &now
	id := job.state.ID
	job.mu.Unlock()

	if m.store != nil {
		counts := db.JobCounts{
			Scanned:   result.Scanned,
			Reindexed: result.Reindexed,
			Skipped:   result.Skipped,
			Failed:    result.Failed,
		}
		if err := m.store.CompleteJob(ctx, id, counts); err != nil {
			slog.Warn("failed to persist job completion", "job_id", id, "error", err)
		}
	}

	slog.Info("job completed", "job_id", id, "reindexed", result.Reindexed, "failed", result.Failed)
}

// Fail marks job as failed with error.
func (m *JobManager) Fail(ctx context.Context, job *Job, err error) {
	job.mu.Lock()
	job.state.Status = JobStatusFailed
	job.state.Error = err.Error()
	now := time.Now()
	job.state.CompletedAt = &now
	id := job.state.ID
	job.mu.Unlock()

	if m.store != nil {
		if dbErr := m.store.FailJob(ctx, id, err.Error()); dbErr != nil {
			slog.Warn("failed to persist job failure", "job_id", id, "error", dbErr)
		}
	}

	slog.Error("job failed", "job_id", id, "error", err)
}

// ResumeIncompleteJobs restarts jobs left pending or running by a previous
// process. Reindexing is idempotent, so a resumed job starts over.
func (m *JobManager) ResumeIncompleteJobs(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	incomplete, err := m.store.GetIncompleteJobs(ctx)
	if err != nil {
		return err
	}
	if len(incomplete) == 0 {
		slog.Info("no incomplete jobs to resume")
		return nil
	}
	slog.Info("found incomplete jobs", "count", len(incomplete))

	for _, dbJob := range incomplete {
		jobID, err := models.RecordIDString(dbJob.ID)
		if err != nil {
			slog.Warn("failed to get job ID", "error", err)
			continue
		}

		opts := ReindexOptions{Owner: dbJob.Scope, Reenrich: dbJob.Reenrich}
		job := &Job{state: JobState{
			ID:          jobID,
			Type:        "reindex",
			Status:      JobStatusRunning,
			RequestedBy: dbJob.RequestedBy,
			Options:     opts,
			Total:       dbJob.Total,
			StartedAt:   dbJob.StartedAt,
		}}
		m.register(job)

		slog.Info("resuming job", "job_id", jobID, "scope", dbJob.Scope, "previous_progress", dbJob.Progress)
		m.run(job, opts)
	}
	return nil
}
