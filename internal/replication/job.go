package replication

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/internal/logger"
	"github.com/sangkips/tillsync/pkg/apperror"
)

// Lock guards a job against overlapping runs. An invocation that cannot take
// the lock is dropped, not queued.
type Lock interface {
	TryAcquire(ctx context.Context, key string) (release func(context.Context) error, acquired bool, err error)
}

// JobStatus is what operators see about a job
type JobStatus struct {
	Job     string             `json:"job"`
	Running bool               `json:"running"`
	Cursor  *entity.SyncCursor `json:"cursor,omitempty"`
	LastRun *RunSummary        `json:"last_run,omitempty"`
}

// SyncJob owns a job's cursor, failure log and run lock around the driver.
// Every trigger (scheduler, API, CLI) goes through Run.
type SyncJob struct {
	name       string
	driver     *Driver
	cursors    repository.SyncCursorRepository
	failures   repository.SyncFailureRepository
	lock       Lock
	metrics    *Metrics
	runTimeout time.Duration
	log        zerolog.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *RunSummary
}

// NewSyncJob creates a sync job. metrics may be nil.
func NewSyncJob(
	name string,
	driver *Driver,
	cursors repository.SyncCursorRepository,
	failures repository.SyncFailureRepository,
	lock Lock,
	metrics *Metrics,
	runTimeout time.Duration,
	log zerolog.Logger,
) *SyncJob {
	return &SyncJob{
		name:       name,
		driver:     driver,
		cursors:    cursors,
		failures:   failures,
		lock:       lock,
		metrics:    metrics,
		runTimeout: runTimeout,
		log:        log.With().Str("job", name).Logger(),
	}
}

// Name returns the job name, which is also its cursor key
func (j *SyncJob) Name() string {
	return j.name
}

// Run performs one run in mode. It returns apperror.ErrSyncAlreadyRunning
// when another run of the job holds the lock.
func (j *SyncJob) Run(ctx context.Context, mode Mode) (*RunSummary, error) {
	release, ok, err := j.lock.TryAcquire(ctx, "sync:"+j.name)
	if err != nil {
		return nil, errors.Wrap(err, "acquire run lock")
	}
	if !ok {
		j.log.Info().Str("mode", string(mode)).Msg("sync run skipped, another run holds the lock")
		return nil, apperror.ErrSyncAlreadyRunning
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			j.log.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	j.running.Store(true)
	defer j.running.Store(false)

	if j.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.runTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	log := j.log.With().Str("run_id", runID).Str("mode", string(mode)).Logger()
	ctx = logger.WithContext(ctx, log)

	cursor, err := j.cursors.Get(ctx, j.name)
	if err != nil {
		return nil, errors.Wrap(err, "load cursor")
	}
	req := RunRequest{RunID: runID, Mode: mode}
	if cursor != nil {
		at := cursor.LastSyncedAt
		req.Cursor = &at
	}
	log.Info().Interface("cursor", req.Cursor).Msg("sync run started")

	summary, runErr := j.driver.Run(ctx, req)

	// Bookkeeping must survive a run that was cancelled or timed out.
	store := context.WithoutCancel(ctx)
	if err := j.recordFailures(store, runID, summary); err != nil {
		log.Error().Err(err).Msg("failed to persist record failures")
	}
	if runErr == nil && summary.CursorAdvanced {
		err := j.cursors.Save(store, &entity.SyncCursor{
			JobName:      j.name,
			LastSyncedAt: *summary.NextCursor,
			LastRunID:    runID,
		})
		if err != nil {
			runErr = errors.Wrap(err, "save cursor")
			summary.CursorAdvanced = false
			summary.NextCursor = req.Cursor
			summary.Error = runErr.Error()
		}
	}

	j.metrics.ObserveRun(j.name, summary, runErr)
	j.setLast(summary)

	totals := summary.Totals()
	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr).Str("class", Classify(runErr))
	}
	event.
		Int("created", totals.Created).
		Int("updated", totals.Updated).
		Int("skipped", totals.Skipped).
		Int("failed", totals.Failed).
		Bool("cursor_advanced", summary.CursorAdvanced).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("sync run finished")

	return summary, runErr
}

func (j *SyncJob) recordFailures(ctx context.Context, runID string, summary *RunSummary) error {
	if summary == nil || len(summary.Failures) == 0 {
		return nil
	}
	rows := make([]entity.SyncFailure, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		rows = append(rows, entity.SyncFailure{
			JobName:    j.name,
			RunID:      runID,
			EntityType: string(f.Entity),
			NaturalKey: f.NaturalKey,
			Reason:     f.Reason,
		})
	}
	return j.failures.CreateBatch(ctx, rows)
}

func (j *SyncJob) setLast(summary *RunSummary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.last = summary
}

// Status reports the stored cursor and the last run seen by this process
func (j *SyncJob) Status(ctx context.Context) (*JobStatus, error) {
	cursor, err := j.cursors.Get(ctx, j.name)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	last := j.last
	j.mu.Unlock()
	return &JobStatus{
		Job:     j.name,
		Running: j.running.Load(),
		Cursor:  cursor,
		LastRun: last,
	}, nil
}

// ResetCursor forgets the cursor so the next incremental run pushes everything
func (j *SyncJob) ResetCursor(ctx context.Context) error {
	return j.cursors.Delete(ctx, j.name)
}

// Failures lists the job's most recent record failures
func (j *SyncJob) Failures(ctx context.Context, limit int) ([]entity.SyncFailure, error) {
	return j.failures.ListRecent(ctx, j.name, limit)
}
