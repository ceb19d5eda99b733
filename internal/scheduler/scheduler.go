// Package scheduler runs the periodic jobs of the till: the mirror sync and
// the idempotency key sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/replication"
	"github.com/sangkips/tillsync/pkg/apperror"
)

// SyncRunner is the part of replication.SyncJob the scheduler triggers
type SyncRunner interface {
	Name() string
	Run(ctx context.Context, mode replication.Mode) (*replication.RunSummary, error)
}

// Sweeper deletes expired rows and reports how many went
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Scheduler wraps a cron instance. Every job is wrapped so that a tick
// arriving while the previous invocation still runs is skipped, and a panic
// is logged instead of killing the process.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a stopped scheduler. Schedules use the standard five-field
// cron syntax plus descriptors such as "@every 30m".
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	l := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		log: log,
	}
}

// AddSync schedules incremental runs of job.
func (s *Scheduler) AddSync(spec string, job SyncRunner) error {
	_, err := s.cron.AddFunc(spec, func() {
		summary, err := job.Run(context.Background(), replication.ModeIncremental)
		switch {
		case errors.Is(err, apperror.ErrSyncAlreadyRunning):
			s.log.Info().Str("job", job.Name()).Msg("scheduled sync skipped, a run is in progress")
		case err != nil:
			// The job already logged the run; this only marks the tick.
			s.log.Warn().Err(err).Str("job", job.Name()).Msg("scheduled sync failed")
		default:
			s.log.Debug().Str("job", job.Name()).Str("run_id", summary.RunID).Msg("scheduled sync done")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "schedule sync %q", spec)
	}
	s.log.Info().Str("job", job.Name()).Str("schedule", spec).Msg("sync scheduled")
	return nil
}

// AddIdempotencySweep schedules deletion of expired idempotency keys.
func (s *Scheduler) AddIdempotencySweep(spec string, sweeper Sweeper) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := sweeper.DeleteExpired(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("idempotency sweep failed")
			return
		}
		s.log.Info().Int64("deleted", n).Msg("expired idempotency keys deleted")
	})
	if err != nil {
		return errors.Wrapf(err, "schedule idempotency sweep %q", spec)
	}
	return nil
}

// Start runs the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for scheduled jobs")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
