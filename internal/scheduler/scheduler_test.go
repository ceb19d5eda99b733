package scheduler

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/replication"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	modes   []replication.Mode
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Name() string { return "pos" }

func (f *fakeRunner) Run(_ context.Context, mode replication.Mode) (*replication.RunSummary, error) {
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &replication.RunSummary{RunID: "run-1", Mode: mode}, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modes)
}

type fakeSweeper struct {
	calls int
	err   error
}

func (f *fakeSweeper) DeleteExpired(context.Context) (int64, error) {
	f.calls++
	return 3, f.err
}

// fire runs every registered entry once through its wrapper chain.
func fire(s *Scheduler) {
	for _, e := range s.cron.Entries() {
		e.WrappedJob.Run()
	}
}

func TestAddSyncRunsIncremental(t *testing.T) {
	var buf bytes.Buffer
	s := New(zerolog.New(&buf))
	runner := &fakeRunner{}
	require.NoError(t, s.AddSync("@every 30m", runner))

	fire(s)
	assert.Equal(t, []replication.Mode{replication.ModeIncremental}, runner.modes)
	assert.Contains(t, buf.String(), "sync scheduled")
}

func TestAddSyncRejectsBadSpec(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.AddSync("every half hour", &fakeRunner{}))
	assert.Error(t, s.AddIdempotencySweep("61 * * * *", &fakeSweeper{}))
}

func TestSyncTickSkippedWhileRunning(t *testing.T) {
	s := New(zerolog.Nop())
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 2)}
	require.NoError(t, s.AddSync("@every 1h", runner))

	go fire(s)
	<-runner.started
	fire(s) // returns immediately, the first invocation still holds the job
	close(runner.block)

	assert.Eventually(t, func() bool { return runner.calls() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, runner.calls())
}

func TestSyncTickToleratesFailures(t *testing.T) {
	var buf bytes.Buffer
	s := New(zerolog.New(&buf))
	require.NoError(t, s.AddSync("@every 1h", &fakeRunner{err: apperror.ErrSyncAlreadyRunning}))
	fire(s)
	assert.Contains(t, buf.String(), "scheduled sync skipped")

	buf.Reset()
	s = New(zerolog.New(&buf))
	require.NoError(t, s.AddSync("@every 1h", &fakeRunner{err: errors.New("mirror down")}))
	fire(s)
	assert.Contains(t, buf.String(), "scheduled sync failed")
}

func TestIdempotencySweep(t *testing.T) {
	var buf bytes.Buffer
	s := New(zerolog.New(&buf))
	sweeper := &fakeSweeper{}
	require.NoError(t, s.AddIdempotencySweep("@every 1h", sweeper))

	fire(s)
	assert.Equal(t, 1, sweeper.calls)
	assert.Contains(t, buf.String(), `"deleted":3`)
}

func TestStopWaitsForRunningJobs(t *testing.T) {
	s := New(zerolog.Nop())
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
