package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	mode     replication.Mode
	summary  *replication.RunSummary
	runErr   error
	cursor   *entity.SyncCursor
	reset    bool
	failures []entity.SyncFailure
	limit    int
}

func (f *fakeJob) Name() string { return "pos" }

func (f *fakeJob) Run(_ context.Context, mode replication.Mode) (*replication.RunSummary, error) {
	f.mode = mode
	return f.summary, f.runErr
}

func (f *fakeJob) Status(context.Context) (*replication.JobStatus, error) {
	return &replication.JobStatus{Job: "pos", Cursor: f.cursor}, nil
}

func (f *fakeJob) ResetCursor(context.Context) error {
	f.reset = true
	f.cursor = nil
	return nil
}

func (f *fakeJob) Failures(_ context.Context, limit int) ([]entity.SyncFailure, error) {
	f.limit = limit
	return f.failures, nil
}

func execute(t *testing.T, job *fakeJob, args ...string) (string, error) {
	t.Helper()
	closed := false
	cmd := NewRootCommandWithFactory(func(context.Context, *RootOptions) (Job, func(), error) {
		return job, func() { closed = true }, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		assert.True(t, closed, "job cleanup should run")
	}
	return out.String(), err
}

func sampleSummary() *replication.RunSummary {
	next := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &replication.RunSummary{
		RunID: "run-1",
		Mode:  replication.ModeFull,
		Counts: map[replication.EntityType]*replication.EntityCounts{
			replication.EntityProducts: {Created: 3, Skipped: 1},
			replication.EntityReceipts: {Updated: 2, Failed: 1},
		},
		Failures: []replication.RecordFailure{
			{Entity: replication.EntityReceipts, NaturalKey: "RCP-9", Reason: "receipt_number is required"},
		},
		NextCursor:     &next,
		CursorAdvanced: true,
	}
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"run"}, {"status"}, {"cursor", "show"}, {"cursor", "reset"}, {"failures", "list"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	modeFlag := runCmd.Flags().Lookup("mode")
	require.NotNil(t, modeFlag)
	assert.Equal(t, "incremental", modeFlag.DefValue)
}

func TestRunPrintsSummary(t *testing.T) {
	job := &fakeJob{summary: sampleSummary()}

	out, err := execute(t, job, "run", "--mode", "full")
	require.NoError(t, err)
	assert.Equal(t, replication.ModeFull, job.mode)
	assert.Contains(t, out, "run run-1 (full)")
	assert.Regexp(t, `products\s+3\s+0\s+1\s+0`, out)
	assert.Regexp(t, `receipts\s+0\s+2\s+0\s+1`, out)
	assert.Contains(t, out, "failed receipts RCP-9: receipt_number is required")
	assert.Contains(t, out, "cursor advanced to 2024-03-01T10:00:00Z")
}

func TestRunJSON(t *testing.T) {
	job := &fakeJob{summary: sampleSummary()}

	out, err := execute(t, job, "run", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, replication.ModeIncremental, job.mode)

	var resp struct {
		Status string                 `json:"status"`
		Data   replication.RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Counts[replication.EntityProducts].Created)
}

func TestRunFailureExitCode(t *testing.T) {
	summary := sampleSummary()
	summary.CursorAdvanced = false
	summary.Error = "mirror unavailable"
	job := &fakeJob{summary: summary, runErr: errors.New("mirror unavailable")}

	out, err := execute(t, job, "run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "cursor not advanced")
	assert.Contains(t, out, "error: mirror unavailable")
}

func TestRunRejectsUnknownMode(t *testing.T) {
	_, err := execute(t, &fakeJob{}, "run", "--mode", "partial")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, &fakeJob{}, "status", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCursorShowAndReset(t *testing.T) {
	job := &fakeJob{cursor: &entity.SyncCursor{
		JobName:      "pos",
		LastSyncedAt: time.Date(2024, 3, 1, 9, 55, 0, 0, time.UTC),
		LastRunID:    "run-0",
	}}

	out, err := execute(t, job, "cursor", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "pos: last synced 2024-03-01T09:55:00Z (run run-0)")

	out, err = execute(t, job, "cursor", "reset")
	require.NoError(t, err)
	assert.True(t, job.reset)
	assert.Contains(t, out, "cursor for pos reset")

	out, err = execute(t, job, "cursor", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "no cursor")
}

func TestFailuresList(t *testing.T) {
	job := &fakeJob{failures: []entity.SyncFailure{{
		RunID:      "run-1",
		EntityType: "products",
		NaturalKey: "code:P1",
		Reason:     "brand is required",
		CreatedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}}}

	out, err := execute(t, job, "failures", "list", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, 5, job.limit)
	assert.Contains(t, out, "code:P1")
	assert.Contains(t, out, "brand is required")

	_, err = execute(t, job, "failures", "list", "--limit", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", errors.New("x"))))
}
