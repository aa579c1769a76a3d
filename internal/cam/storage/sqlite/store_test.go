package sqlite

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opticam-labs/edgesim/internal/cam"
	"github.com/opticam-labs/edgesim/internal/timeutil"
)

func setupTestStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err, "open test store")
	t.Cleanup(func() { store.Close() })
	store.Clock = timeutil.NewMockClock(time.Unix(1700000000, 42))
	return store
}

func sampleRun() *Run {
	return &Run{
		Label:            "left -4.50 cyl",
		MachineJSON:      json.RawMessage(`{"tilt_deg":18}`),
		JobJSON:          json.RawMessage(`{"label":"left -4.50 cyl"}`),
		FrameCount:       731,
		DurationSec:      50.6,
		InitialVolumeMM3: 7543.2,
		RemovedVolumeMM3: 3200.8,
		PercentComplete:  42.4,
		PeakRateMM3S:     87.5,
		ResolutionMM:     0.2,
	}
}

func sampleSegments() []cam.PassSegment {
	return []cam.PassSegment{
		{Start: 13, End: 373, Kind: cam.StepRoughing, Pass: 0, MaxRemovalRate: 40},
		{Start: 390, End: 720, Kind: cam.StepBeveling, Pass: 0, MaxRemovalRate: 25},
	}
}

func TestRunStoreInsertAndGet(t *testing.T) {
	store := setupTestStore(t)

	run := sampleRun()
	require.NoError(t, store.InsertRun(run, sampleSegments()))

	assert.Len(t, run.RunID, 36, "generated UUID written back")
	assert.Equal(t, time.Unix(1700000000, 42).UnixNano(), run.CreatedAtNs,
		"created_at stamped from the store clock")

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.Label, got.Label)
	assert.Equal(t, run.FrameCount, got.FrameCount)
	assert.InDelta(t, run.DurationSec, got.DurationSec, 1e-9)
	assert.InDelta(t, run.PeakRateMM3S, got.PeakRateMM3S, 1e-9)
	assert.JSONEq(t, string(run.MachineJSON), string(got.MachineJSON))
	assert.JSONEq(t, string(run.JobJSON), string(got.JobJSON))
	assert.Nil(t, got.Notes)

	segs, err := store.SegmentsForRun(run.RunID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, cam.StepRoughing, segs[0].Kind)
	assert.Equal(t, 13, segs[0].StartFrame)
	assert.Equal(t, 373, segs[0].EndFrame)
	assert.InDelta(t, 40.0, segs[0].MaxRateMM3S, 1e-9)
	assert.Equal(t, cam.StepBeveling, segs[1].Kind)
	assert.Equal(t, 1, segs[1].SegIndex)
}

func TestRunStoreNotes(t *testing.T) {
	store := setupTestStore(t)

	notes := "operator flagged chatter on pass 2"
	run := sampleRun()
	run.Notes = &notes
	require.NoError(t, store.InsertRun(run, nil))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	require.NotNil(t, got.Notes)
	assert.Equal(t, notes, *got.Notes)
}

func TestRunStoreGetMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun("no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunStoreListRuns(t *testing.T) {
	store := setupTestStore(t)

	for i, ns := range []int64{100, 300, 200} {
		run := sampleRun()
		run.RunID = []string{"run-a", "run-b", "run-c"}[i]
		run.CreatedAtNs = ns
		require.NoError(t, store.InsertRun(run, nil))
	}

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-b", "run-c", "run-a"},
		[]string{runs[0].RunID, runs[1].RunID, runs[2].RunID},
		"newest first")

	runs, err = store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID)
}

func TestRunStoreDeleteRun(t *testing.T) {
	store := setupTestStore(t)

	run := sampleRun()
	require.NoError(t, store.InsertRun(run, sampleSegments()))
	require.NoError(t, store.DeleteRun(run.RunID))

	_, err := store.GetRun(run.RunID)
	assert.ErrorIs(t, err, ErrNotFound)

	segs, err := store.SegmentsForRun(run.RunID)
	require.NoError(t, err)
	assert.Empty(t, segs, "segments removed with their run")

	assert.ErrorIs(t, store.DeleteRun(run.RunID), ErrNotFound)
}

func TestRunStoreReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")

	store, err := Open(path)
	require.NoError(t, err)
	run := sampleRun()
	require.NoError(t, store.InsertRun(run, sampleSegments()))
	require.NoError(t, store.Close())

	// Reopening applies migrations idempotently and keeps the data.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.Label, got.Label)
}
