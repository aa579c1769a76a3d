// Package sqlite persists simulation runs: the job and machine inputs as
// JSON blobs plus the digest figures shown in listings, with the path's
// cutting segments in a side table. Schema changes ship as embedded
// migrations applied on open.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/opticam-labs/edgesim/internal/cam"
	"github.com/opticam-labs/edgesim/internal/timeutil"
)

// ErrNotFound reports a run ID with no row in the store.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit bounds ListRuns when the caller passes no limit.
const DefaultListLimit = 50

// Run is one persisted simulation run.
type Run struct {
	RunID              string          `json:"run_id"`
	CreatedAtNs        int64           `json:"created_at_ns"`
	Label              string          `json:"label,omitempty"`
	MachineJSON        json.RawMessage `json:"machine_json,omitempty"`
	JobJSON            json.RawMessage `json:"job_json,omitempty"`
	FrameCount         int             `json:"frame_count"`
	DurationSec        float64         `json:"duration_sec"`
	RetimedDurationSec float64         `json:"retimed_duration_sec"`
	InitialVolumeMM3   float64         `json:"initial_volume_mm3"`
	RemovedVolumeMM3   float64         `json:"removed_volume_mm3"`
	PercentComplete    float64         `json:"percent_complete"`
	PeakRateMM3S       float64         `json:"peak_rate_mm3s"`
	ResolutionMM       float64         `json:"resolution_mm"`
	Notes              *string         `json:"notes,omitempty"`
}

// Segment is one persisted cutting segment of a run's path.
type Segment struct {
	RunID       string       `json:"run_id"`
	SegIndex    int          `json:"seg_index"`
	Kind        cam.StepKind `json:"kind"`
	Pass        int          `json:"pass"`
	StartFrame  int          `json:"start_frame"`
	EndFrame    int          `json:"end_frame"`
	MaxRateMM3S float64      `json:"max_rate_mm3s"`
}

// RunStore provides persistence for simulation runs.
type RunStore struct {
	db *sql.DB

	// Clock stamps CreatedAtNs on insert; replace it in tests for
	// deterministic rows.
	Clock timeutil.Clock
}

// Open opens (creating if needed) the run database at path and applies any
// pending migrations.
func Open(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run db: %w", err)
	}
	s, err := NewRunStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStore wraps an existing handle and applies any pending migrations.
func NewRunStore(db *sql.DB) (*RunStore, error) {
	if err := migrateUp(db); err != nil {
		return nil, err
	}
	return &RunStore{db: db, Clock: timeutil.RealClock{}}, nil
}

// Close releases the underlying database handle.
func (s *RunStore) Close() error { return s.db.Close() }

// InsertRun creates a run with its segments in one transaction. An empty
// RunID gets a fresh UUID and a zero CreatedAtNs the store clock's now;
// both are written back to run.
func (s *RunStore) InsertRun(run *Run, segments []cam.PassSegment) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = s.Clock.Now().UnixNano()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sim_runs (
			run_id, created_at_ns, label, machine_json, job_json,
			frame_count, duration_sec, retimed_duration_sec,
			initial_volume_mm3, removed_volume_mm3, percent_complete,
			peak_rate_mm3s, resolution_mm, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.CreatedAtNs,
		run.Label,
		nullString(string(run.MachineJSON)),
		nullString(string(run.JobJSON)),
		run.FrameCount,
		run.DurationSec,
		run.RetimedDurationSec,
		run.InitialVolumeMM3,
		run.RemovedVolumeMM3,
		run.PercentComplete,
		run.PeakRateMM3S,
		run.ResolutionMM,
		nullStringPtr(run.Notes),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, seg := range segments {
		_, err = tx.Exec(`
			INSERT INTO run_segments (
				run_id, seg_index, kind, pass, start_frame, end_frame, max_rate_mm3s
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.RunID, i, string(seg.Kind), seg.Pass, seg.Start, seg.End, seg.MaxRemovalRate)
		if err != nil {
			return fmt.Errorf("insert run segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `
	run_id, created_at_ns, label, machine_json, job_json,
	frame_count, duration_sec, retimed_duration_sec,
	initial_volume_mm3, removed_volume_mm3, percent_complete,
	peak_rate_mm3s, resolution_mm, notes
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var machineJSON, jobJSON, notes sql.NullString

	err := row.Scan(
		&run.RunID,
		&run.CreatedAtNs,
		&run.Label,
		&machineJSON,
		&jobJSON,
		&run.FrameCount,
		&run.DurationSec,
		&run.RetimedDurationSec,
		&run.InitialVolumeMM3,
		&run.RemovedVolumeMM3,
		&run.PercentComplete,
		&run.PeakRateMM3S,
		&run.ResolutionMM,
		&notes,
	)
	if err != nil {
		return nil, err
	}

	if machineJSON.Valid && machineJSON.String != "" {
		run.MachineJSON = json.RawMessage(machineJSON.String)
	}
	if jobJSON.Valid && jobJSON.String != "" {
		run.JobJSON = json.RawMessage(jobJSON.String)
	}
	if notes.Valid {
		v := notes.String
		run.Notes = &v
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM sim_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, at most limit of them
// (DefaultListLimit when limit <= 0).
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(`
		SELECT `+runColumns+` FROM sim_runs
		ORDER BY created_at_ns DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and its segments.
func (s *RunStore) DeleteRun(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_segments WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run segments: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM sim_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	return tx.Commit()
}

// SegmentsForRun retrieves a run's segments in path order.
func (s *RunStore) SegmentsForRun(runID string) ([]Segment, error) {
	rows, err := s.db.Query(`
		SELECT run_id, seg_index, kind, pass, start_frame, end_frame, max_rate_mm3s
		FROM run_segments
		WHERE run_id = ?
		ORDER BY seg_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("segments for run: %w", err)
	}
	defer rows.Close()

	var segs []Segment
	for rows.Next() {
		var seg Segment
		var kind string
		if err := rows.Scan(&seg.RunID, &seg.SegIndex, &kind, &seg.Pass,
			&seg.StartFrame, &seg.EndFrame, &seg.MaxRateMM3S); err != nil {
			return nil, fmt.Errorf("segments for run: %w", err)
		}
		seg.Kind = cam.StepKind(kind)
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("segments for run: %w", err)
	}
	return segs, nil
}

// Helper functions for nullable values: empty strings and nil pointers
// store as NULL.

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullStringPtr(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
