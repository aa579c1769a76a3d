package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/opticam-labs/edgesim/internal/cam"
	"github.com/opticam-labs/edgesim/internal/cam/analysis"
	"github.com/opticam-labs/edgesim/internal/cam/export"
	"github.com/opticam-labs/edgesim/internal/cam/pipeline"
	"github.com/opticam-labs/edgesim/internal/cam/report"
	"github.com/opticam-labs/edgesim/internal/cam/storage/sqlite"
	"github.com/opticam-labs/edgesim/internal/config"
	"github.com/opticam-labs/edgesim/internal/monitoring"
	"github.com/opticam-labs/edgesim/internal/units"
)

// decodeJob reads a job spec from a request body, capped at the same 1MB the
// file loader allows.
func decodeJob(w http.ResponseWriter, r *http.Request) (pipeline.Job, error) {
	var job pipeline.Job
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(&job); err != nil {
		return pipeline.Job{}, fmt.Errorf("parse job: %w", err)
	}
	return job, nil
}

// rateUnits resolves the response rate unit: the ?units= override when
// present, the server default otherwise. The second return is false when the
// override names an unknown unit.
func (s *Server) rateUnits(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	if !units.IsValidRate(u) {
		return u, false
	}
	return u, true
}

func convertRates(rates []float64, targetUnits string) []float64 {
	out := make([]float64, len(rates))
	for i, v := range rates {
		out[i] = units.ConvertRate(v, targetUnits)
	}
	return out
}

func skippedStrings(skipped []*cam.PassError) []string {
	if len(skipped) == 0 {
		return nil
	}
	out := make([]string, len(skipped))
	for i, pe := range skipped {
		out[i] = pe.Error()
	}
	return out
}

type machineView struct {
	Units                 string        `json:"units"`
	ToolStack             cam.ToolStack `json:"tool_stack"`
	HomeRadialMM          float64       `json:"home_radial_mm"`
	HomeAxialMM           float64       `json:"home_axial_mm"`
	TravelFeedRateMMPS    float64       `json:"travel_feed_rate_mmps"`
	FrameRateHz           float64       `json:"frame_rate_hz"`
	ResolutionMM          float64       `json:"resolution_mm"`
	SimStride             int           `json:"sim_stride"`
	DefaultMaxRemovalRate float64       `json:"default_max_removal_rate_mm3s"`
}

func (s *Server) showMachine(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	pc := s.machine.PathConfig()
	view := machineView{
		Units:                 s.units,
		ToolStack:             s.machine.ToolStack(),
		HomeRadialMM:          pc.HomeRadial,
		HomeAxialMM:           pc.HomeAxial,
		TravelFeedRateMMPS:    pc.TravelFeedRate,
		FrameRateHz:           pc.FrameRate,
		ResolutionMM:          s.machine.GetResolution(),
		SimStride:             s.machine.GetStride(),
		DefaultMaxRemovalRate: s.machine.GetDefaultMaxRemovalRate(),
	}

	if err := json.NewEncoder(w).Encode(view); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write machine view")
		return
	}
}

type pathResponse struct {
	Summary  export.PathSummary `json:"summary"`
	Path     cam.PathFrames     `json:"path"`
	Segments []cam.PassSegment  `json:"pass_segments"`
	Skipped  []string           `json:"skipped_passes,omitempty"`
}

func (s *Server) buildPath(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	job, err := decodeJob(w, r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := pipeline.BuildPath(r.Context(), job, s.machine)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to build path: %v", err))
		return
	}

	resp := pathResponse{
		Summary:  export.Summary(plan.Frames, plan.Path.Segments),
		Path:     plan.Frames,
		Segments: plan.Path.Segments,
		Skipped:  skippedStrings(plan.Skipped),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write path")
		return
	}
}

// csvFilename derives a safe download filename from the job label.
func csvFilename(label string) string {
	if label == "" {
		return "path.csv"
	}
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '.', r == '_':
			return r
		default:
			return '_'
		}
	}, label)
	return "path_" + mapped + ".csv"
}

func (s *Server) downloadPathCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job, err := decodeJob(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	plan, err := pipeline.BuildPath(r.Context(), job, s.machine)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		http.Error(w, fmt.Sprintf("Failed to build path: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", csvFilename(job.Label)))
	if err := export.WriteCSV(w, plan.Frames); err != nil {
		monitoring.Logf("api: csv download aborted: %v", err)
	}
}

type simulateResponse struct {
	Run          *sqlite.Run      `json:"run"`
	Digest       analysis.Digest  `json:"digest"`
	History      analysis.History `json:"history"`
	Rates        []float64        `json:"rates"`
	MaxAllowed   []float64        `json:"max_allowed"`
	RateUnits    string           `json:"rate_units"`
	RetimedTimes []float64        `json:"retimed_times,omitempty"`
	Skipped      []string         `json:"skipped_passes,omitempty"`
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.requireStore(w) {
		return
	}

	rateUnits, ok := s.rateUnits(r)
	if !ok {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid 'units' parameter; valid values: %s", units.RateUnitsString()))
		return
	}

	job, err := decodeJob(w, r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := pipeline.Run(r.Context(), job, s.machine, pipeline.Options{})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Simulation failed: %v", err))
		return
	}

	rec, err := res.Record()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to flatten run: %v", err))
		return
	}
	if err := s.store.InsertRun(&rec, res.Path.Segments); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to persist run: %v", err))
		return
	}
	s.remember(rec.RunID, res)

	resp := simulateResponse{
		Run:          &rec,
		Digest:       res.Digest,
		History:      res.History,
		Rates:        convertRates(res.Rates.PerSecond(res.Frames.Time), rateUnits),
		MaxAllowed:   convertRates(res.Rates.MaxAllowed, rateUnits),
		RateUnits:    rateUnits,
		RetimedTimes: res.RetimedTimes,
		Skipped:      skippedStrings(res.Skipped),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write run")
		return
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.requireStore(w) {
		return
	}

	limit := sqlite.DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list runs: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write runs")
		return
	}
}

type runDetailResponse struct {
	Run      *sqlite.Run      `json:"run"`
	Segments []sqlite.Segment `json:"segments"`
}

// runSubtree dispatches /api/runs/{id} and /api/runs/{id}/{chart}.html.
func (s *Server) runSubtree(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.runDetail(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "volume.html":
		s.runChart(w, r, parts[0], "volume")
	case len(parts) == 2 && parts[1] == "rates.html":
		s.runChart(w, r, parts[0], "rates")
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) runDetail(w http.ResponseWriter, r *http.Request, runID string) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		run, err := s.store.GetRun(runID)
		if err != nil {
			s.runStoreError(w, err, runID)
			return
		}
		segments, err := s.store.SegmentsForRun(runID)
		if err != nil {
			s.runStoreError(w, err, runID)
			return
		}
		if err := json.NewEncoder(w).Encode(runDetailResponse{Run: run, Segments: segments}); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write run")
			return
		}
	case http.MethodDelete:
		if err := s.store.DeleteRun(runID); err != nil {
			s.runStoreError(w, err, runID)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) runStoreError(w http.ResponseWriter, err error, runID string) {
	if errors.Is(err, sqlite.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Run %s not found", runID))
		return
	}
	s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Run store error: %v", err))
}

// runChart serves a stored run's analysis as an HTML chart. Recent results
// come from the in-memory cache; anything older is replayed from the job
// blob persisted with the run.
func (s *Server) runChart(w http.ResponseWriter, r *http.Request, runID, kind string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, ok := s.recall(runID)
	if !ok {
		run, err := s.store.GetRun(runID)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			s.runStoreError(w, err, runID)
			return
		}
		res, err = s.replay(r.Context(), run)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			w.Header().Set("Content-Type", "application/json")
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to replay run %s: %v", runID, err))
			return
		}
		s.remember(runID, res)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var err error
	switch kind {
	case "volume":
		err = report.VolumeChartHTML(w, res.History)
	default:
		err = report.RateChartHTML(w, res.Rates, res.Frames.Time)
	}
	if err != nil {
		monitoring.Logf("api: chart render for run %s: %v", runID, err)
	}
}

// replay re-executes a stored run from the job and machine blobs persisted
// with it.
func (s *Server) replay(ctx context.Context, run *sqlite.Run) (*pipeline.Result, error) {
	if len(run.JobJSON) == 0 {
		return nil, fmt.Errorf("run has no stored job")
	}
	var job pipeline.Job
	if err := json.Unmarshal(run.JobJSON, &job); err != nil {
		return nil, fmt.Errorf("stored job: %w", err)
	}
	m := s.machine
	if len(run.MachineJSON) > 0 {
		stored := config.Empty()
		if err := json.Unmarshal(run.MachineJSON, stored); err != nil {
			return nil, fmt.Errorf("stored machine config: %w", err)
		}
		m = stored
	}
	return pipeline.Run(ctx, job, m, pipeline.Options{})
}
