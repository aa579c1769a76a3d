// Package api exposes the planning pipeline and the run store over HTTP.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/opticam-labs/edgesim/internal/cam/pipeline"
	"github.com/opticam-labs/edgesim/internal/cam/storage/sqlite"
	"github.com/opticam-labs/edgesim/internal/config"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// recentResults bounds the in-memory cache of full pipeline results kept for
// chart rendering. Older runs are replayed from their stored job on demand.
const recentResults = 8

type Server struct {
	store   *sqlite.RunStore
	machine *config.Machine
	units   string

	mu     sync.Mutex
	recent map[string]*pipeline.Result
	order  []string
}

// NewServer wires the HTTP surface. store may be nil, which disables the
// simulate and runs endpoints; machine nil selects the reference machine.
// units is the default removal-rate unit for responses.
func NewServer(store *sqlite.RunStore, machine *config.Machine, units string) *Server {
	if machine == nil {
		machine = config.Default()
	}
	return &Server{
		store:   store,
		machine: machine,
		units:   units,
		recent:  make(map[string]*pipeline.Result),
	}
}

// remember caches a finished result for chart rendering, evicting the oldest
// entry past the cap.
func (s *Server) remember(runID string, res *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recent[runID]; !ok {
		s.order = append(s.order, runID)
		if len(s.order) > recentResults {
			delete(s.recent, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.recent[runID] = res
}

func (s *Server) recall(runID string) (*pipeline.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.recent[runID]
	return res, ok
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/machine", s.showMachine)
	mux.HandleFunc("/api/path", s.buildPath)
	mux.HandleFunc("/api/path.csv", s.downloadPathCSV)
	mux.HandleFunc("/api/simulate", s.simulate)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.runSubtree)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// requireStore guards the endpoints that need persistence.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "run store not configured")
		return false
	}
	return true
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "ok\n")
}
