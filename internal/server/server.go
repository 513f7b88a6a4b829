// Package server exposes the run API over HTTP: create and dispatch
// runs, poll their state, stream their events, and download reports.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/globalpass/standby-cli/internal/config"
	"github.com/globalpass/standby-cli/internal/model"
	"github.com/globalpass/standby-cli/internal/registry"
	"github.com/globalpass/standby-cli/internal/report"
)

// Server wires the run registry and report builder into an HTTP handler.
type Server struct {
	registry *registry.Registry
	reports  *report.Builder
}

// New builds the chi router for the run API.
func New(cfg config.ServerConfig, reg *registry.Registry, reports *report.Builder) http.Handler {
	s := &Server{registry: reg, reports: reports}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/results", s.handleResults)
		r.Get("/{id}/events", s.handleEvents)
		r.Get("/{id}/report.xlsx", s.handleReport)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateRun validates the criteria, registers a run, and launches
// it. The response returns immediately with the run id; progress flows
// through the event stream.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var criteria model.SearchCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(model.ErrInvalidInput, "invalid request body"))
		return
	}

	runID, err := s.registry.CreateRun(r.Context(), criteria)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := s.registry.Dispatch(runID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(model.RunStatusRunning),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.registry.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	run, err := s.registry.Snapshot(runID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if run.Status != model.RunStatusCompleted {
		writeError(w, http.StatusConflict, eris.Errorf("run %s is %s, results require completed", runID, run.Status))
		return
	}
	writeJSON(w, http.StatusOK, run.Results)
}

// handleEvents streams the run's event log over SSE. Replay of the full
// history comes first, then live events until the run finalizes or the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	events, cancel, err := s.registry.Subscribe(runID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, eris.New("server: streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				zap.L().Warn("server: marshal event", zap.Error(err))
				continue
			}
			if _, err := w.Write([]byte("event: " + string(ev.Type) + "\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	run, err := s.registry.Snapshot(runID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if run.Status != model.RunStatusCompleted {
		writeError(w, http.StatusConflict, eris.Errorf("run %s is %s, report requires completed", runID, run.Status))
		return
	}

	path, err := s.reports.BuildXLSX(run)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="run_`+runID+`.xlsx"`)
	http.ServeFile(w, r, path)
}

func statusFor(err error) int {
	switch {
	case eris.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case eris.Is(err, model.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
