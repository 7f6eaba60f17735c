// Package server exposes recorded runs and composite scores over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/catchment-cli/internal/model"
	"github.com/sells-group/catchment-cli/internal/store"
)

// Server serves read-only views of the run ledger.
type Server struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Server backed by st.
func New(st store.Store) *Server {
	return &Server{
		store: st,
		log:   zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi router. An empty origins list disables CORS.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.health)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Get("/thresholds", s.listThresholds)
			r.Get("/scores", s.listScores)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.internal(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listThresholds(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	out, err := s.store.ListThresholds(r.Context(), run.ID)
	if err != nil {
		s.internal(w, "list thresholds", err)
		return
	}
	if out == nil {
		out = []model.ThresholdSummary{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listScores(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	out, err := s.store.ListScores(r.Context(), run.ID, r.URL.Query().Get("dataset"))
	if err != nil {
		s.internal(w, "list scores", err)
		return
	}
	if out == nil {
		out = []model.DatasetScore{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		s.internal(w, "get run", err)
		return nil, false
	}
	return run, true
}

func (s *Server) internal(w http.ResponseWriter, action string, err error) {
	s.log.Error("server: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
