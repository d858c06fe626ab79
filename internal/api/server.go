package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/MJE43/minesweep-relay/internal/game"
	"github.com/MJE43/minesweep-relay/internal/store"
)

// LiveSessions reports how many UDP peers currently hold a session.
type LiveSessions interface {
	ActiveSessions() int
}

// Server is the read-only admin API over the session ledger.
type Server struct {
	db           store.DB
	live         LiveSessions
	errorHandler *ErrorHandler
	log          *logrus.Entry
	startTime    time.Time
}

// NewServer creates a new API server. live may be nil when no game server
// runs in the same process.
func NewServer(db store.DB, live LiveSessions, log *logrus.Entry) *Server {
	s := &Server{
		db:           db,
		live:         live,
		errorHandler: NewErrorHandler(log),
		log:          log,
		startTime:    time.Now(),
	}
	log.WithFields(logrus.Fields{
		"database_enabled": db != nil,
		"engine_version":   EngineVersion,
	}).Info("admin api ready")
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/presets", s.handlePresets)
		r.Get("/stats", s.handleStats)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
		}).Debug("request")
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	resp := PresetsResponse{EngineVersion: EngineVersion}
	for _, name := range game.PresetNames() {
		cfg, _ := game.Preset(name)
		resp.Presets = append(resp.Presets, PresetInfo{Name: name, Config: cfg})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	stats, err := s.db.Stats()
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}

	q := store.SessionsQuery{Outcome: r.URL.Query().Get("outcome")}
	switch q.Outcome {
	case "", string(game.OutcomeInProgress), string(game.OutcomeWon), string(game.OutcomeLost), string(game.OutcomeQuit):
	default:
		s.errorHandler.HandleValidationError(w, r, "outcome", "unknown outcome "+strconv.Quote(q.Outcome))
		return
	}

	var ok bool
	if q.Page, ok = s.intParam(w, r, "page"); !ok {
		return
	}
	if q.PerPage, ok = s.intParam(w, r, "perPage"); !ok {
		return
	}

	list, err := s.db.ListSessions(q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := s.db.GetSession(id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorHandler.HandleNotFound(w, r, "session", id)
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// intParam reads an optional non-negative query parameter. Zero means unset.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.errorHandler.HandleInvalidParams(w, r, name, raw)
		return 0, false
	}
	return n, true
}

func (s *Server) requireDB(w http.ResponseWriter, r *http.Request) bool {
	if s.db != nil {
		return true
	}
	engineErr := NewError(ErrTypeServiceUnavailable, "Session ledger is disabled").
		WithRequestID(middleware.GetReqID(r.Context())).
		Build()
	s.errorHandler.HandleError(w, r, engineErr, http.StatusServiceUnavailable)
	return false
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("encode response")
	}
}
