// Package api serves the read-only cleanroom status API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/vexxhost/migratekit-cleanroom/internal/api/docs"
	"github.com/vexxhost/migratekit-cleanroom/internal/database"
	"github.com/vexxhost/migratekit-cleanroom/internal/recovery"
	"github.com/vexxhost/migratekit-cleanroom/internal/services"
)

const version = "1.0.0"

// Snapshots is the part of services.SnapshotService the server reads.
type Snapshots interface {
	Snapshots() []*services.GroupSnapshot
	Snapshot(name string) (*services.GroupSnapshot, bool)
	Refresh(ctx context.Context) error
	Status() services.ServiceStatus
}

// Config contains server configuration
type Config struct {
	Listen    string
	Debug     bool
	Snapshots Snapshots
	// Ledger is reported by /health when set.
	Ledger database.Connection
}

// Server is the status API server
type Server struct {
	config *Config
	router *mux.Router
}

func NewServer(config *Config) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if config.Snapshots == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}

	s := &Server{config: config, router: mux.NewRouter()}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	if s.config.Debug {
		s.router.Use(s.loggingMiddleware)
	}

	s.router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/groups", s.handleListGroups).Methods("GET")
	api.HandleFunc("/groups/{name}", s.handleGetGroup).Methods("GET")
	api.HandleFunc("/groups/{name}/entities", s.handleListEntities).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Service   string                 `json:"service"`
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Database  string                 `json:"database"`
	Snapshots services.ServiceStatus `json:"snapshots"`
}

// GroupListItem is one row of the group listing
type GroupListItem struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	TargetName  string    `json:"target_name"`
	EntityCount int       `json:"entity_count"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Error       string    `json:"error,omitempty"`
}

// ErrorResponse is returned for every non-2xx answer
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// handleHealth reports service health
// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, HealthResponse{
		Service:   "cleanroom status API",
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version,
		Database:  s.getDatabaseStatus(),
		Snapshots: s.config.Snapshots.Status(),
	})
}

// handleListGroups lists every snapshot
// @Summary List recovery group snapshots
// @Tags groups
// @Produce json
// @Success 200 {array} GroupListItem
// @Router /api/v1/groups [get]
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	snaps := s.config.Snapshots.Snapshots()
	items := make([]GroupListItem, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, GroupListItem{
			ID:          snap.Group.ID,
			Name:        snap.Group.Name,
			TargetName:  snap.Group.TargetName,
			EntityCount: len(snap.Group.EntityIDs),
			RefreshedAt: snap.RefreshedAt,
			Error:       snap.Error,
		})
	}
	s.writeJSONResponse(w, http.StatusOK, items)
}

// handleGetGroup returns one snapshot
// @Summary Get the latest snapshot of a recovery group
// @Tags groups
// @Produce json
// @Param name path string true "Recovery group name"
// @Success 200 {object} services.GroupSnapshot
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/groups/{name} [get]
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSONResponse(w, http.StatusOK, snap)
}

// handleListEntities returns the entities of one snapshot
// @Summary List the entities of a recovery group
// @Tags groups
// @Produce json
// @Param name path string true "Recovery group name"
// @Success 200 {array} recovery.EntitySummary
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/groups/{name}/entities [get]
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lookup(w, r)
	if !ok {
		return
	}
	entities := snap.Entities
	if entities == nil {
		entities = []recovery.EntitySummary{}
	}
	s.writeJSONResponse(w, http.StatusOK, entities)
}

// handleRefresh reloads every snapshot synchronously
// @Summary Refresh every snapshot now
// @Tags groups
// @Produce json
// @Success 202 {object} services.ServiceStatus
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/refresh [post]
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.config.Snapshots.Refresh(r.Context()); err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, "Failed to refresh snapshots", err.Error())
		return
	}
	s.writeJSONResponse(w, http.StatusAccepted, s.config.Snapshots.Status())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*services.GroupSnapshot, bool) {
	name := mux.Vars(r)["name"]
	snap, ok := s.config.Snapshots.Snapshot(name)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "Recovery group not found", name)
		return nil, false
	}
	return snap, true
}

func (s *Server) getDatabaseStatus() string {
	if s.config.Ledger == nil {
		return "disabled"
	}
	return s.config.Ledger.GetStatus()
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message, details string) {
	s.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:     message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		logLevel := log.DebugLevel
		statusPrefix := "✅"
		if wrapped.statusCode >= 400 && wrapped.statusCode < 500 {
			logLevel = log.WarnLevel
			statusPrefix = "⚠️"
		} else if wrapped.statusCode >= 500 {
			logLevel = log.ErrorLevel
			statusPrefix = "❌"
		}

		log.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status_code": wrapped.statusCode,
			"duration_ms": duration.Milliseconds(),
			"remote":      r.RemoteAddr,
			"request_id":  uuid.New().String(),
		}).Logf(logLevel, "%s API request completed", statusPrefix)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", s.config.Listen).Info("🚀 Starting cleanroom status API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status API failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info("Shutting down cleanroom status API")
	return server.Shutdown(shutdownCtx)
}
