package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guardianai/patch-orchestrator/internal/domain"
	"github.com/guardianai/patch-orchestrator/internal/githubapi"
	"github.com/guardianai/patch-orchestrator/internal/orchestrator"
	"github.com/guardianai/patch-orchestrator/internal/patchstore"
	"github.com/guardianai/patch-orchestrator/internal/signing"
)

// ChecksClient relays check-run creation to the hosting API
type ChecksClient interface {
	CreateCheckRun(ctx context.Context, owner, repo string, run githubapi.CheckRun) (json.RawMessage, error)
}

// Server is the HTTP API server
type Server struct {
	orch     *orchestrator.Orchestrator
	store    *patchstore.Store
	signer   *signing.Signer
	checks   ChecksClient
	adminKey string
	addr     string
	logger   *slog.Logger
	router   chi.Router
	sseHub   *SSEHub
}

// NewServer creates the API server. An empty adminKey leaves the admin
// endpoints open; a warning is logged on every unauthenticated admin call.
func NewServer(orch *orchestrator.Orchestrator, store *patchstore.Store, signer *signing.Signer, checks ChecksClient, adminKey, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orch:     orch,
		store:    store,
		signer:   signer,
		checks:   checks,
		adminKey: adminKey,
		addr:     addr,
		logger:   logger,
		router:   chi.NewRouter(),
		sseHub:   NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.healthHandler())

	r.Post("/autofix", s.scanHandler(false))
	r.Post("/scan", s.scanHandler(true))
	r.Post("/demo-edits", s.demoEditsHandler())

	r.Get("/autoscan/repos", s.listReposHandler())
	r.Post("/autoscan/repos", s.saveReposHandler())

	r.Get("/proposals", s.listProposalsHandler())
	r.Post("/proposals/{id}/approve", s.approveProposalHandler())

	r.Get("/patches", s.listPatchesHandler())
	r.Get("/patches/download-all", s.downloadAllHandler())
	r.Get("/patches/download-zip", s.downloadZipHandler())
	r.Get("/patches/{id}", s.getPatchHandler())
	r.Get("/patches/{id}/download", s.downloadPatchHandler())
	r.Post("/patches/{id}/sign", s.requireAdmin(s.signPatchHandler()))
	r.Get("/patches/{id}/certificate", s.certificateHandler())
	r.Get("/patches/{id}/certificate.pdf", s.certificatePDFHandler())

	r.Post("/ci/check-run", s.requireAdmin(s.checkRunHandler()))

	r.Get("/events", s.sseHandler())
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains connections
func (s *Server) Start(ctx context.Context) error {
	go s.sseHub.Run()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("http server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// requireAdmin gates a handler behind the shared admin key, accepted as the
// X-Admin-Key header or the adminKey query parameter.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			s.logger.Warn("admin endpoint called without a configured admin key", "path", r.URL.Path)
			next(w, r)
			return
		}
		key := r.Header.Get("X-Admin-Key")
		if key == "" {
			key = r.URL.Query().Get("adminKey")
		}
		if key != s.adminKey {
			writeError(w, http.StatusUnauthorized, domain.ErrAdminUnauthorized.Error())
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeDomainError maps domain errors onto HTTP statuses. Quota exhaustion
// keeps the retry hint in the body next to the error.
func writeDomainError(w http.ResponseWriter, err error) {
	var quotaErr *domain.QuotaError
	if errors.As(err, &quotaErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":         "AI quota exceeded. Please try again later.",
			"quotaExceeded": true,
			"retryAfter":    quotaErr.RetryAfter,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrMissingRepository),
		errors.Is(err, domain.ErrInvalidRepoURL),
		errors.Is(err, domain.ErrNotPending),
		errors.Is(err, domain.ErrNotSigned):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPublishingDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, domain.ErrGenerationUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
