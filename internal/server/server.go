// Package server implements spec §6's HTTP surface: the ingress routes
// that accept generation/transcription submissions, expose job state and
// delivery confirmation, manage activated-channel overrides and the
// denylist, and serve the public health/metrics/avatar endpoints.
//
// Grounded on the teacher's internal/fabricserver.Server: a stdlib
// http.ServeMux with constructor-time route registration, a
// context-driven graceful Start, and a logging middleware wrapper — no
// third-party router, matching the teacher's own choice not to import one.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aceteam-ai/conduit/internal/blob"
	"github.com/aceteam-ai/conduit/internal/dedup"
	"github.com/aceteam-ai/conduit/internal/models"
	"github.com/aceteam-ai/conduit/internal/queue"
	"github.com/gorilla/websocket"
)

// Dedup is the narrow seam into internal/dedup.Deduplicator that
// handleGenerate needs; handleTranscribe enqueues without it.
type Dedup interface {
	Reserve(ctx context.Context, fingerprint, jobID string) (string, bool, error)
}

// JobQueue is the narrow seam into internal/queue.Client.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, payload map[string]any, opts queue.EnqueueOptions) (string, error)
	GetJob(ctx context.Context, jobID string) (map[string]string, error)
}

// JobWaiter is the narrow seam into internal/queue.Events.
type JobWaiter interface {
	WaitUntilFinished(ctx context.Context, jobID string, timeout time.Duration) (*queue.Event, error)
}

// ChannelStore is the narrow seam into internal/store/postgres.Store's
// activated-channel methods.
type ChannelStore interface {
	GetActivatedChannel(ctx context.Context, channelID string) (*models.ActivatedChannel, error)
	ListActivatedChannelsByGuild(ctx context.Context, guildID string, limit int) ([]models.ActivatedChannel, error)
	UpsertActivatedChannel(ctx context.Context, c models.ActivatedChannel) error
	DeleteActivatedChannel(ctx context.Context, channelID string) error
}

// DenylistStore is the narrow seam into internal/store/postgres.Store's
// denylist methods.
type DenylistStore interface {
	ListDenylistEntries(ctx context.Context) ([]models.DenylistEntry, error)
	CreateDenylistEntry(ctx context.Context, e models.DenylistEntry) error
	DeleteDenylistEntry(ctx context.Context, id string) error
}

// DeliveryStore is the narrow seam into internal/store/postgres.Store's
// job-result methods.
type DeliveryStore interface {
	GetJobResult(ctx context.Context, jobID string) (*models.JobResult, error)
	ConfirmDelivery(ctx context.Context, jobID string) error
}

// StopSequenceAggregator is the narrow seam into
// internal/telemetry.StopSequenceRecorder.
type StopSequenceAggregator interface {
	Aggregate(ctx context.Context) (map[string]int64, error)
}

// AttachmentStager is the narrow seam into internal/blob.Store's
// attachment-staging half.
type AttachmentStager interface {
	StageAttachment(ctx context.Context, requestID string, index int, sourceURL, name string) (blob.StagedAttachment, error)
}

// AvatarPather is the narrow seam into internal/blob.Store's avatar half.
type AvatarPather interface {
	AvatarPath(personalityID string) string
}

// Config configures a Server.
type Config struct {
	Addr                  string
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	InternalServiceSecret string // empty disables service-to-service auth (warned about at config load)
	CORSOrigins           string // "*" or a comma-separated allowlist
}

// Dependencies wires every downstream collaborator a route handler calls.
type Dependencies struct {
	Dedup        Dedup
	RateLimiter  *dedup.Limiter
	Queue        JobQueue
	Events       JobWaiter
	Channels     ChannelStore
	Denylist     DenylistStore
	Delivery     DeliveryStore
	Telemetry    StopSequenceAggregator
	Attachments  AttachmentStager
	Avatars      AvatarPather
	WaitTimeout  time.Duration // default applied by NewServer if zero
}

// Server is Conduit's HTTP ingress, spec §6.
type Server struct {
	cfg    Config
	deps   Dependencies
	mux    *http.ServeMux
	server *http.Server
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// publicPrefixes lists routes spec §6 names "public; no auth".
var publicPrefixes = []string{"/health", "/metrics", "/avatars/"}

// NewServer builds a Server with every route registered.
func NewServer(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if deps.WaitTimeout == 0 {
		deps.WaitTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		mux:    http.NewServeMux(),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc("POST /ai/generate", s.handleGenerate)
	s.mux.HandleFunc("POST /ai/transcribe", s.handleTranscribe)
	s.mux.HandleFunc("GET /ai/job/{jobId}", s.handleGetJob)
	s.mux.HandleFunc("GET /ai/job/{jobId}/stream", s.handleJobStream)
	s.mux.HandleFunc("POST /ai/job/{jobId}/confirm-delivery", s.handleConfirmDelivery)

	s.mux.HandleFunc("GET /user/channel/list", s.handleListChannels)
	s.mux.HandleFunc("PATCH /user/channel/{channelId}/config-overrides", s.handlePatchChannelOverrides)
	s.mux.HandleFunc("DELETE /user/channel/{channelId}/config-overrides", s.handleDeleteChannelOverrides)

	s.mux.HandleFunc("GET /admin/denylist", s.handleListDenylist)
	s.mux.HandleFunc("POST /admin/denylist", s.handleCreateDenylist)
	s.mux.HandleFunc("DELETE /admin/denylist/{id}", s.handleDeleteDenylist)

	s.mux.HandleFunc("GET /admin/stop-sequences", s.handleStopSequences)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /avatars/{personalityId}", s.handleAvatar)

	return s
}

// Handler exposes the fully wrapped handler, for tests that want to drive
// it with httptest.NewServer without going through Start.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.corsMiddleware(s.authMiddleware(s.mux)))
}

// Start begins listening and blocks until ctx is cancelled or the
// listener fails, mirroring the teacher's fabricserver.Server.Start.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// corsMiddleware applies spec §6's CORS_ORIGINS configuration.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Internal-Service-Secret")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if s.cfg.CORSOrigins == "" || s.cfg.CORSOrigins == "*" {
		return true
	}
	for _, allowed := range strings.Split(s.cfg.CORSOrigins, ",") {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}

// authMiddleware enforces spec §6's "(all others) require service-to-service
// authentication header" rule. An unset InternalServiceSecret disables
// enforcement entirely — config.Load already warns at startup that BYOK-
// adjacent auth is off, so every request is let through rather than
// locking the service out of its own unconfigured deployment.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.InternalServiceSecret == "" || isPublicPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Internal-Service-Secret")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token != s.cfg.InternalServiceSecret {
			writeError(w, errUnauthorized("missing or invalid service-to-service credential"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics is a minimal liveness surface. Spec §1 excludes telemetry/
// metrics emission from the core's scope, so this reports process-level
// facts only (no Prometheus exposition format, no ecosystem metrics
// library pulled in for a route the spec treats as out of scope).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptimeCheckedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	if s.deps.Avatars == nil {
		writeError(w, errNotFound("avatar cache not configured"))
		return
	}
	personalityID := r.PathValue("personalityId")
	http.ServeFile(w, r, s.deps.Avatars.AvatarPath(personalityID))
}
