// Package server provides the HTTP REST API for the factorization engine.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/cache"
	"github.com/jonathan/factor-engine/internal/config"
	"github.com/jonathan/factor-engine/internal/db"
	"github.com/jonathan/factor-engine/internal/engine"
	"github.com/jonathan/factor-engine/internal/export"
	"github.com/jonathan/factor-engine/internal/lookup"
	"github.com/jonathan/factor-engine/internal/metrics"
	"github.com/jonathan/factor-engine/internal/server/middleware"
	"github.com/jonathan/factor-engine/internal/server/ratelimit"
	"github.com/jonathan/factor-engine/internal/types"
)

// jobStore is the persistence surface the handlers read from. *db.Store
// satisfies it; tests substitute an in-memory fake. The engine writes
// through its sink, so handlers treat the store as the authoritative
// read path for history that predates this process.
type jobStore interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*types.Job, error)
	ListJobs(ctx context.Context, filters db.JobFilters) ([]*types.Job, error)
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
	ListLogs(ctx context.Context, jobID uuid.UUID, skip, limit int) ([]*types.JobLog, error)
	MaxLogSeq(ctx context.Context, jobID uuid.UUID) (int64, error)
	ListResults(ctx context.Context, jobID uuid.UUID) ([]*types.JobResult, error)
	CreateUpload(ctx context.Context, upload *types.Upload, rows []types.UploadRow) error
	GetUpload(ctx context.Context, token uuid.UUID) (*types.Upload, error)
	ListUploadRows(ctx context.Context, token uuid.UUID) ([]types.UploadRow, error)
	Ping(ctx context.Context) error
}

// Server owns the HTTP stack and the engine runtime behind it.
type Server struct {
	httpServer  *http.Server
	db          *db.Store
	store       jobStore
	engine      *engine.Engine
	queue       *engine.Queue
	factorCache *cache.Cache
	exporter    *export.Service
	collector   *metrics.Collector
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	userService *UserService
	authHandler *AuthHandler
	authEnabled bool
}

// New wires the full server: store, engine, queue, rate limiter, and
// routes. It fails rather than degrade when a required backend is missing.
func New(cfg *config.Config) (*Server, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Jobs left running by a crashed process can never be claimed again;
	// put them back to pending so rehydration re-queues them and their
	// checkpoints pick up where the old process stopped.
	if n, err := database.ResetStaleRunning(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to reset stale jobs: %w", err)
	} else if n > 0 {
		log.Printf("Reset %d stale running jobs to pending", n)
	}

	s := &Server{
		db:          database,
		store:       database,
		collector:   metrics.NewCollector(),
		authEnabled: cfg.Auth.Enabled,
	}

	// Build the engine around the database sink so every state change is
	// persisted as it happens.
	engineOpts := []engine.Option{
		engine.WithSink(db.NewSink(database)),
		engine.WithMetrics(s.collector),
		engine.WithCheckpointInterval(cfg.Engine.CheckpointInterval),
	}

	if cfg.Cache.Enabled {
		factorCache, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to open factor cache: %w", err)
		}
		s.factorCache = factorCache
		engineOpts = append(engineOpts, engine.WithFactorCache(factorCache))
	}

	if cfg.FactorDB.Enabled {
		client := lookup.New(cfg.FactorDB.BaseURL, cfg.FactorDB.Timeout)
		engineOpts = append(engineOpts, engine.WithRemoteLookup(client))
	}

	s.engine = engine.New(engineOpts...)

	queueOpts := []engine.QueueOption{
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithQueueSize(cfg.Engine.QueueSize),
	}
	if cfg.Engine.JobTimeout > 0 {
		queueOpts = append(queueOpts, engine.WithJobTimeout(cfg.Engine.JobTimeout))
	}
	s.queue = engine.NewQueue(s.engine, queueOpts...)

	s.exporter = export.NewService(database)

	// Pick up jobs the previous process left unfinished.
	if err := s.rehydrate(ctx); err != nil {
		database.Close()
		return nil, err
	}

	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	s.userService = NewUserService(database, passwordConfig)

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		if cfg.Auth.Enabled {
			database.Close()
			return nil, fmt.Errorf("failed to create JWT config: %w", err)
		}
		// Auth is optional; without a JWT secret the auth endpoints simply
		// do not exist.
		log.Printf("JWT not configured, auth endpoints disabled: %v", err)
	} else {
		s.jwtService = NewJWTService(jwtConfig)
		s.authHandler = NewAuthHandler(s.userService, s.jwtService)
	}

	mux := http.NewServeMux()

	// Job lifecycle
	mux.HandleFunc("POST /jobs", s.protected(s.handleCreateJob))
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /jobs/{id}", s.protected(s.handleDeleteJob))
	mux.HandleFunc("POST /jobs/{id}/control", s.protected(s.handleControlJob))
	mux.HandleFunc("GET /jobs/{id}/logs", s.handleJobLogs)
	mux.HandleFunc("GET /jobs/{id}/results", s.handleJobResults)
	mux.HandleFunc("GET /jobs/{id}/stream", s.handleJobStream)

	// Batch ingestion
	mux.HandleFunc("POST /uploads/csv", s.protected(s.handleUploadCSV))
	mux.HandleFunc("GET /uploads/{token}", s.handleGetUpload)
	mux.HandleFunc("POST /uploads/{token}/jobs", s.protected(s.handleUploadJobs))

	// Equation analysis
	mux.HandleFunc("GET /equations/curve", s.handleEquationCurve)
	mux.HandleFunc("GET /equations/bounds", s.handleEquationBounds)

	mux.HandleFunc("GET /export/jobs.xlsx", s.handleExportJobs)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Auth endpoints exist only when a JWT secret is configured
	if s.jwtService != nil {
		mux.HandleFunc("POST /auth/register", s.handleRegister)
		mux.HandleFunc("POST /auth/login", s.handleLogin)
		mux.HandleFunc("GET /auth/me", s.requireAuth(s.handleMe))
		mux.HandleFunc("PUT /auth/password", s.requireAuth(s.handleUpdatePassword))
	}

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.withMetrics(mux)))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams and deep searches outlive any fixed limit
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// rehydrate re-registers unfinished jobs from the database so work
// interrupted by a restart is not lost. Pending jobs go straight back on the
// queue; paused jobs wait for an explicit resume, so a pause survives
// restarts.
func (s *Server) rehydrate(ctx context.Context) error {
	jobs, err := s.db.ListResumable(ctx)
	if err != nil {
		return fmt.Errorf("failed to list resumable jobs: %w", err)
	}

	restored := 0
	for _, job := range jobs {
		seq, err := s.db.MaxLogSeq(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("failed to read log sequence for job %s: %w", job.ID, err)
		}
		if err := s.engine.Restore(job, seq); err != nil {
			log.Printf("Skipping job %s during rehydration: %v", job.ID, err)
			continue
		}
		restored++
		if job.Status == types.StatusPending {
			if err := s.queue.Enqueue(job.ID); err != nil {
				log.Printf("Could not queue restored job %s: %v", job.ID, err)
			}
		}
	}

	if restored > 0 {
		log.Printf("Restored %d unfinished jobs from the database", restored)
	}
	return nil
}

// Start serves requests until SIGINT or SIGTERM, then shuts down with a
// 30-second grace period.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Drain the worker pool. Jobs still running when the deadline hits keep
	// their checkpoints; the next start resumes them.
	if s.queue != nil {
		s.queue.Shutdown(ctx)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.factorCache != nil {
		if err := s.factorCache.Close(); err != nil {
			log.Printf("Error closing factor cache: %v", err)
		}
	}

	s.db.Close()
	log.Println("Server stopped")
	return nil
}

// protected wraps h with bearer-token enforcement when auth is enabled.
// With auth disabled the handler is served as-is.
func (s *Server) protected(h http.HandlerFunc) http.HandlerFunc {
	if !s.authEnabled || s.jwtService == nil {
		return h
	}
	return s.requireAuth(h)
}

// requireAuth always enforces a valid bearer token. Wrapped handlers can
// rely on middleware.GetUserID succeeding.
func (s *Server) requireAuth(h http.HandlerFunc) http.HandlerFunc {
	authed := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(h)
	return authed.ServeHTTP
}

// withCORS answers preflight requests and opens the API to browser
// clients on any origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit checks the per-client budget before any handler runs.
// X-RateLimit headers go out on allowed and denied requests alike.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging writes one line on arrival and one with the elapsed time.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// statusRecorder captures the response status for the metrics middleware.
// It forwards Flush so SSE handlers still see a flusher.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withMetrics records request counts and latencies. It wraps the mux
// directly so the matched route pattern is available as the path label
// rather than the raw URL.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.collector == nil {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		s.collector.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start).Seconds())
	})
}

// handleHealth returns server health status including database reachability
// and the current queue backlog.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}

	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			health["status"] = "degraded"
			health["database"] = err.Error()
			s.jsonResponse(w, http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "ok"
	}
	if s.queue != nil {
		health["queue_depth"] = s.queue.Depth()
	}

	s.jsonResponse(w, http.StatusOK, health)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// The auth routes delegate to AuthHandler; the wrappers here resolve the
// authenticated user from the request context first where one is needed.

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.authHandler.Register(w, r)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.authHandler.Login(w, r)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	s.authHandler.MeWithUserID(w, r, userID)
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	s.authHandler.UpdatePasswordWithUserID(w, r, userID)
}

// extractClientID keys rate limiting by client IP. RemoteAddr is the only
// source we trust until a proxy sits in front; X-Forwarded-For from an
// unknown hop is attacker-controlled.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse answers a denied request with 429 and enough detail
// for a client to schedule its retry.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] denied request: limit=%d remaining=%d reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
