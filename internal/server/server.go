// Package server provides the HTTP API for phylogeny jobs and structure lookups.
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
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/bioview/internal/config"
	"github.com/jonathan/bioview/internal/phylogeny"
	"github.com/jonathan/bioview/internal/server/middleware"
	"github.com/jonathan/bioview/internal/server/ratelimit"
	"github.com/jonathan/bioview/internal/structure"
)

// PhylogenyService submits and polls phylogeny jobs.
type PhylogenyService interface {
	Submit(ctx context.Context, req phylogeny.SubmitRequest) (*phylogeny.Envelope, error)
	Poll(ctx context.Context, jobID string) (*phylogeny.Envelope, error)
}

// StructureService looks up structure metadata.
type StructureService interface {
	Metadata(ctx context.Context, id string) (*structure.Metadata, error)
	MetadataBatch(ctx context.Context, ids []string) ([]structure.BatchResult, error)
	Coordinates(ctx context.Context, id string) (*structure.Coordinates, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	handler      http.Handler
	phylogeny    PhylogenyService
	structures   StructureService
	rateLimiter  *ratelimit.Limiter
	jwtService   *JWTService
	pollInterval time.Duration
	ping         func(context.Context) error
	onShutdown   func()
}

// Config holds server configuration
type Config struct {
	Port       string
	Phylogeny  PhylogenyService
	Structures StructureService

	// RateLimit defaults to ratelimit.LoadConfig() when nil.
	RateLimit *ratelimit.Config
	// JWT enables bearer authentication on /api/ routes when set.
	JWT *config.JWTConfig
	// PollInterval paces the progress event stream.
	PollInterval time.Duration
	// Ping reports backing store health for /health. Optional.
	Ping func(context.Context) error
	// OnShutdown runs after the HTTP server has stopped. Optional.
	OnShutdown func()
}

// maxBatchSize bounds POST /api/structures/batch.
const maxBatchSize = 50

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Phylogeny == nil || cfg.Structures == nil {
		return nil, fmt.Errorf("server requires phylogeny and structure services")
	}
	if cfg.Port == "" {
		cfg.Port = config.DefaultPort
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = ratelimit.LoadConfig()
	}

	s := &Server{
		phylogeny:    cfg.Phylogeny,
		structures:   cfg.Structures,
		rateLimiter:  ratelimit.NewLimiter(cfg.RateLimit),
		pollInterval: cfg.PollInterval,
		ping:         cfg.Ping,
		onShutdown:   cfg.OnShutdown,
	}
	if cfg.JWT != nil {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Phylogeny jobs
	mux.HandleFunc("POST /api/phylogeny", s.handleSubmitPhylogeny)
	mux.HandleFunc("GET /api/phylogeny", s.handlePollPhylogeny)
	mux.HandleFunc("GET /api/phylogeny/{jobId}", s.handlePollPhylogeny)
	mux.HandleFunc("GET /api/phylogeny/{jobId}/events", s.handlePhylogenyEvents)
	mux.HandleFunc("/api/phylogeny", s.methodNotAllowed("GET, POST, OPTIONS"))
	mux.HandleFunc("/api/phylogeny/{jobId}", s.methodNotAllowed("GET, OPTIONS"))
	mux.HandleFunc("/api/phylogeny/{jobId}/events", s.methodNotAllowed("GET, OPTIONS"))

	// Structures
	mux.HandleFunc("POST /api/structures/batch", s.handleStructureBatch)
	mux.HandleFunc("GET /api/structures/{id}", s.handleGetStructure)
	mux.HandleFunc("GET /api/structures/{id}/coordinates", s.handleGetCoordinates)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(s.withAuth(mux))))

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         ":" + strings.TrimPrefix(cfg.Port, ":"),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // event streams stay open until the job is terminal
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM.
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("[server] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.Close()
	log.Println("[server] stopped")
	return nil
}

// Close stops background work. It does not stop a running listener.
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.onShutdown != nil {
		s.onShutdown()
		s.onShutdown = nil
	}
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
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

// withAuth requires a bearer token on /api/ routes when JWT is configured.
func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.jwtService == nil {
		return next
	}
	protected := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			protected.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets event streams through the logging middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging with a request id
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[%s] %s %s %s -> %d in %v", r.Method, r.URL.Path, r.RemoteAddr, requestID, rec.status, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			log.Printf("[server] health check failed: %v", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// methodNotAllowed answers verbs a route does not support.
func (s *Server) methodNotAllowed(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		s.errorResponse(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	}
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[server] error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID returns the client IP from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate limit exceeded, try again later",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] limit exceeded: Limit=%d Remaining=%d", info.Limit, info.Remaining)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
