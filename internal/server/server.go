package server

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/kdriss/caf/internal/repo"
)

// Server serves the live dashboard over HTTP and WebSocket for a single open
// Repo. It is additive: nothing in the core facade depends on it, and a
// caller only pays for it by constructing one.
type Server struct {
	addr        string
	webFS       fs.FS
	rateLimiter *rateLimiter
	httpServer  *http.Server
	logger      *slog.Logger

	session *RepoSession

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer constructs a Server bound to an already-open Repo. The caller is
// responsible for calling Repo.Watch() beforehand if push updates over the
// WebSocket are wanted; without it, /api/ws still works but only ever sends
// the initial snapshot.
func NewServer(r *repo.Repo, addr string, webFS fs.FS) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.Default()

	s := &Server{
		addr:        addr,
		webFS:       webFS,
		rateLimiter: newRateLimiter(100, 200, time.Second),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.session = NewRepoSession(SessionConfig{
		ID:        "local",
		Repo:      r,
		CacheSize: readCacheSize(),
		Logger:    logger,
	})

	return s
}

// readCacheSize reads the cache size from the CAF_CACHE_SIZE env var.
func readCacheSize() int {
	cacheSize := defaultCacheSize
	if raw := os.Getenv("CAF_CACHE_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cacheSize = n
		}
	}
	return cacheSize
}

// Start begins serving and blocks until the server exits or encounters a
// fatal error.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/config", s.handleConfig)

	const apiWriteDeadline = 30 * time.Second

	// Token costs reflect each route's actual backend work: status re-walks
	// and re-hashes the live working directory whenever the repo's status
	// cache has been invalidated, diff only pays that cost on a cache miss, and log just
	// walks already-stored commit objects.
	const (
		statusCost = 5
		diffCost   = 3
		logCost    = 1
	)

	s.session.Start()

	mux.HandleFunc("/api/status", writeDeadline(apiWriteDeadline, s.rateLimiter.middlewareCost(statusCost, s.handleStatus)))
	mux.HandleFunc("/api/log", writeDeadline(apiWriteDeadline, s.rateLimiter.middlewareCost(logCost, s.handleLog)))
	mux.HandleFunc("/api/diff", writeDeadline(apiWriteDeadline, s.rateLimiter.middlewareCost(diffCost, s.handleDiff)))
	mux.HandleFunc("/api/ws", s.handleWebSocket)

	handler := requestLogger(s.logger, mux)

	// WriteTimeout must remain 0 because WebSocket connections are long-lived.
	// Non-WebSocket handlers enforce per-response write deadlines via the
	// writeDeadline middleware applied at the route level.
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("dashboard server starting", "addr", "http://"+s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and its session.
func (s *Server) Shutdown() {
	start := time.Now()
	s.logger.Info("server shutting down")

	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "err", err)
		}
	}

	s.cancel()
	s.rateLimiter.Close()
	s.wg.Wait()

	s.session.Close()

	s.logger.Info("server shutdown complete", "elapsed", time.Since(start).Round(time.Millisecond))
}
