// Package api provides the OTMapKit REST API server. Clients submit
// load-convert-save jobs against files under a base directory and follow
// their progress over a WebSocket.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/OTMapKit/internal/cache"
	"github.com/FocuswithJustin/OTMapKit/internal/logging"
	"github.com/FocuswithJustin/OTMapKit/internal/manager"
)

// Map summaries served by /api/info are kept this long, keyed by file
// revision.
const (
	infoTTL     = 5 * time.Minute
	infoEntries = 64
)

// Server is the REST API server. Its zero value is not usable; call New.
type Server struct {
	cfg      Config
	mgr      *manager.Manager
	jobs     *JobStore
	hub      *Hub
	upgrader websocket.Upgrader
	submit   http.Handler
	info     *cache.TTLCache[infoKey, mapInfoResponse]
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server around mgr. The hub and the rate limiter run
// until Close is called.
func New(mgr *manager.Manager, cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		mgr:     mgr,
		jobs:    NewJobStore(cfg.MaxJobs),
		hub:     NewHub(),
		info:    cache.New[infoKey, mapInfoResponse](infoTTL, infoEntries),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
	}
	s.submit = http.HandlerFunc(s.createJobHandler)
	if cfg.RateLimitRequests > 0 {
		rl := NewRateLimiter(ctx, RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
		s.submit = rl.Middleware(s.submit)
		logging.Info("rate limiting enabled",
			"requests_per_minute", cfg.RateLimitRequests,
			"burst_size", rl.config.BurstSize)
	}
	go s.hub.Run(ctx)
	return s
}

// Jobs exposes the job store.
func (s *Server) Jobs() *JobStore { return s.jobs }

// Hub exposes the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler with authentication and request
// logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/formats", s.handleFormats)
	mux.HandleFunc("/api/detect", s.handleDetect)
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJobByID)
	mux.HandleFunc("/ws", s.handleWebSocket)

	var handler http.Handler = mux
	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
	}
	return logging.CombinedMiddleware(handler)
}

// Close cancels running jobs, disconnects WebSocket clients and waits for
// the job runners to return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if info, err := os.Stat(s.cfg.BaseDir); err != nil || !info.IsDir() {
		return fmt.Errorf("base directory %s is not a directory", s.cfg.BaseDir)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	logging.SecurityEvent("authentication_configured", "api", "enabled", s.cfg.Auth.Enabled)
	if len(s.cfg.AllowedOrigins) == 0 {
		logging.SecurityEvent("websocket_origins", "api", "mode", "same-host")
	}
	logging.ServerStartup("rest_api", "http", port,
		"websocket_protocol", "ws",
		"base_dir", s.cfg.BaseDir,
		"max_jobs", s.cfg.MaxJobs)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	logging.InfoContext(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
