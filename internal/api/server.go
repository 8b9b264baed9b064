// Package api serves the read-only presentation feed: the current snapshot
// over HTTP and a stream of snapshots over WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rccstake/rccstake/internal/config"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/metrics"
	"github.com/rccstake/rccstake/internal/position"
	"github.com/rccstake/rccstake/internal/util"
)

// Source is the state the feed publishes. *stake.Engine implements it.
type Source interface {
	View() position.SnapshotView
	Subscribe() (<-chan position.Snapshot, func())
	Precision() int32
}

// Server is the feed HTTP server
type Server struct {
	config     config.APIConfig
	source     Source
	metrics    *metrics.Collector
	version    string
	httpServer *http.Server
	listener   net.Listener
	wsHub      *WebSocketHub
	startedAt  time.Time

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Per-IP rate limiters
	rateLimiters sync.Map
}

// rateLimiterEntry holds a rate limiter and the last time it was used.
// lastSeen is unix nanoseconds; requests update it concurrently.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewServer creates a feed server for source. m may be nil.
func NewServer(cfg config.APIConfig, source Source, m *metrics.Collector, version string) *Server {
	return &Server{
		config:  cfg,
		source:  source,
		metrics: m,
		version: version,
		wsHub:   NewWebSocketHub(m),
	}
}

// Start binds the listen address and serves until Stop or ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.listener = ln
	s.running = true
	s.startedAt = time.Now()
	s.wsHub = NewWebSocketHub(s.metrics)

	if s.config.RateLimit > 0 {
		util.GoGroup(&s.wg, "api.ratelimit-cleanup", func() { s.rateLimiterCleanup(ctx) })
	}
	util.GoGroup(&s.wg, "api.ws-hub", func() { s.wsHub.Run(ctx) })
	util.GoGroup(&s.wg, "api.feed", func() { s.forward(ctx) })

	// ReadHeaderTimeout only, so long-lived WebSocket connections are not
	// cut by a read deadline.
	s.httpServer = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      0,
	}
	util.GoGroup(&s.wg, "api.http", func() {
		logging.Info("feed API listening", "addr", ln.Addr().String(), logging.Component("api"))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("feed API server error", logging.Err(err), logging.Component("api"))
		}
	})
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down and waits for its goroutines
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	s.wg.Wait()

	logging.Info("feed API stopped", logging.Component("api"))
	if err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}

// forward pushes every store snapshot to the WebSocket clients
func (s *Server) forward(ctx context.Context) {
	snapshots, cancel := s.source.Subscribe()
	defer cancel()

	precision := s.source.Precision()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			s.wsHub.Broadcast(MessageSnapshot, snap.View(precision))
		}
	}
}

// buildRouter builds the HTTP router with all handlers
func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.withCORS(s.handleHealth))
	mux.HandleFunc("/position", s.withMiddleware(s.handlePosition))
	mux.HandleFunc("/pending", s.withMiddleware(s.handlePending))
	mux.HandleFunc("/ws", s.withMiddleware(s.handleWebSocket))
	mux.Handle("/metrics", s.metrics.Handler())

	return mux
}

// withCORS only applies CORS headers
func (s *Server) withCORS(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}
}

// withMiddleware wraps a handler with CORS and per-IP rate limiting
func (s *Server) withMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return s.withCORS(func(w http.ResponseWriter, r *http.Request) {
		if s.config.RateLimit > 0 {
			ip := clientIP(r)
			if !s.getRateLimiter(ip).Allow() {
				logging.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					logging.Component("api"))
				w.Header().Set("Retry-After", "60")
				s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		handler(w, r)
	})
}

// getRateLimiter returns the rate limiter for ip, creating it on first use
func (s *Server) getRateLimiter(ip string) *rate.Limiter {
	now := time.Now()
	if val, ok := s.rateLimiters.Load(ip); ok {
		entry := val.(*rateLimiterEntry)
		entry.lastSeen.Store(now.UnixNano())
		return entry.limiter
	}

	// Requests per minute to requests per second
	rps := rate.Limit(float64(s.config.RateLimit) / 60.0)
	burst := s.config.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	entry := &rateLimiterEntry{limiter: rate.NewLimiter(rps, burst)}
	entry.lastSeen.Store(now.UnixNano())
	actual, _ := s.rateLimiters.LoadOrStore(ip, entry)
	return actual.(*rateLimiterEntry).limiter
}

func (s *Server) rateLimiterCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupRateLimiters(time.Now().Add(-10 * time.Minute))
		}
	}
}

// cleanupRateLimiters drops limiters not seen since staleBefore
func (s *Server) cleanupRateLimiters(staleBefore time.Time) int {
	var cleaned int
	cutoff := staleBefore.UnixNano()
	s.rateLimiters.Range(func(key, value any) bool {
		if value.(*rateLimiterEntry).lastSeen.Load() < cutoff {
			s.rateLimiters.Delete(key)
			cleaned++
		}
		return true
	})
	if cleaned > 0 {
		logging.Debug("cleaned up stale rate limiters", "count", cleaned, logging.Component("api"))
	}
	return cleaned
}

// clientIP uses the TCP peer address. The feed binds to loopback by default
// and trusts no proxy headers.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// setCORSHeaders sets CORS headers for allowed origins
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Add("Vary", "Origin")
}
