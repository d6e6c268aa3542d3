package server

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aeolun/gameserverlist/pkg/registry"
)

var debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)

// Server ties the registry, the connection sessions and the HTTP
// surface together.
type Server struct {
	config     ServerConfig
	registry   *registry.Store
	sessions   *SessionManager
	trust      *TrustSet
	metrics    *Metrics
	httpServer *http.Server
	startTime  time.Time
	shutdown   chan struct{}
	wg         sync.WaitGroup
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort             int
	TrustedAddresses     []string
	PublicAddress        string
	IdleTimeoutSeconds   int
	SweepIntervalSeconds int
	MaxFrameBytes        int
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:             3000,
		IdleTimeoutSeconds:   300, // 5 minutes without a frame
		SweepIntervalSeconds: 30,
		MaxFrameBytes:        4096,
	}
}

// NewServer creates a new server instance
func NewServer(config ServerConfig) (*Server, error) {
	var public netip.Addr
	if config.PublicAddress != "" {
		addr, err := netip.ParseAddr(config.PublicAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid public address %q: %w", config.PublicAddress, err)
		}
		public = addr.Unmap()
	}

	trust, err := NewTrustSet(config.TrustedAddresses, public)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:    config,
		registry:  registry.NewStore(),
		sessions:  NewSessionManager(),
		trust:     trust,
		startTime: time.Now(),
		shutdown:  make(chan struct{}),
	}, nil
}

// SetMetrics attaches Prometheus metrics to the server
func (s *Server) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
}

// EnableDebugLogging turns on verbose per-session logging
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// Handler returns the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/list/servers", s.ServersHandler)
	mux.HandleFunc("/api/list/healthcheck", s.HealthHandler)
	mux.HandleFunc("/api/list/ws", s.HandleWebSocket)
	// Keep metrics on the root path so a proxy forwarding /api/list
	// doesn't expose it
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server and the idle sweeper
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{Handler: s.Handler()}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	s.wg.Add(1)
	go s.sweepLoop()

	log.Printf("HTTP server listening on %s", addr)
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	close(s.shutdown)

	if s.httpServer != nil {
		// Hijacked WebSocket connections are not tracked by the HTTP
		// server; CloseAll below takes care of those
		s.httpServer.Close()
	}
	s.sessions.CloseAll()

	// Wait for the sweeper, the serve loop and all message loops
	s.wg.Wait()
	return nil
}

// sweepLoop periodically closes connections that stopped sending
// frames. The read deadline catches most of these; the sweep covers
// peers that keep the TCP connection alive without ever reading or
// writing.
func (s *Server) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.config.SweepIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.sweepIdleSessions()
		}
	}
}

// sweepIdleSessions closes sessions silent beyond the idle timeout.
// Closing the socket makes the session's own message loop run the
// teardown, so removal still happens in exactly one place.
func (s *Server) sweepIdleSessions() {
	timeout := time.Duration(s.config.IdleTimeoutSeconds) * time.Second
	cutoff := time.Now().Add(-timeout).UnixMilli()

	for _, sess := range s.sessions.GetAllSessions() {
		if sess.lastSeen.Load() < cutoff {
			log.Printf("Closing idle session %d (silent for over %v)", sess.ID, timeout)
			if s.metrics != nil {
				s.metrics.RecordReaped()
			}
			sess.conn.Close()
		}
	}
}

// Registry exposes the store for health tooling and tests.
func (s *Server) Registry() *registry.Store {
	return s.registry
}
