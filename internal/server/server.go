package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/endpoint"
	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/measure"
	"github.com/muurk/wbms/internal/notify"
)

// Config holds the bridge configuration
type Config struct {
	Listen     string        // HTTP listen address
	Path       string        // WebSocket endpoint path
	TickPeriod time.Duration // Endpoint Process cadence
	CertFile   string        // TLS certificate (optional)
	KeyFile    string        // TLS private key (optional)

	Endpoint     endpoint.Config
	SlotCapacity int
	Safety       measure.Allocation
	NonSafety    measure.Allocation

	// Clock overrides the millisecond tick source. The default counts from New.
	Clock endpoint.TickSource

	// Notifier additionally receives every completion and event.
	Notifier notify.Notifier
}

// Server bridges WebSocket peers to one endpoint.
type Server struct {
	config   *Config
	started  time.Time
	upgrader websocket.Upgrader

	// mu serializes every call into the endpoint
	mu sync.Mutex
	ep *endpoint.Endpoint

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup

	peersMu sync.Mutex
	peers   map[*peer]struct{}
}

// New creates a bridge and its endpoint
func New(config *Config) (*Server, error) {
	if config.Path == "" {
		config.Path = "/frames"
	}
	if config.TickPeriod <= 0 {
		return nil, fmt.Errorf("tick period must be positive")
	}
	if config.SlotCapacity <= 0 {
		return nil, fmt.Errorf("slot capacity must be positive")
	}

	s := &Server{
		config:  config,
		started: time.Now(),
		peers:   make(map[*peer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	clock := config.Clock
	if clock == nil {
		clock = func() uint32 {
			return uint32(time.Since(s.started) / time.Millisecond)
		}
	}

	ep, err := endpoint.New(config.Endpoint, clock, bridgeNotifier{s}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create endpoint: %w", err)
	}
	slots := make([]measure.Slot, config.SlotCapacity)
	if err := ep.InitMeasurementBuffer(slots, config.Safety, config.NonSafety); err != nil {
		return nil, fmt.Errorf("failed to initialize measurement buffer: %w", err)
	}
	s.ep = ep

	return s, nil
}

// Handler returns the bridge's HTTP handler: the WebSocket endpoint at
// the configured path and a JSON status page at /status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start serves until SIGINT/SIGTERM or a fatal listener error
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	if s.config.CertFile != "" || s.config.KeyFile != "" {
		tlsConfig, err := NewTLSConfig(s.config.CertFile, s.config.KeyFile)
		if err != nil {
			_ = listener.Close()
			return err
		}
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(tlsConfig)))
		listener = tls.NewListener(listener, tlsConfig)
	}
	s.listener = listener

	logging.Info("Starting wBMS bridge",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Duration("tick_period", s.config.TickPeriod),
		zap.Bool("tls", s.config.CertFile != ""),
	)

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()

	tickCtx, cancelTicks := context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tickLoop(tickCtx)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping bridge...")
		cancelTicks()
		return s.Shutdown(context.Background())
	case err := <-errChan:
		cancelTicks()
		s.wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the listener address once Run has started
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one endpoint Process pass and flushes pending frames
func (s *Server) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ep.Process(); err != nil {
		logging.Warn("Process failed", zap.Error(err))
	}
	s.flushLocked()
}

// Do runs fn with exclusive access to the endpoint and flushes any frames
// it queued.
func (s *Server) Do(fn func(ep *endpoint.Endpoint) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn(s.ep)
	s.flushLocked()
	return err
}

// deliver hands one inbound frame to the endpoint
func (s *Server) deliver(deviceID uint8, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ep.DeliverFrame(deviceID, frame); err != nil {
		logging.Warn("Frame rejected",
			zap.Uint8("device_id", deviceID),
			zap.Error(err),
		)
	}
	s.flushLocked()
}

// flushLocked sends every pending frame to all peers. s.mu must be held.
func (s *Server) flushLocked() {
	for {
		msg, ok := s.ep.PendingMessage()
		if !ok {
			return
		}

		out := make([]byte, 1+len(msg.Frame))
		out[0] = msg.Target
		copy(out[1:], msg.Frame)

		if err := s.ep.ReleaseBuffer(msg.Frame); err != nil {
			logging.Error("Failed to release transmit buffer", zap.Error(err))
			return
		}
		s.broadcast(outbound{messageType: websocket.BinaryMessage, data: out})
	}
}

// Snapshot returns the endpoint state served by /status
func (s *Server) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Shutdown gracefully shuts down the bridge
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down bridge...")

	var err error
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(shutdownCtx)
	}

	// Hijacked WebSocket connections are not closed by http.Server
	s.peersMu.Lock()
	for p := range s.peers {
		logging.Info("Closing active connection", zap.String("remote_addr", p.remoteAddr))
		_ = p.conn.Close()
	}
	s.peersMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-time.After(10 * time.Second):
		logging.Warn("Shutdown timeout after 10 seconds, forcing close")
	}

	logging.Sync()
	return err
}

// GetActiveConnections returns the number of connected peers
func (s *Server) GetActiveConnections() int {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	return len(s.peers)
}
