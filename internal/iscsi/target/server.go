package target

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregate/iscsid/internal/iscsi/connection"
	"github.com/coregate/iscsid/internal/iscsi/session"
	"github.com/coregate/iscsid/internal/logger"
)

// Server owns the TCP listener and the lifecycle of every connection
// accepted on it. One Server serves one target name on one portal; a
// daemon exporting multiple portals runs one Server per listening address,
// sharing the same LUNSource/CredentialStore.
//
// All exported methods are safe for concurrent use. Shutdown is
// idempotent: Stop may be called multiple times and concurrently with Run.
type Server struct {
	cfg Config

	listenerMu sync.RWMutex
	listener   net.Listener

	activeConns sync.WaitGroup
	connCount   atomic.Int32
	connections sync.Map // remote addr -> net.Conn, for forced closure
	sessions    sync.Map // remote addr -> *connection.Conn, for the admin API's session listing

	connSemaphore chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	listenerReady chan struct{}
}

// New builds a Server from cfg. The server is inert until Run is called.
func New(cfg Config) *Server {
	var sem chan struct{}
	if cfg.MaxConnections > 0 {
		sem = make(chan struct{}, cfg.MaxConnections)
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:            cfg,
		connSemaphore:  sem,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancel,
		listenerReady:  make(chan struct{}),
	}
}

// ActiveConnections returns the current number of connections being
// served.
func (s *Server) ActiveConnections() uint32 {
	return uint32(s.connCount.Load())
}

// IsShuttingDown reports whether shutdown has been initiated. Consulted by
// session.HandleLogin, which rejects a login with "service unavailable"
// once this reports true.
func (s *Server) IsShuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// Sessions returns a snapshot of every connection currently being served,
// for the admin API's session listing. Each snapshot reflects the state as
// of the connection's last stage transition, not necessarily this instant.
func (s *Server) Sessions() []connection.SessionSnapshot {
	var out []connection.SessionSnapshot
	s.sessions.Range(func(_, value any) bool {
		if c, ok := value.(*connection.Conn); ok {
			out = append(out, c.Snapshot())
		}
		return true
	})
	return out
}

// Addr blocks until the listener is bound and returns its address. Used by
// tests and by the discovery portal registration at startup.
func (s *Server) Addr() string {
	<-s.listenerReady
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// commandMetrics narrows s.cfg.Metrics down to the richer per-command
// interface the connection package consumes, when the concrete recorder
// (normally *metrics.Metrics) implements it. Kept as a type assertion
// rather than a second Config field so a caller wiring only connection
// accounting (or nothing) doesn't need to know about command-level
// metrics at all.
func (s *Server) commandMetrics() connection.Metrics {
	cm, _ := s.cfg.Metrics.(connection.Metrics)
	return cm
}

func (s *Server) loginConfig() session.Config {
	return session.Config{
		TargetName:        s.cfg.TargetName,
		RequireCHAP:       s.cfg.RequireCHAP,
		CredentialStore:   s.cfg.CredentialStore,
		IsShuttingDown:    s.IsShuttingDown,
		ActiveConnections: s.ActiveConnections,
		MaxConnections:    uint32(s.cfg.MaxConnections),
	}
}

// Run binds the listener and accepts connections until ctx is cancelled or
// Stop is called. It returns nil once every in-flight connection has
// drained, or an error naming how many connections were force-closed after
// the configured ShutdownTimeout elapsed.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("target: listen on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.listenerReady)

	logger.Info("iscsi target listening", "address", listener.Addr().String(), "target_name", s.cfg.TargetName)

	go func() {
		<-ctx.Done()
		s.initiateShutdown()
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.drain()
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.drain()
			default:
				logger.Debug("accept error", "error", err)
				continue
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		s.acceptConnection(conn)
	}
}

func (s *Server) acceptConnection(netConn net.Conn) {
	s.activeConns.Add(1)
	count := s.connCount.Add(1)

	addr := netConn.RemoteAddr().String()
	s.connections.Store(addr, netConn)

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordConnectionAccepted()
		s.cfg.Metrics.SetActiveConnections(count)
	}
	logger.Debug("iscsi connection accepted", "address", addr, "active", count)

	c := connection.New(netConn, s.loginConfig(), s.cfg.LUNs, s.commandMetrics())
	s.sessions.Store(addr, c)

	go func() {
		defer func() {
			s.connections.Delete(addr)
			s.sessions.Delete(addr)
			s.activeConns.Done()
			remaining := s.connCount.Add(-1)
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordConnectionClosed()
				s.cfg.Metrics.SetActiveConnections(remaining)
			}
			logger.Debug("iscsi connection closed", "address", addr, "active", remaining)
			s.activeConns.Done()
		}()

		c.Serve(s.shutdownCtx)
	}()
}

// initiateShutdown begins the shutdown sequence exactly once: stop
// accepting, interrupt blocked reads on every active connection, then
// cancel every in-flight request's context.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("iscsi target shutdown initiated")
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.listenerMu.Unlock()

		s.interruptBlockingReads()
		s.cancelRequests()
	})
}

// interruptBlockingReads sets a short read deadline on every active
// connection so a worker goroutine blocked in a read wakes up and observes
// the cancelled shutdownCtx on its next loop iteration.
func (s *Server) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)
	s.connections.Range(func(_, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			_ = conn.SetReadDeadline(deadline)
		}
		return true
	})
}

// drain waits for every active connection to finish, up to
// ShutdownTimeout, force-closing any stragglers afterward.
func (s *Server) drain() error {
	active := s.connCount.Load()
	logger.Info("iscsi target draining connections", "active", active, "timeout", s.cfg.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		logger.Info("iscsi target shutdown complete")
		return nil
	case <-time.After(timeout):
		remaining := s.connCount.Load()
		logger.Warn("iscsi target shutdown timeout exceeded, forcing closure", "active", remaining)
		s.forceCloseAll()
		return fmt.Errorf("target: shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *Server) forceCloseAll() {
	s.connections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			_ = conn.Close()
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordConnectionForceClosed()
			}
		}
		return true
	})
}

// ShutdownGracefully marks the server as shutting down, so a Login Request
// still in progress is rejected with "service unavailable", closes the
// listener, and cancels the context every connection is served under,
// which closes each live socket at once, full-feature-phase sessions
// included; in-flight commands are not left to complete. It then waits
// up to ShutdownTimeout for the connection goroutines to exit,
// force-closing any that remain.
func (s *Server) ShutdownGracefully(ctx context.Context) error {
	s.initiateShutdown()
	return s.drain()
}

// Stop is equivalent to cancelling Run's context: it closes the listener,
// stops accepting, and blocks until every connection has drained or the
// configured ShutdownTimeout elapses.
func (s *Server) Stop(ctx context.Context) error {
	return s.ShutdownGracefully(ctx)
}
