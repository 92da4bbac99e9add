package gateway

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Stats holds server operational statistics.
type Stats struct {
	ConnectionsTotal  uint64
	ActiveConnections int64
	StartedAt         time.Time
}

// Server accepts device connections and runs one session per connection.
type Server struct {
	addr string
	deps SessionDeps

	listener net.Listener
	done     *closeOnce
	wg       sync.WaitGroup

	// sessionsMu guards sessions, tracked for shutdown.
	sessionsMu sync.Mutex
	sessions   map[*Session]struct{}

	connectionsTotal atomic.Uint64
	activeConns      atomic.Int64
	startedAt        time.Time

	logger Logger
}

// NewServer creates a server listening on addr ("host:port") once started.
// Deps.Registry must be set.
func NewServer(addr string, deps SessionDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Server{
		addr:     addr,
		deps:     deps,
		done:     newCloseOnce(),
		sessions: make(map[*Session]struct{}),
		logger:   logger,
	}
}

// Start opens the listener and begins accepting connections. It returns
// once the listener is up; the accept loop runs on its own goroutine.
func (s *Server) Start() error {
	select {
	case <-s.done.Done():
		return ErrServerClosed
	default:
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = listener
	s.startedAt = time.Now()

	s.logger.Info("listening for lock traffic", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound listener address, useful when the configured
// port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-s.done.Done():
				return
			default:
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.connectionsTotal.Add(1)
		s.activeConns.Add(1)
		s.logger.Info("device connected", "remote", conn.RemoteAddr().String())

		session := NewSession(conn, s.deps)
		if !s.trackSession(session) {
			// Shutdown began after this conn was accepted.
			session.Close()
			s.activeConns.Add(-1)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			session.Run()
			s.untrackSession(session)
			s.activeConns.Add(-1)
		}()
	}
}

// trackSession adds the session to the live set. It reports false once
// shutdown has begun, so sessions accepted during Close are never left
// untracked with an open conn. Close snapshots the set under the same
// mutex, so any session tracked here is seen by its sweep.
func (s *Server) trackSession(session *Session) bool {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	select {
	case <-s.done.Done():
		return false
	default:
	}
	s.sessions[session] = struct{}{}
	return true
}

func (s *Server) untrackSession(session *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, session)
	s.sessionsMu.Unlock()
}

// Close stops accepting, closes all live sessions and waits for their
// read loops to finish. Safe to call multiple times.
func (s *Server) Close() error {
	s.done.Close()

	if s.listener != nil {
		s.listener.Close()
	}

	s.sessionsMu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		open = append(open, session)
	}
	s.sessionsMu.Unlock()

	for _, session := range open {
		session.Close()
	}

	s.wg.Wait()
	s.logger.Info("gateway stopped")
	return nil
}

// Stats returns current operational statistics.
func (s *Server) Stats() Stats {
	return Stats{
		ConnectionsTotal:  s.connectionsTotal.Load(),
		ActiveConnections: s.activeConns.Load(),
		StartedAt:         s.startedAt,
	}
}
