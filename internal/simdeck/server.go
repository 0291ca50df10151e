// Package simdeck implements a simulated deck speaking the control
// protocol over TCP. It backs the integration tests and the standalone
// sim binary. The simulation is stateful but not time-driven: transport
// status changes on commands, the playhead does not advance on its own.
package simdeck

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// Server is a simulated deck accepting any number of control connections.
type Server struct {
	logger zerolog.Logger

	ln     net.Listener
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	deck     *deckState
	sessions map[*session]struct{}

	// Fault injection, armed by tests.
	dropNext     bool
	withholdNext bool
}

// New creates a server with the given initial deck state.
func New(f Fixture, logger zerolog.Logger) (*Server, error) {
	deck, err := newDeckState(f)
	if err != nil {
		return nil, err
	}
	return &Server{
		logger:   logger,
		deck:     deck,
		sessions: make(map[*session]struct{}),
	}, nil
}

// Start listens on addr (e.g. "127.0.0.1:0") and serves until Close.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("simdeck listen: %w", err)
	}
	s.ln = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.group, _ = errgroup.WithContext(s.ctx)
	s.group.Go(s.acceptLoop)
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("simdeck listening")
	return nil
}

// Addr returns the listen address, valid after Start.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener and drops all sessions.
func (s *Server) Close() error {
	s.cancel()
	err := s.ln.Close()
	s.mu.Lock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()
	s.group.Wait()
	if err != nil {
		return fmt.Errorf("simdeck close: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("simdeck accept: %w", err)
		}
		sess := newSession(s, conn)
		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()
		s.group.Go(sess.run)
	}
}

func (s *Server) dropSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// DropNextCommand arms a fault: the next command received on any session
// closes that session's connection without a reply.
func (s *Server) DropNextCommand() {
	s.mu.Lock()
	s.dropNext = true
	s.mu.Unlock()
}

// WithholdNextResponse arms a fault: the next command received is read
// and discarded, no reply is sent, and the connection stays open.
func (s *Server) WithholdNextResponse() {
	s.mu.Lock()
	s.withholdNext = true
	s.mu.Unlock()
}

// InjectNotification pushes an arbitrary asynchronous message to every
// connected session, bypassing the notify flags.
func (s *Server) InjectNotification(code int, text string, body ...string) {
	raw := formatMessage(code, text, body)
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.send(raw)
	}
}

// DropAllConnections closes every session, simulating a network cut.
// The listener stays up so clients can redial.
func (s *Server) DropAllConnections() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.conn.Close()
	}
}

// Sessions returns the number of live control connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// notifySend delivers a flagged notification to every subscribed session.
func (s *Server) notifySend(flag string, code int, text string, body []string) {
	raw := formatMessage(code, text, body)
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		if sess.notifyEnabled(flag) {
			sess.send(raw)
		}
	}
}

// formatMessage renders a status line plus optional body in wire framing.
func formatMessage(code int, text string, body []string) string {
	var b strings.Builder
	if len(body) == 0 {
		fmt.Fprintf(&b, "%d %s%s", code, text, wire.LineTerminator)
		return b.String()
	}
	fmt.Fprintf(&b, "%d %s:%s", code, text, wire.LineTerminator)
	for _, line := range body {
		b.WriteString(line)
		b.WriteString(wire.LineTerminator)
	}
	b.WriteString(wire.LineTerminator)
	return b.String()
}
