package simdeck

import (
	"bufio"
	"net"
	"strings"
	"sync"
)

// session is one control connection. Reads happen on the session
// goroutine; sends can come from any goroutine (notifications).
type session struct {
	server *Server
	conn   net.Conn

	writeMu sync.Mutex

	flagMu sync.Mutex
	flags  map[string]bool
}

func newSession(s *Server, conn net.Conn) *session {
	return &session{
		server: s,
		conn:   conn,
		flags:  make(map[string]bool),
	}
}

func (s *session) run() error {
	defer s.server.dropSession(s)
	defer s.conn.Close()

	s.server.logger.Debug().Str("remote", s.conn.RemoteAddr().String()).Msg("session open")
	s.send(s.server.banner())

	r := bufio.NewReader(s.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			s.server.logger.Debug().Str("remote", s.conn.RemoteAddr().String()).Msg("session closed")
			return nil
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if !s.server.admitCommand(s) {
			continue
		}
		s.server.handleCommand(s, line)
	}
}

// admitCommand applies armed faults. It returns false when the command
// must be swallowed.
func (srv *Server) admitCommand(sess *session) bool {
	srv.mu.Lock()
	if srv.dropNext {
		srv.dropNext = false
		srv.mu.Unlock()
		sess.conn.Close()
		return false
	}
	if srv.withholdNext {
		srv.withholdNext = false
		srv.mu.Unlock()
		return false
	}
	srv.mu.Unlock()
	return true
}

func (s *session) send(raw string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.Write([]byte(raw))
}

func (s *session) notifyEnabled(flag string) bool {
	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	return s.flags[flag]
}

func (s *session) setNotify(flag string, on bool) {
	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	s.flags[flag] = on
}
