package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deckcontrol/hyperdeck-go/pkg/log"
	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// Connection states.
type State int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected State = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateClosing indicates a local close in progress.
	StateClosing
)

// String returns the connection state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
)

// Config configures a deck connection.
type Config struct {
	// CodeRanges classify incoming status codes.
	CodeRanges wire.CodeRanges

	// MaxLineLength is the maximum accepted wire line length.
	MaxLineLength int

	// ReadTimeout is the timeout for read operations (0 = no timeout).
	// The deck pushes notifications at unpredictable intervals, so a
	// read timeout should be used only together with keepalive pings.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for write operations (0 = no timeout).
	WriteTimeout time.Duration

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() Config {
	return Config{
		CodeRanges:    wire.DefaultCodeRanges(),
		MaxLineLength: wire.DefaultMaxLineLength,
	}
}

// Handler handles connection events. Callbacks run on the read loop
// goroutine and must not block.
type Handler interface {
	// OnMessage is called for each classified incoming message.
	OnMessage(msg wire.Message)

	// OnStateChange is called when the connection state changes.
	// A transition to StateDisconnected that was not initiated by Close
	// is the connection-lost event.
	OnStateChange(oldState, newState State)

	// OnError is called when a transport or framing error occurs.
	OnError(err error)
}

// Conn is a persistent connection to one deck. A Conn can be redialed
// after a disconnect; each successful dial gets a fresh connection ID.
type Conn struct {
	config  Config
	handler Handler

	state atomic.Int32

	mu      sync.RWMutex
	conn    net.Conn
	connID  string
	writeMu sync.Mutex
}

// New creates a new connection (not yet dialed).
func New(config Config, handler Handler) *Conn {
	if config.MaxLineLength == 0 {
		config.MaxLineLength = wire.DefaultMaxLineLength
	}
	if config.CodeRanges == (wire.CodeRanges{}) {
		config.CodeRanges = wire.DefaultCodeRanges()
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}

	c := &Conn{config: config, handler: handler}
	c.state.Store(int32(StateDisconnected))
	return c
}

// State returns the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// ConnID returns the UUID assigned to the current connection
// (empty when disconnected). Used for log correlation.
func (c *Conn) ConnID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connID
}

// RemoteAddr returns the remote network address, or nil when disconnected.
func (c *Conn) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.RemoteAddr()
	}
	return nil
}

// Dial establishes the TCP connection and starts the read loop.
func (c *Conn) Dial(ctx context.Context, address string) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.notifyStateChange(StateDisconnected, StateConnecting, "")

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateConnecting, StateDisconnected, err.Error())
		return fmt.Errorf("dial failed: %w", err)
	}

	connID := uuid.New().String()

	c.mu.Lock()
	c.conn = conn
	c.connID = connID
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	c.notifyStateChange(StateConnecting, StateConnected, "")

	go c.readLoop(conn, connID)

	return nil
}

// Send writes one encoded command line. Writes are atomic: concurrent
// senders never interleave bytes.
func (c *Conn) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	connID := c.connID
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	c.logLine(connID, log.DirectionOut, data)
	return nil
}

// Close closes the connection. The read loop terminates and the state
// transitions to Disconnected. Safe to call when already disconnected.
func (c *Conn) Close() error {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateClosing)) {
		return nil
	}
	c.notifyStateChange(StateConnected, StateClosing, "")

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return nil
}

// readLoop reads and decodes messages until the connection fails or closes.
func (c *Conn) readLoop(conn net.Conn, connID string) {
	decoder := wire.NewDecoder(c.config.CodeRanges)
	decoder.SetMaxLineLength(c.config.MaxLineLength)

	buf := make([]byte, 4096)
	for {
		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			c.logLine(connID, log.DirectionIn, buf[:n])
			decoder.Write(buf[:n])

			for {
				msg, ok, derr := decoder.Next()
				if derr != nil {
					// Framing is no longer trustworthy.
					c.teardown(conn, connID, derr)
					return
				}
				if !ok {
					break
				}
				c.logMessage(connID, msg)
				c.handler.OnMessage(msg)
			}
		}

		if err != nil {
			if c.State() == StateClosing {
				c.finishClose(conn)
				return
			}
			c.teardown(conn, connID, fmt.Errorf("read error: %w", err))
			return
		}
	}
}

// teardown handles an unexpected connection failure: report, close the
// socket and publish the Disconnected transition (the connection-lost event).
func (c *Conn) teardown(conn net.Conn, connID string, err error) {
	c.handler.OnError(err)
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Message: err.Error(), Context: "read loop"},
	})

	conn.Close()
	c.clear(conn)

	old := c.State()
	c.state.Store(int32(StateDisconnected))
	c.notifyStateChange(old, StateDisconnected, err.Error())
}

// finishClose completes a locally initiated Close.
func (c *Conn) finishClose(conn net.Conn) {
	c.clear(conn)
	c.state.Store(int32(StateDisconnected))
	c.notifyStateChange(StateClosing, StateDisconnected, "closed by caller")
}

// clear drops the stored conn if it is still the one the loop owned.
func (c *Conn) clear(conn net.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connID = ""
	}
	c.mu.Unlock()
}

func (c *Conn) notifyStateChange(oldState, newState State, reason string) {
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ConnID(),
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
	if c.handler != nil {
		c.handler.OnStateChange(oldState, newState)
	}
}

// logLine emits a transport-layer event for raw bytes.
func (c *Conn) logLine(connID string, dir log.Direction, data []byte) {
	if _, noop := c.config.Logger.(log.NoopLogger); noop {
		return
	}
	line := data
	truncated := false
	if len(line) > 512 {
		line = line[:512]
		truncated = true
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Line:         &log.LineEvent{Size: len(data), Data: append([]byte(nil), line...), Truncated: truncated},
	})
}

// logMessage emits a wire-layer event for a classified message.
func (c *Conn) logMessage(connID string, msg wire.Message) {
	if _, noop := c.config.Logger.(log.NoopLogger); noop {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Code:      msg.Code,
			Kind:      msg.Kind().String(),
			Text:      msg.Text,
			BodyLines: len(msg.Body),
		},
	})
}
