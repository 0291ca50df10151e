// Package dispatch implements command/response correlation for the deck
// protocol.
//
// The deck processes at most one command at a time and guarantees its next
// synchronous response corresponds to the most recently sent command, with
// notifications freely interleaved. The Dispatcher therefore keeps a single
// pending-command slot and serializes submissions: a second Submit blocks
// until the first resolves (the blocking policy, chosen to match the
// protocol's single-outstanding-command contract; there is no busy error).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deckcontrol/hyperdeck-go/pkg/log"
	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// Dispatcher errors.
var (
	// ErrTimeout indicates no response arrived within the deadline.
	// The dispatcher remains usable; a late response will be discarded.
	ErrTimeout = errors.New("command timed out")

	// ErrConnectionLost indicates the connection failed while a command
	// was pending.
	ErrConnectionLost = errors.New("connection lost")
)

// DefaultTimeout is the per-command response deadline.
const DefaultTimeout = 5 * time.Second

// Sender is the transport interface the dispatcher writes to.
type Sender interface {
	Send(data []byte) error
}

// Config configures a Dispatcher.
type Config struct {
	// Timeout is the per-command response deadline (default 5s).
	// A shorter context deadline on Submit takes precedence.
	Timeout time.Duration

	// Logger receives anomaly events. Nil disables logging.
	Logger log.Logger
}

// result resolves one pending command.
type result struct {
	msg wire.Message
	err error
}

// Dispatcher serializes outgoing commands and matches each to its
// terminal response.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  log.Logger

	// submitMu serializes submissions: one command in flight at a time.
	submitMu sync.Mutex

	mu      sync.Mutex
	pending chan result // non-nil while a command awaits its response
	// orphans counts commands whose caller gave up (timeout or cancel)
	// after the command was already sent. The deck will still answer
	// them, so exactly that many subsequent responses are discarded to
	// keep late responses from resolving unrelated commands.
	orphans int

	notify   func(wire.Message)
	inFlight atomic.Bool
}

// New creates a dispatcher sending through the given transport.
func New(sender Sender, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	return &Dispatcher{
		sender:  sender,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// SetNotificationHandler sets the handler receiving notifications passed
// through by HandleMessage. Must be set before messages arrive.
func (d *Dispatcher) SetNotificationHandler(fn func(wire.Message)) {
	d.notify = fn
}

// InFlight reports whether a command is currently awaiting its response.
func (d *Dispatcher) InFlight() bool {
	return d.inFlight.Load()
}

// Submit encodes and sends a command, then waits for its terminal
// response. Submissions are strictly serialized; a concurrent Submit
// blocks until the previous command resolves.
//
// A failure-range response is returned together with a *wire.CommandError.
// Cancelling the context abandons the wait but cannot retract the command:
// the eventual response is consumed and discarded.
func (d *Dispatcher) Submit(ctx context.Context, cmd wire.Command) (wire.Message, error) {
	data, err := wire.EncodeCommand(cmd)
	if err != nil {
		return wire.Message{}, err
	}

	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	respCh := make(chan result, 1)
	d.mu.Lock()
	d.pending = respCh
	d.mu.Unlock()

	d.inFlight.Store(true)
	defer d.inFlight.Store(false)

	if err := d.sender.Send(data); err != nil {
		// Nothing reached the deck; no response will come.
		d.mu.Lock()
		d.pending = nil
		d.mu.Unlock()
		return wire.Message{}, err
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case res := <-respCh:
		if res.err != nil {
			return wire.Message{}, res.err
		}
		if res.msg.Kind() == wire.KindFailure {
			return res.msg, &wire.CommandError{Code: res.msg.Code, Text: res.msg.Text}
		}
		return res.msg, nil

	case <-timer.C:
		d.abandon(respCh, "timeout")
		return wire.Message{}, fmt.Errorf("%w after %v", ErrTimeout, d.timeout)

	case <-ctx.Done():
		d.abandon(respCh, "cancelled")
		return wire.Message{}, ctx.Err()
	}
}

// abandon gives up on a sent command. If its response has not arrived yet
// the command becomes an orphan and the next response is discarded.
func (d *Dispatcher) abandon(respCh chan result, reason string) {
	d.mu.Lock()
	if d.pending == respCh {
		d.pending = nil
		d.orphans++
		d.mu.Unlock()
		d.logAnomaly(fmt.Sprintf("command abandoned (%s), next response will be discarded", reason))
		return
	}
	d.mu.Unlock()
	// The response raced the deadline and was already delivered; drop it.
	select {
	case <-respCh:
	default:
	}
}

// HandleMessage consumes one classified message from the connection's
// stream. Notifications pass through to the notification handler unchanged
// so state stays live even mid-command; responses resolve the pending
// command. Unexpected responses are logged and discarded.
func (d *Dispatcher) HandleMessage(msg wire.Message) {
	if msg.Kind() == wire.KindNotification {
		if d.notify != nil {
			d.notify(msg)
		}
		return
	}

	d.mu.Lock()
	if d.orphans > 0 {
		d.orphans--
		d.mu.Unlock()
		d.logAnomaly(fmt.Sprintf("late response %d %q discarded", msg.Code, msg.Text))
		return
	}
	ch := d.pending
	d.pending = nil
	d.mu.Unlock()

	if ch == nil {
		d.logAnomaly(fmt.Sprintf("unexpected response %d %q with no command pending", msg.Code, msg.Text))
		return
	}
	ch <- result{msg: msg}
}

// ConnectionLost fails the pending command (if any) and resets the orphan
// count: a new connection starts a fresh response sequence.
func (d *Dispatcher) ConnectionLost(err error) {
	d.mu.Lock()
	ch := d.pending
	d.pending = nil
	d.orphans = 0
	d.mu.Unlock()

	if ch != nil {
		ch <- result{err: fmt.Errorf("%w: %v", ErrConnectionLost, err)}
	}
}

func (d *Dispatcher) logAnomaly(msg string) {
	d.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerSession,
		Category:  log.CategoryAnomaly,
		Error:     &log.ErrorEventData{Message: msg, Context: "dispatcher"},
	})
}
