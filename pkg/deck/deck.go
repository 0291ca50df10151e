// Package deck is the high-level client for one deck. It composes the
// transport connection, the command dispatcher and the state model into a
// single façade with semantic operations.
package deck

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deckcontrol/hyperdeck-go/pkg/config"
	"github.com/deckcontrol/hyperdeck-go/pkg/dispatch"
	"github.com/deckcontrol/hyperdeck-go/pkg/log"
	"github.com/deckcontrol/hyperdeck-go/pkg/state"
	"github.com/deckcontrol/hyperdeck-go/pkg/transport"
	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// Deck errors.
var (
	ErrBannerTimeout = errors.New("no connection banner from deck")
)

// notifySubscriptions are enabled at the end of the startup sequence,
// one notify command per flag.
var notifySubscriptions = []string{
	"transport", "display timecode", "timeline position",
	"playrange", "slot", "configuration",
}

// Config configures a Deck.
type Config struct {
	// Address is the deck's TCP address, host:port.
	Address string

	// Profile carries protocol knobs. Zero value = DefaultProfile.
	Profile config.Profile

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger
}

// Snapshot is a point-in-time copy of the mirrored deck state.
type Snapshot struct {
	Device     state.DeviceInfo
	Slots      []state.Slot
	ActiveSlot int
	Timeline   state.Timeline
	Video      state.Video
	Settings   state.Settings
	Playrange  state.Playrange

	// Stale is set after a disconnect until the state is refreshed.
	Stale bool
}

// Deck is a client for one deck. All operations go through a single
// in-flight command slot; concurrent calls serialize.
type Deck struct {
	config config.Profile
	addr   string
	logger log.Logger

	conn   *transport.Conn
	disp   *dispatch.Dispatcher
	model  *state.Model
	router *state.Router

	mu         sync.Mutex
	bannerCh   chan struct{}
	bannerOpen bool

	lastErr atomic.Value // error

	stateMu  sync.Mutex
	stateCbs []func(oldState, newState transport.State)

	keepaliveMu   sync.Mutex
	keepaliveStop chan struct{}

	refreshing atomic.Bool
}

// New creates a deck client. No connection is made until Connect.
func New(cfg Config) *Deck {
	profile := cfg.Profile.WithDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	d := &Deck{
		config: profile,
		addr:   cfg.Address,
		logger: logger,
		model:  state.NewModel(),
	}
	d.router = state.NewRouter(d.model, logger)
	d.conn = transport.New(transport.Config{
		CodeRanges:    profile.CodeRanges,
		MaxLineLength: profile.MaxLineLength,
		Logger:        logger,
	}, d)
	d.disp = dispatch.New(d.conn, dispatch.Config{
		Timeout: profile.CommandTimeout,
		Logger:  logger,
	})
	d.disp.SetNotificationHandler(d.handleNotification)

	d.model.OnChange(d.onModelChange)
	return d
}

// Model returns the live state model for observation. Mutation stays
// internal.
func (d *Deck) Model() *state.Model {
	return d.model
}

// OnChange registers an observer for state changes. Callbacks run on the
// connection's read loop and must not block or dispatch commands; spawn a
// goroutine for follow-up work.
func (d *Deck) OnChange(fn func(state.Change)) {
	d.model.OnChange(fn)
}

// OnConnectionState registers an observer for connection state changes.
// Same execution constraints as OnChange.
func (d *Deck) OnConnectionState(fn func(oldState, newState transport.State)) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.stateCbs = append(d.stateCbs, fn)
}

// ConnectionState returns the current connection state.
func (d *Deck) ConnectionState() transport.State {
	return d.conn.State()
}

// Snapshot returns a copy of the full mirrored state.
func (d *Deck) Snapshot() Snapshot {
	return Snapshot{
		Device:     d.model.DeviceInfo(),
		Slots:      d.model.Slots(),
		ActiveSlot: d.model.ActiveSlot(),
		Timeline:   d.model.Timeline(),
		Video:      d.model.Video(),
		Settings:   d.model.Settings(),
		Playrange:  d.model.Playrange(),
		Stale:      d.model.Stale(),
	}
}

// Connect dials the deck, waits for the connection banner and runs the
// startup sequence: device and per-slot queries, configuration, transport,
// playrange, clip list, play option, then notification subscriptions.
// The whole sequence is bounded by the profile's connect timeout.
func (d *Deck) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.ConnectTimeout)
	defer cancel()

	d.mu.Lock()
	d.bannerCh = make(chan struct{})
	d.bannerOpen = true
	d.mu.Unlock()

	d.router.Reset()

	if err := d.conn.Dial(ctx, d.addr); err != nil {
		return err
	}

	d.mu.Lock()
	banner := d.bannerCh
	d.mu.Unlock()

	select {
	case <-banner:
	case <-ctx.Done():
		d.conn.Close()
		return fmt.Errorf("%w: %v", ErrBannerTimeout, ctx.Err())
	}

	if err := d.startup(ctx); err != nil {
		d.conn.Close()
		return fmt.Errorf("startup sequence: %w", err)
	}

	d.startKeepalive()
	return nil
}

// startup runs the connect-time query sequence through the dispatcher.
func (d *Deck) startup(ctx context.Context) error {
	if _, err := d.Dispatch(ctx, wire.NewCommand(wire.CmdDeviceInfo)); err != nil {
		return err
	}

	for _, sl := range d.model.Slots() {
		id := strconv.Itoa(sl.ID)
		if _, err := d.Dispatch(ctx, wire.NewCommand(wire.CmdSlotInfo,
			wire.Param{Key: "slot id", Value: id})); err != nil {
			return err
		}
		// disk list fails on an empty slot; that is not a connect error.
		if _, err := d.Dispatch(ctx, wire.NewCommand(wire.CmdDiskList,
			wire.Param{Key: "slot id", Value: id})); err != nil && !isCommandError(err) {
			return err
		}
	}

	sequence := []wire.CommandKind{
		wire.CmdConfiguration,
		wire.CmdTransportInfo,
		wire.CmdPlayrange,
		wire.CmdClipsGet,
		wire.CmdPlayOption,
	}
	for _, kind := range sequence {
		if _, err := d.Dispatch(ctx, wire.NewCommand(kind)); err != nil && !isCommandError(err) {
			return err
		}
	}

	for _, flag := range notifySubscriptions {
		if _, err := d.Dispatch(ctx, wire.NewCommand(wire.CmdNotify,
			wire.Param{Key: flag, Value: "true"})); err != nil && !isCommandError(err) {
			return err
		}
	}
	return nil
}

// Disconnect closes the connection. The mirrored state is kept but marked
// stale.
func (d *Deck) Disconnect() error {
	d.stopKeepalive()
	return d.conn.Close()
}

// Close shuts the client down.
func (d *Deck) Close() error {
	return d.Disconnect()
}

// Dispatch sends one command and waits for its terminal response. Success
// responses that carry state are applied to the model before returning.
// A deck failure response returns the message plus a *wire.CommandError.
func (d *Deck) Dispatch(ctx context.Context, cmd wire.Command) (wire.Message, error) {
	msg, err := d.disp.Submit(ctx, cmd)
	if err != nil {
		return msg, err
	}
	d.router.ApplyResponse(msg)
	return msg, nil
}

// Refresh re-runs the slot and timeline queries, clearing staleness.
func (d *Deck) Refresh(ctx context.Context) error {
	for _, sl := range d.model.Slots() {
		id := strconv.Itoa(sl.ID)
		if _, err := d.Dispatch(ctx, wire.NewCommand(wire.CmdSlotInfo,
			wire.Param{Key: "slot id", Value: id})); err != nil {
			return err
		}
		if _, err := d.Dispatch(ctx, wire.NewCommand(wire.CmdDiskList,
			wire.Param{Key: "slot id", Value: id})); err != nil && !isCommandError(err) {
			return err
		}
	}
	for _, kind := range []wire.CommandKind{wire.CmdTransportInfo, wire.CmdPlayrange, wire.CmdClipsGet} {
		if _, err := d.Dispatch(ctx, wire.NewCommand(kind)); err != nil && !isCommandError(err) {
			return err
		}
	}
	return nil
}

// transport.Handler implementation. All three run on the read loop.

// OnMessage feeds every classified message to the dispatcher, which
// resolves the pending command or passes notifications through.
func (d *Deck) OnMessage(msg wire.Message) {
	d.disp.HandleMessage(msg)
}

// OnStateChange tracks the session lifecycle. A transition to
// Disconnected fails the pending command and marks the model stale.
func (d *Deck) OnStateChange(oldState, newState transport.State) {
	if newState == transport.StateDisconnected && oldState != transport.StateConnecting {
		err := errors.New("connection closed")
		if v := d.lastErr.Load(); v != nil {
			err = v.(error)
		}
		d.disp.ConnectionLost(err)
		d.model.MarkStale()
		d.stopKeepalive()
	}

	d.stateMu.Lock()
	cbs := append(([]func(transport.State, transport.State))(nil), d.stateCbs...)
	d.stateMu.Unlock()
	for _, fn := range cbs {
		fn(oldState, newState)
	}
}

// OnError records the transport error behind a connection loss.
func (d *Deck) OnError(err error) {
	d.lastErr.Store(err)
}

// handleNotification receives notifications passed through the dispatcher.
// The connection banner doubles as the connected signal.
func (d *Deck) handleNotification(msg wire.Message) {
	d.router.Route(msg)

	if msg.Text == "connection info" {
		d.mu.Lock()
		if d.bannerOpen {
			d.bannerOpen = false
			close(d.bannerCh)
		}
		d.mu.Unlock()
	}
}

// onModelChange implements the follow-up query policy: a transport
// notification that switched the active slot invalidates the clip list,
// so it is re-queried. Runs on the read loop, hence the goroutine.
func (d *Deck) onModelChange(c state.Change) {
	if !c.ActiveSlotChanged || d.conn.State() != transport.StateConnected {
		return
	}
	if !d.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer d.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), d.config.CommandTimeout)
		defer cancel()
		d.Dispatch(ctx, wire.NewCommand(wire.CmdClipsGet))
	}()
}

// startKeepalive pings the deck when idle so half-open connections are
// detected. Disabled when the profile's keepalive interval is zero.
func (d *Deck) startKeepalive() {
	if d.config.KeepAliveInterval <= 0 {
		return
	}
	d.keepaliveMu.Lock()
	defer d.keepaliveMu.Unlock()
	if d.keepaliveStop != nil {
		return
	}
	stop := make(chan struct{})
	d.keepaliveStop = stop

	go func() {
		ticker := time.NewTicker(d.config.KeepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if d.disp.InFlight() {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), d.config.CommandTimeout)
				d.disp.Submit(ctx, wire.NewCommand(wire.CmdPing))
				cancel()
			}
		}
	}()
}

func (d *Deck) stopKeepalive() {
	d.keepaliveMu.Lock()
	defer d.keepaliveMu.Unlock()
	if d.keepaliveStop != nil {
		close(d.keepaliveStop)
		d.keepaliveStop = nil
	}
}

// isCommandError reports whether err is a deck failure response rather
// than a transport or timeout error.
func isCommandError(err error) bool {
	var ce *wire.CommandError
	return errors.As(err, &ce)
}
