package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// fakeSender records sent command lines.
type fakeSender struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.lines = append(s.lines, strings.TrimSuffix(string(data), "\r\n"))
	return nil
}

func (s *fakeSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// decode builds a classified message from raw wire text.
func decode(t *testing.T, raw string) wire.Message {
	t.Helper()
	d := wire.NewDecoder(wire.DefaultCodeRanges())
	d.Write([]byte(raw))
	msg, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok, "incomplete test message %q", raw)
	return msg
}

func TestSubmitResolvesWithResponse(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, Config{})

	done := make(chan struct{})
	var resp wire.Message
	var submitErr error
	go func() {
		defer close(done)
		resp, submitErr = d.Submit(context.Background(), wire.NewCommand(wire.CmdPing))
	}()

	waitInFlight(t, d)
	d.HandleMessage(decode(t, "200 ok\r\n"))
	<-done

	require.NoError(t, submitErr)
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, []string{"ping"}, sender.sent())
	assert.False(t, d.InFlight())
}

func TestSubmitFailureResponse(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, Config{})

	done := make(chan struct{})
	var resp wire.Message
	var submitErr error
	go func() {
		defer close(done)
		resp, submitErr = d.Submit(context.Background(), wire.NewCommand(wire.CmdPlay))
	}()

	waitInFlight(t, d)
	d.HandleMessage(decode(t, "107 timeline empty\r\n"))
	<-done

	var cmdErr *wire.CommandError
	require.ErrorAs(t, submitErr, &cmdErr)
	assert.Equal(t, 107, cmdErr.Code)
	assert.Equal(t, "timeline empty", cmdErr.Text)
	assert.Equal(t, 107, resp.Code)
}

func TestNotificationDoesNotResolvePending(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, Config{Timeout: 500 * time.Millisecond})

	var notified []wire.Message
	d.SetNotificationHandler(func(msg wire.Message) { notified = append(notified, msg) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.Submit(context.Background(), wire.NewCommand(wire.CmdRecord))
	}()

	waitInFlight(t, d)
	d.HandleMessage(decode(t, "508 transport info:\r\nstatus: record\r\n\r\n"))

	// Pending command still unresolved; the notification passed through.
	assert.True(t, d.InFlight())
	require.Len(t, notified, 1)
	assert.Equal(t, 508, notified[0].Code)

	d.HandleMessage(decode(t, "200 ok\r\n"))
	<-done
}

func TestConcurrentSubmitsSerialize(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, Config{})

	first := make(chan error, 1)
	second := make(chan error, 1)

	go func() {
		_, err := d.Submit(context.Background(), wire.NewCommand(wire.CmdStop))
		first <- err
	}()
	waitInFlight(t, d)

	go func() {
		_, err := d.Submit(context.Background(), wire.NewCommand(wire.CmdPing))
		second <- err
	}()

	// The second command must not be sent while the first is pending.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"stop"}, sender.sent())

	d.HandleMessage(decode(t, "200 ok\r\n"))
	require.NoError(t, <-first)

	waitFor(t, func() bool { return len(sender.sent()) == 2 })
	d.HandleMessage(decode(t, "200 ok\r\n"))
	require.NoError(t, <-second)

	assert.Equal(t, []string{"stop", "ping"}, sender.sent())
}

func TestTimeoutAndLateResponseDiscarded(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, Config{Timeout: 50 * time.Millisecond})

	_, err := d.Submit(context.Background(), wire.NewCommand(wire.CmdDeviceInfo))
	require.ErrorIs(t, err, ErrTimeout)

	// The late response for the timed-out command must not resolve the
	// next, unrelated command.
	d.HandleMessage(decode(t, "204 device info:\r\nmodel: Old Answer\r\n\r\n"))

	done := make(chan struct{})
	var resp wire.Message
	var submitErr error
	go func() {
		defer close(done)
		resp, submitErr = d.Submit(context.Background(), wire.NewCommand(wire.CmdPing))
	}()

	waitInFlight(t, d)
	d.HandleMessage(decode(t, "200 ok\r\n"))
	<-done

	require.NoError(t, submitErr)
	assert.Equal(t, 200, resp.Code)
}

func TestCancelledSubmitOrphansCommand(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(ctx, wire.NewCommand(wire.CmdClipsGet))
		done <- err
	}()

	waitInFlight(t, d)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Response for the cancelled command is consumed and discarded.
	d.HandleMessage(decode(t, "205 clips info:\r\nclip count: 0\r\n\r\n"))

	go func() {
		_, err := d.Submit(context.Background(), wire.NewCommand(wire.CmdPing))
		done <- err
	}()
	waitInFlight(t, d)
	d.HandleMessage(decode(t, "200 ok\r\n"))
	require.NoError(t, <-done)
}

func TestConnectionLostFailsPending(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), wire.NewCommand(wire.CmdPing))
		done <- err
	}()

	waitInFlight(t, d)
	d.ConnectionLost(errors.New("read error: EOF"))
	require.ErrorIs(t, <-done, ErrConnectionLost)
}

func TestSendFailureSurfacesImmediately(t *testing.T) {
	sender := &fakeSender{err: errors.New("not connected")}
	d := New(sender, Config{})

	_, err := d.Submit(context.Background(), wire.NewCommand(wire.CmdPing))
	require.Error(t, err)
	assert.False(t, d.InFlight())

	// No orphan was created: a response now is merely unexpected.
	d.HandleMessage(decode(t, "200 ok\r\n"))
}

func TestUnexpectedResponseIgnored(t *testing.T) {
	d := New(&fakeSender{}, Config{})
	// Must not panic or disturb anything.
	d.HandleMessage(decode(t, "200 ok\r\n"))
}

func waitInFlight(t *testing.T, d *Dispatcher) {
	t.Helper()
	waitFor(t, d.InFlight)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
