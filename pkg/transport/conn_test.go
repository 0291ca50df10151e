package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// testHandler collects connection events on channels.
type testHandler struct {
	messages chan wire.Message
	states   chan [2]State
	errors   chan error
}

func newTestHandler() *testHandler {
	return &testHandler{
		messages: make(chan wire.Message, 16),
		states:   make(chan [2]State, 16),
		errors:   make(chan error, 16),
	}
}

func (h *testHandler) OnMessage(msg wire.Message) { h.messages <- msg }

func (h *testHandler) OnStateChange(oldState, newState State) {
	h.states <- [2]State{oldState, newState}
}

func (h *testHandler) OnError(err error) { h.errors <- err }

func (h *testHandler) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.states:
			if s[1] == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

// startServer runs a one-connection test server and returns its address
// plus a channel delivering the accepted connection.
func startServer(t *testing.T) (string, chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()
	return ln.Addr().String(), conns
}

func TestDialSendReceive(t *testing.T) {
	addr, conns := startServer(t)

	handler := newTestHandler()
	c := New(DefaultConfig(), handler)

	if err := c.Dial(context.Background(), addr); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()
	handler.waitState(t, StateConnected)

	if c.ConnID() == "" {
		t.Error("expected a connection ID after dial")
	}

	server := <-conns
	defer server.Close()

	// Server pushes the connection banner.
	server.Write([]byte("500 connection info:\r\nprotocol version: 1.12\r\nmodel: Test Deck\r\n\r\n"))

	select {
	case msg := <-handler.messages:
		if msg.Code != 500 || msg.Text != "connection info" {
			t.Errorf("unexpected message: %+v", msg)
		}
		if msg.Kind() != wire.KindNotification {
			t.Errorf("banner should classify as notification")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for banner")
	}

	// Client sends a command; server must receive the exact line.
	if err := c.Send([]byte("ping\r\n")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	line, err := bufio.NewReader(server).ReadString('\n')
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if line != "ping\r\n" {
		t.Errorf("server got %q", line)
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	c := New(DefaultConfig(), newTestHandler())
	if err := c.Send([]byte("ping\r\n")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDialWhileConnected(t *testing.T) {
	addr, _ := startServer(t)

	handler := newTestHandler()
	c := New(DefaultConfig(), handler)
	if err := c.Dial(context.Background(), addr); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	if err := c.Dial(context.Background(), addr); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestConnectionLost(t *testing.T) {
	addr, conns := startServer(t)

	handler := newTestHandler()
	c := New(DefaultConfig(), handler)
	if err := c.Dial(context.Background(), addr); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	handler.waitState(t, StateConnected)

	server := <-conns
	server.Close()

	select {
	case <-handler.errors:
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnError after peer close")
	}
	handler.waitState(t, StateDisconnected)

	if err := c.Send([]byte("ping\r\n")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after loss: expected ErrNotConnected, got %v", err)
	}
}

func TestMalformedInputClosesConnection(t *testing.T) {
	addr, conns := startServer(t)

	handler := newTestHandler()
	c := New(DefaultConfig(), handler)
	if err := c.Dial(context.Background(), addr); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	handler.waitState(t, StateConnected)

	server := <-conns
	defer server.Close()
	server.Write([]byte("this is not a protocol line\r\n"))

	select {
	case err := <-handler.errors:
		if !errors.Is(err, wire.ErrMalformedMessage) {
			t.Errorf("expected ErrMalformedMessage, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected framing error")
	}
	handler.waitState(t, StateDisconnected)
}

func TestCloseThenRedial(t *testing.T) {
	addr, conns := startServer(t)

	handler := newTestHandler()
	c := New(DefaultConfig(), handler)
	if err := c.Dial(context.Background(), addr); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	handler.waitState(t, StateConnected)
	firstID := c.ConnID()

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	handler.waitState(t, StateDisconnected)
	(<-conns).Close()

	// A locally initiated close is not an error.
	select {
	case err := <-handler.errors:
		t.Fatalf("unexpected error on close: %v", err)
	default:
	}

	addr2, _ := startServer(t)
	if err := c.Dial(context.Background(), addr2); err != nil {
		t.Fatalf("redial failed: %v", err)
	}
	defer c.Close()
	handler.waitState(t, StateConnected)

	if c.ConnID() == firstID {
		t.Error("redial should assign a fresh connection ID")
	}
}
