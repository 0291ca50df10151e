package log

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func sampleEvent(connID string, dir Direction) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Message:      &MessageEvent{Code: 200, Kind: "SUCCESS", Text: "ok"},
	}
}

func TestEventRoundTrip(t *testing.T) {
	event := Event{
		Timestamp:    time.Now().Truncate(time.Microsecond),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		RemoteAddr:   "192.0.2.1:9993",
		Line:         &LineEvent{Size: 8, Data: []byte("200 ok")},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.ConnectionID != event.ConnectionID {
		t.Errorf("ConnectionID mismatch: %q", decoded.ConnectionID)
	}
	if decoded.Line == nil || string(decoded.Line.Data) != "200 ok" {
		t.Errorf("Line payload mismatch: %+v", decoded.Line)
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.dlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	logger.Log(sampleEvent("conn-a", DirectionIn))
	logger.Log(sampleEvent("conn-b", DirectionOut))
	logger.Log(sampleEvent("conn-a", DirectionOut))

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Log after close is silently ignored.
	logger.Log(sampleEvent("conn-a", DirectionIn))

	reader, err := NewFilteredReader(path, Filter{ConnectionID: "conn-a"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	var count int
	for {
		_, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 filtered events, got %d", count)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.dlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Log(sampleEvent("conn", DirectionIn))
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var count int
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		count++
	}
	if count != 400 {
		t.Errorf("expected 400 events, got %d", count)
	}
}

type countingLogger struct {
	mu    sync.Mutex
	count int
}

func (c *countingLogger) Log(Event) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func TestMultiLogger(t *testing.T) {
	a := &countingLogger{}
	b := &countingLogger{}
	m := NewMultiLogger(a, b, NoopLogger{})

	m.Log(sampleEvent("conn", DirectionIn))
	m.Log(sampleEvent("conn", DirectionOut))

	if a.count != 2 || b.count != 2 {
		t.Errorf("expected 2 events in each logger, got %d and %d", a.count, b.count)
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	sl := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(sl)

	adapter.Log(sampleEvent("conn-slog", DirectionIn))

	if !bytes.Contains(buf.Bytes(), []byte("conn-slog")) {
		t.Errorf("slog output missing connection ID: %s", buf.String())
	}
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	adapter := NewZerologAdapter(zl)

	adapter.Log(sampleEvent("conn-zl", DirectionOut))
	adapter.Log(Event{
		ConnectionID: "conn-zl",
		Category:     CategoryAnomaly,
		Error:        &ErrorEventData{Message: "late response discarded"},
	})

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("conn-zl")) {
		t.Errorf("zerolog output missing connection ID: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte("warn")) {
		t.Errorf("anomaly not logged at warn level: %s", out)
	}
}
