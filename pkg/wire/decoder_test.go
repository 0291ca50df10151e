package wire

import (
	"errors"
	"strings"
	"testing"
)

func drain(t *testing.T, d *Decoder) []Message {
	t.Helper()
	var msgs []Message
	for {
		msg, ok, err := d.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			return msgs
		}
		msgs = append(msgs, msg)
	}
}

func TestDecoderSingleLine(t *testing.T) {
	d := NewDecoder(DefaultCodeRanges())
	d.Write([]byte("200 ok\r\n"))

	msgs := drain(t, d)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Code != 200 || msgs[0].Text != "ok" {
		t.Errorf("got %d %q", msgs[0].Code, msgs[0].Text)
	}
	if msgs[0].Kind() != KindSuccess {
		t.Errorf("expected success, got %v", msgs[0].Kind())
	}
	if msgs[0].IsMultiline() {
		t.Error("single-line message reported as multiline")
	}
}

func TestDecoderMultiline(t *testing.T) {
	d := NewDecoder(DefaultCodeRanges())
	d.Write([]byte("208 transport info:\r\nstatus: stopped\r\nspeed: 0\r\n\r\n"))

	msgs := drain(t, d)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Code != 208 || msg.Text != "transport info" {
		t.Errorf("got %d %q", msg.Code, msg.Text)
	}
	if len(msg.Body) != 2 || msg.Body[0] != "status: stopped" {
		t.Errorf("unexpected body: %v", msg.Body)
	}
}

// TestDecoderChunkBoundaries verifies the decoder is resumable at every
// possible split point of the input stream.
func TestDecoderChunkBoundaries(t *testing.T) {
	input := "500 connection info:\r\nprotocol version: 1.12\r\nmodel: HyperDeck Studio HD Plus\r\n\r\n200 ok\r\n108 internal error\r\n"

	for split := 0; split <= len(input); split++ {
		d := NewDecoder(DefaultCodeRanges())
		d.Write([]byte(input[:split]))
		msgs := drain(t, d)
		d.Write([]byte(input[split:]))
		msgs = append(msgs, drain(t, d)...)

		if len(msgs) != 3 {
			t.Fatalf("split %d: expected 3 messages, got %d", split, len(msgs))
		}
		if msgs[0].Code != 500 || len(msgs[0].Body) != 2 {
			t.Errorf("split %d: bad first message: %+v", split, msgs[0])
		}
		if msgs[1].Code != 200 || msgs[2].Code != 108 {
			t.Errorf("split %d: bad trailing messages", split)
		}
	}
}

func TestDecoderClassification(t *testing.T) {
	tests := []struct {
		code int
		want MessageKind
	}{
		{100, KindFailure},
		{107, KindFailure},
		{200, KindSuccess},
		{216, KindSuccess},
		{500, KindNotification},
		{514, KindNotification},
		// Outside all configured ranges: conservatively a notification.
		{300, KindNotification},
		{999, KindNotification},
	}

	ranges := DefaultCodeRanges()
	for _, tt := range tests {
		if got := ranges.Classify(tt.code); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestDecoderCustomRanges(t *testing.T) {
	ranges := CodeRanges{
		Failure: CodeRange{Low: 100, High: 149},
		Success: CodeRange{Low: 150, High: 299},
		Async:   CodeRange{Low: 500, High: 699},
	}
	if ranges.Classify(160) != KindSuccess {
		t.Error("custom success range not honored")
	}
	if ranges.Classify(140) != KindFailure {
		t.Error("custom failure range not honored")
	}
}

func TestDecoderMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no status code", "hello there\r\n"},
		{"short line", "20\r\n"},
		{"code glued to text", "200ok\r\n"},
		{"bare body line", "\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(DefaultCodeRanges())
			d.Write([]byte(tt.input))
			_, _, err := d.Next()
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}

func TestDecoderOversizedLine(t *testing.T) {
	t.Run("unterminated", func(t *testing.T) {
		d := NewDecoder(DefaultCodeRanges())
		d.SetMaxLineLength(16)
		d.Write([]byte("200 this line is far too long to be acceptable"))

		_, _, err := d.Next()
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("expected ErrMalformedMessage, got %v", err)
		}
	})

	t.Run("terminated", func(t *testing.T) {
		d := NewDecoder(DefaultCodeRanges())
		d.SetMaxLineLength(16)
		d.Write([]byte("200 " + strings.Repeat("x", 4096) + "\r\n"))

		_, ok, err := d.Next()
		if ok {
			t.Error("oversized line must not yield a message")
		}
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("expected ErrMalformedMessage, got %v", err)
		}
	})

	t.Run("terminated body line", func(t *testing.T) {
		d := NewDecoder(DefaultCodeRanges())
		d.SetMaxLineLength(16)
		d.Write([]byte("205 clips info:\r\n" + strings.Repeat("y", 64) + "\r\n"))

		_, ok, err := d.Next()
		if ok {
			t.Error("oversized body line must not yield a message")
		}
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("expected ErrMalformedMessage, got %v", err)
		}
	})
}

func TestFields(t *testing.T) {
	body := []string{
		"slot id: 1",
		"status: mounted",
		"volume name: Media 1",
		"7: clip.mov 00:00:00:00 00:00:04:03",
	}

	fields := Fields(body)
	if len(fields) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(fields))
	}
	if fields[0].Key != "slot id" || fields[0].Value != "1" {
		t.Errorf("bad field: %+v", fields[0])
	}
	if fields[2].Value != "Media 1" {
		t.Errorf("value with space mangled: %+v", fields[2])
	}
}
