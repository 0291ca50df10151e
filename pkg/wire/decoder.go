package wire

import (
	"bytes"
	"fmt"
	"strings"
)

// Decoder incrementally parses the byte stream into classified Messages.
//
// Feed arbitrary chunks with Write and drain complete messages with Next.
// The decoder is resumable on any chunk boundary and never blocks: Next
// returns false when more bytes are needed.
//
// Decoder is not safe for concurrent use; the read loop owns it.
type Decoder struct {
	ranges  CodeRanges
	maxLine int

	buf []byte

	// Multi-line block in progress (nil when between messages).
	block *Message
}

// NewDecoder creates a decoder classifying with the given code ranges.
func NewDecoder(ranges CodeRanges) *Decoder {
	return &Decoder{ranges: ranges, maxLine: DefaultMaxLineLength}
}

// SetMaxLineLength overrides the maximum accepted line length.
func (d *Decoder) SetMaxLineLength(n int) {
	if n > 0 {
		d.maxLine = n
	}
}

// Write appends raw bytes from the connection to the decode buffer.
func (d *Decoder) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next extracts at most one complete message from the buffered bytes.
// It returns false when more bytes are needed. A returned error is a
// framing error (ErrMalformedMessage): the stream is no longer
// trustworthy and the connection should be closed.
func (d *Decoder) Next() (Message, bool, error) {
	for {
		line, ok := d.nextLine()
		if !ok {
			if len(d.buf) > d.maxLine {
				return Message{}, false, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedMessage, d.maxLine)
			}
			return Message{}, false, nil
		}
		if len(line) > d.maxLine {
			return Message{}, false, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedMessage, d.maxLine)
		}

		if d.block != nil {
			if line == "" {
				msg := *d.block
				d.block = nil
				return msg, true, nil
			}
			d.block.Body = append(d.block.Body, line)
			continue
		}

		code, text, err := parseStatusLine(line)
		if err != nil {
			return Message{}, false, err
		}

		msg := Message{Code: code, Text: text, kind: d.ranges.Classify(code)}
		if strings.HasSuffix(text, ":") {
			msg.Text = strings.TrimSuffix(text, ":")
			msg.Body = []string{}
			d.block = &msg
			continue
		}
		return msg, true, nil
	}
}

// nextLine splits one CRLF-terminated line off the buffer.
func (d *Decoder) nextLine() (string, bool) {
	i := bytes.Index(d.buf, []byte(LineTerminator))
	if i < 0 {
		return "", false
	}
	line := string(d.buf[:i])
	d.buf = d.buf[i+len(LineTerminator):]
	return line, true
}

// parseStatusLine splits "NNN text" into code and text.
func parseStatusLine(line string) (int, string, error) {
	if len(line) < 3 || !isDigits(line[:3]) {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedMessage, line)
	}
	code := int(line[0]-'0')*100 + int(line[1]-'0')*10 + int(line[2]-'0')
	switch {
	case len(line) == 3:
		return code, "", nil
	case line[3] == ' ':
		return code, line[4:], nil
	default:
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedMessage, line)
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
