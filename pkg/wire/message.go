package wire

import (
	"errors"
	"strings"
)

// Wire format constants.
const (
	// LineTerminator ends every wire line.
	LineTerminator = "\r\n"

	// DefaultMaxLineLength is the maximum accepted line length (4 KB).
	// Lines beyond this are treated as malformed input.
	DefaultMaxLineLength = 4096
)

// Codec errors.
var (
	// ErrMalformedMessage indicates bytes that cannot be parsed as a
	// protocol message. Framing is no longer trustworthy after this error
	// and the connection should be closed.
	ErrMalformedMessage = errors.New("malformed message")
)

// MessageKind classifies a message from its status code.
type MessageKind int

const (
	// KindFailure is a synchronous error response.
	KindFailure MessageKind = iota

	// KindSuccess is a synchronous acknowledgement.
	KindSuccess

	// KindNotification is an unsolicited asynchronous status push.
	KindNotification
)

// String returns the message kind name.
func (k MessageKind) String() string {
	switch k {
	case KindFailure:
		return "FAILURE"
	case KindSuccess:
		return "SUCCESS"
	case KindNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// CodeRange is an inclusive status code interval.
type CodeRange struct {
	Low  int `yaml:"low"`
	High int `yaml:"high"`
}

// Contains reports whether code falls within the range.
func (r CodeRange) Contains(code int) bool {
	return code >= r.Low && code <= r.High
}

// CodeRanges partitions the status code space into message kinds.
// The boundaries are firmware defined and therefore configuration data.
type CodeRanges struct {
	Failure CodeRange `yaml:"failure"`
	Success CodeRange `yaml:"success"`
	Async   CodeRange `yaml:"async"`
}

// DefaultCodeRanges returns the code ranges of the documented protocol.
func DefaultCodeRanges() CodeRanges {
	return CodeRanges{
		Failure: CodeRange{Low: 100, High: 199},
		Success: CodeRange{Low: 200, High: 299},
		Async:   CodeRange{Low: 500, High: 599},
	}
}

// Classify maps a status code to a message kind. Codes outside all
// configured ranges classify as notifications: unknown codes from newer
// firmware must not be treated as responses or protocol errors.
func (r CodeRanges) Classify(code int) MessageKind {
	switch {
	case r.Failure.Contains(code):
		return KindFailure
	case r.Success.Contains(code):
		return KindSuccess
	default:
		return KindNotification
	}
}

// Message is one classified protocol message.
type Message struct {
	// Code is the 3-digit status code.
	Code int

	// Text is the free text after the code, without the block-opening colon.
	Text string

	// Body holds the payload lines of a multi-line message (nil for
	// single-line messages).
	Body []string

	kind MessageKind
}

// Kind returns the classification assigned when the message was decoded.
func (m Message) Kind() MessageKind {
	return m.kind
}

// IsMultiline reports whether the message carried a payload block.
func (m Message) IsMultiline() bool {
	return m.Body != nil
}

// Field is one key/value pair from a message body.
type Field struct {
	Key   string
	Value string
}

// Fields parses "key: value" body lines, preserving order and duplicates.
// Lines without a separator are returned with an empty key and the whole
// line as value (clip list lines are positional, not keyed).
func Fields(body []string) []Field {
	fields := make([]Field, 0, len(body))
	for _, line := range body {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			fields = append(fields, Field{Value: line})
			continue
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields
}
