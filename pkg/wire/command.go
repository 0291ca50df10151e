package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Command encoding errors.
var (
	ErrUnknownCommand = errors.New("unknown command kind")
	ErrInvalidParam   = errors.New("invalid command parameter")
)

// CommandKind identifies a deck command. The set is closed over the
// documented command surface; CmdRaw carries verbatim text for
// forward-compatible passthrough of commands this library does not know.
type CommandKind int

const (
	CmdRaw CommandKind = iota
	CmdDeviceInfo
	CmdConfiguration
	CmdTransportInfo
	CmdNotify
	CmdSlotInfo
	CmdSlotSelect
	CmdDiskList
	CmdClipsGet
	CmdClipsAdd
	CmdClipsRemove
	CmdClipsClear
	CmdPreview
	CmdPlay
	CmdPlayOption
	CmdPlayrange
	CmdPlayrangeSet
	CmdPlayrangeClear
	CmdRecord
	CmdRecordSpill
	CmdStop
	CmdGoto
	CmdShuttle
	CmdJog
	CmdFormat
	CmdReboot
	CmdPing
)

// commandNames maps known command kinds to their wire spelling.
var commandNames = map[CommandKind]string{
	CmdDeviceInfo:     "device info",
	CmdConfiguration:  "configuration",
	CmdTransportInfo:  "transport info",
	CmdNotify:         "notify",
	CmdSlotInfo:       "slot info",
	CmdSlotSelect:     "slot select",
	CmdDiskList:       "disk list",
	CmdClipsGet:       "clips get",
	CmdClipsAdd:       "clips add",
	CmdClipsRemove:    "clips remove",
	CmdClipsClear:     "clips clear",
	CmdPreview:        "preview",
	CmdPlay:           "play",
	CmdPlayOption:     "play option",
	CmdPlayrange:      "playrange",
	CmdPlayrangeSet:   "playrange set",
	CmdPlayrangeClear: "playrange clear",
	CmdRecord:         "record",
	CmdRecordSpill:    "record spill",
	CmdStop:           "stop",
	CmdGoto:           "goto",
	CmdShuttle:        "shuttle",
	CmdJog:            "jog",
	CmdFormat:         "format",
	CmdReboot:         "reboot",
	CmdPing:           "ping",
}

// String returns the wire spelling of the command kind.
func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "raw"
}

// Param is one ordered command parameter. Parameter order is significant
// on the wire, so commands carry a slice rather than a map.
type Param struct {
	Key   string
	Value string
}

// Command is one outgoing deck command.
type Command struct {
	// Kind selects the command. CmdRaw sends Raw verbatim.
	Kind CommandKind

	// Params are appended after the command name in order.
	Params []Param

	// Raw is the verbatim command text for CmdRaw (without terminator).
	Raw string
}

// NewCommand builds a command with the given parameters.
func NewCommand(kind CommandKind, params ...Param) Command {
	return Command{Kind: kind, Params: params}
}

// RawCommand builds a passthrough command from verbatim text.
func RawCommand(text string) Command {
	return Command{Kind: CmdRaw, Raw: text}
}

// EncodeCommand serializes a command into one framed wire line.
// Parameter keys and values are checked to be well-formed (no line breaks
// that would break framing); whether a value is acceptable to the deck is
// the deck's concern.
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd.Kind == CmdRaw {
		if !wellFormed(cmd.Raw) || cmd.Raw == "" {
			return nil, fmt.Errorf("%w: raw command %q", ErrInvalidParam, cmd.Raw)
		}
		return []byte(cmd.Raw + LineTerminator), nil
	}

	name, ok := commandNames[cmd.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, cmd.Kind)
	}

	var b strings.Builder
	b.WriteString(name)
	for i, p := range cmd.Params {
		if p.Key == "" || !wellFormed(p.Key) || !wellFormed(p.Value) {
			return nil, fmt.Errorf("%w: %q=%q", ErrInvalidParam, p.Key, p.Value)
		}
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(" ")
		}
		b.WriteString(p.Key)
		b.WriteString(": ")
		b.WriteString(p.Value)
	}
	b.WriteString(LineTerminator)
	return []byte(b.String()), nil
}

// wellFormed reports whether s is safe to embed in a command line.
func wellFormed(s string) bool {
	return !strings.ContainsAny(s, "\r\n")
}

// CommandError is a failure response the deck returned for a specific
// command. It is non-fatal; the caller decides whether to retry.
type CommandError struct {
	Code int
	Text string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("deck error %d: %s", e.Code, e.Text)
}
