package state

import (
	"github.com/deckcontrol/hyperdeck-go/pkg/timecode"
)

// SlotStatus is the mount status of a media slot.
type SlotStatus string

const (
	SlotEmpty    SlotStatus = "empty"
	SlotMounted  SlotStatus = "mounted"
	SlotMounting SlotStatus = "mounting"
	SlotError    SlotStatus = "error"
)

// Slot is one media slot of the deck. The ID is 1-based and stable for
// the session.
type Slot struct {
	ID     int
	Status SlotStatus

	// Metrics are unknown (zero) until the first slot info query lands.
	VolumeName    string
	RecordingTime int // seconds remaining at current settings
	VideoFormat   string
	Blocked       bool

	// Disk lists the recorded file names on the slot's medium.
	Disk []string
}

// Clip is one contiguous recorded segment referenced by the timeline.
type Clip struct {
	// Index is the 1-based clip ID on the wire.
	Index int

	Name string

	// SlotID is the active slot at the time the timeline was rebuilt.
	SlotID int

	Start    timecode.Timecode
	Duration timecode.Timecode

	// [FrameIn, FrameOut) is the clip's half-open frame interval on the
	// timeline. Intervals are contiguous: FrameOut of clip k equals
	// FrameIn of clip k+1, and the first FrameIn is 0.
	FrameIn  int
	FrameOut int
}

// Frames returns the clip length in frames.
func (c Clip) Frames() int {
	return c.FrameOut - c.FrameIn
}

// TransportStatus is the deck transport mode.
type TransportStatus string

const (
	TransportPreview TransportStatus = "preview"
	TransportStopped TransportStatus = "stopped"
	TransportPlay    TransportStatus = "play"
	TransportForward TransportStatus = "forward"
	TransportRewind  TransportStatus = "rewind"
	TransportJog     TransportStatus = "jog"
	TransportShuttle TransportStatus = "shuttle"
	TransportRecord  TransportStatus = "record"
)

// PlayheadUndefined is the playhead value when no clip is loaded.
const PlayheadUndefined = -1

// Timeline is the deck's ordered representation of recorded material.
// Playback order is the device's, not insertion order.
type Timeline struct {
	Clips []Clip

	// Playhead is the 0-based frame offset on the timeline, or
	// PlayheadUndefined when no clip is loaded. The wire value is
	// 1-based and converted at the parse boundary.
	Playhead int

	// ClipID is the 1-based ID of the clip under the playhead (0 none).
	ClipID int

	Status     TransportStatus
	Speed      int // signed percentage, negative = reverse
	Loop       bool
	SingleClip bool
}

// TotalFrames returns the total timeline length in frames.
func (t Timeline) TotalFrames() int {
	if len(t.Clips) == 0 {
		return 0
	}
	return t.Clips[len(t.Clips)-1].FrameOut
}

// DeviceInfo describes the connected deck.
type DeviceInfo struct {
	Model           string
	ProtocolVersion string
	SoftwareVersion string
	UniqueID        string
	SlotCount       int
}

// Settings mirrors the deck's configuration as last reported.
type Settings struct {
	VideoInput string
	AudioInput string
	AudioCodec string
	FileFormat string

	AudioMapping       int
	AudioInputChannels int

	TimecodeInput      string
	TimecodeOutput     string
	TimecodePreference string

	RecordTrigger   string
	RecordPrefix    string
	AppendTimestamp bool

	GenlockInputResync bool

	// StopMode comes from the "play option" query, not "configuration".
	StopMode string
}

// Video carries the output/input video state outside the timeline.
type Video struct {
	VideoFormat      string
	Framerate        int // derived from VideoFormat, 0 = unknown
	InputVideoFormat string
	DynamicRange     string

	DisplayTimecode string
	Timecode        string
}

// Playrange is the active timeline playback range in frame numbers
// (0 = no active range).
type Playrange struct {
	In  int
	Out int
}

// Active reports whether a playrange is set.
func (p Playrange) Active() bool {
	return p.In != 0 || p.Out != 0
}

// ChangeKind identifies which part of the model changed.
type ChangeKind int

const (
	ChangeDevice ChangeKind = iota
	ChangeSlots
	ChangeTimeline
	ChangeTransport
	ChangeConfiguration
	ChangePlayrange
	ChangeStale
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeDevice:
		return "device"
	case ChangeSlots:
		return "slots"
	case ChangeTimeline:
		return "timeline"
	case ChangeTransport:
		return "transport"
	case ChangeConfiguration:
		return "configuration"
	case ChangePlayrange:
		return "playrange"
	case ChangeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Change describes one committed model mutation. Observers receive it
// after the mutation is visible.
type Change struct {
	Kind ChangeKind

	// ActiveSlotChanged is set on transport changes that moved the
	// active slot, which invalidates the timeline until re-queried.
	ActiveSlotChanged bool
}
