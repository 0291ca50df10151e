package deck

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/deckcontrol/hyperdeck-go/pkg/config"
	"github.com/deckcontrol/hyperdeck-go/pkg/state"
	"github.com/deckcontrol/hyperdeck-go/pkg/timecode"
	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// Operation errors.
var (
	ErrSpeedOutOfRange = errors.New("shuttle speed out of range")
	ErrUnknownClip     = errors.New("unknown clip id")
	ErrNoFormatToken   = errors.New("deck returned no format token")
	ErrInvalidSetting  = errors.New("invalid configuration value")
)

// Shuttle speed bounds in percent.
const (
	MinShuttleSpeed = -1600
	MaxShuttleSpeed = 1600
)

// PlayOptions parameterizes Play. A zero Speed plays at 100%.
type PlayOptions struct {
	Speed      int
	Loop       bool
	SingleClip bool
}

// Clip id sentinels for GotoClip.
const (
	ClipStart = 0  // first clip of the timeline
	ClipEnd   = -1 // last clip of the timeline
)

func (d *Deck) dispatchOK(ctx context.Context, cmd wire.Command) error {
	_, err := d.Dispatch(ctx, cmd)
	return err
}

// Preview switches the deck to preview (record standby) mode.
func (d *Deck) Preview(ctx context.Context) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdPreview,
		wire.Param{Key: "enable", Value: "true"}))
}

// Output switches the deck to output (playback) mode and parks the
// playhead at the first frame of the last clip.
func (d *Deck) Output(ctx context.Context) error {
	if err := d.dispatchOK(ctx, wire.NewCommand(wire.CmdPreview,
		wire.Param{Key: "enable", Value: "false"})); err != nil {
		return err
	}
	tl := d.model.Timeline()
	if len(tl.Clips) == 0 {
		return nil
	}
	last := tl.Clips[len(tl.Clips)-1]
	return d.GotoTimeline(ctx, last.FrameIn)
}

// Record starts recording into a new clip named by the deck.
func (d *Deck) Record(ctx context.Context) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdRecord))
}

// RecordNamed starts recording into a clip with the given name.
func (d *Deck) RecordNamed(ctx context.Context, name string) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdRecord,
		wire.Param{Key: "name", Value: name}))
}

// RecordSpill continues the current recording on the next slot.
func (d *Deck) RecordSpill(ctx context.Context) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdRecordSpill))
}

// RecordSpillTo continues the current recording on a specific slot.
func (d *Deck) RecordSpillTo(ctx context.Context, slot int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdRecordSpill,
		wire.Param{Key: "slot id", Value: strconv.Itoa(slot)}))
}

// Stop stops playback or recording, then refreshes the disk and clip
// lists so a finished recording shows up in the model.
func (d *Deck) Stop(ctx context.Context) error {
	if err := d.dispatchOK(ctx, wire.NewCommand(wire.CmdStop)); err != nil {
		return err
	}
	if _, err := d.Dispatch(ctx, wire.NewCommand(wire.CmdDiskList)); err != nil && !isCommandError(err) {
		return err
	}
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdClipsGet))
}

// Play starts playback.
func (d *Deck) Play(ctx context.Context, opts PlayOptions) error {
	speed := opts.Speed
	if speed == 0 {
		speed = 100
	}
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdPlay,
		wire.Param{Key: "speed", Value: strconv.Itoa(speed)},
		wire.Param{Key: "loop", Value: strconv.FormatBool(opts.Loop)},
		wire.Param{Key: "single clip", Value: strconv.FormatBool(opts.SingleClip)}))
}

// GotoClip seeks to the start of a clip by 1-based id. The sentinels
// ClipStart and ClipEnd select the first and last clip.
func (d *Deck) GotoClip(ctx context.Context, id int) error {
	switch id {
	case ClipStart:
		return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
			wire.Param{Key: "clip", Value: "start"}))
	case ClipEnd:
		return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
			wire.Param{Key: "clip", Value: "end"}))
	default:
		return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
			wire.Param{Key: "clip id", Value: strconv.Itoa(id)}))
	}
}

// GotoClipRelative seeks count clips forward (positive) or back.
func (d *Deck) GotoClipRelative(ctx context.Context, count int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
		wire.Param{Key: "clip id", Value: fmt.Sprintf("%+d", count)}))
}

// GotoClipFrame seeks to a 0-based frame within the current clip.
func (d *Deck) GotoClipFrame(ctx context.Context, frame int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
		wire.Param{Key: "clip", Value: strconv.Itoa(frame + 1)}))
}

// GotoClipFrameRelative moves within the current clip by a frame delta.
func (d *Deck) GotoClipFrameRelative(ctx context.Context, frames int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
		wire.Param{Key: "clip", Value: fmt.Sprintf("%+d", frames)}))
}

// GotoTimeline seeks to a 0-based timeline frame offset.
func (d *Deck) GotoTimeline(ctx context.Context, frame int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
		wire.Param{Key: "timeline", Value: strconv.Itoa(frame + 1)}))
}

// GotoTimelineRelative moves the playhead by a frame delta.
func (d *Deck) GotoTimelineRelative(ctx context.Context, frames int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
		wire.Param{Key: "timeline", Value: fmt.Sprintf("%+d", frames)}))
}

// GotoTimecode seeks to an absolute timeline timecode.
func (d *Deck) GotoTimecode(ctx context.Context, tc timecode.Timecode) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
		wire.Param{Key: "timecode", Value: tc.String()}))
}

// MoveTimecode moves the playhead by a timecode delta, backwards when
// reverse is set.
func (d *Deck) MoveTimecode(ctx context.Context, tc timecode.Timecode, reverse bool) error {
	sign := "+"
	if reverse {
		sign = "-"
	}
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdGoto,
		wire.Param{Key: "timecode", Value: sign + tc.String()}))
}

// Shuttle plays at the given speed in percent, negative for reverse.
func (d *Deck) Shuttle(ctx context.Context, speed int) error {
	if speed < MinShuttleSpeed || speed > MaxShuttleSpeed {
		return fmt.Errorf("%w: %d", ErrSpeedOutOfRange, speed)
	}
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdShuttle,
		wire.Param{Key: "speed", Value: strconv.Itoa(speed)}))
}

// Jog moves the playhead by a frame delta while jogging.
func (d *Deck) Jog(ctx context.Context, frames int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdJog,
		wire.Param{Key: "timeline", Value: fmt.Sprintf("%+d", frames)}))
}

// AddClip appends a recorded file to the timeline, then refreshes the
// clip list.
func (d *Deck) AddClip(ctx context.Context, name string) error {
	if err := d.dispatchOK(ctx, wire.NewCommand(wire.CmdClipsAdd,
		wire.Param{Key: "name", Value: name})); err != nil {
		return err
	}
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdClipsGet))
}

// RemoveClip removes a clip from the timeline by 1-based id, then
// refreshes the clip list.
func (d *Deck) RemoveClip(ctx context.Context, id int) error {
	if err := d.dispatchOK(ctx, wire.NewCommand(wire.CmdClipsRemove,
		wire.Param{Key: "clip id", Value: strconv.Itoa(id)})); err != nil {
		return err
	}
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdClipsGet))
}

// ClearClips empties the timeline, then refreshes the clip list.
func (d *Deck) ClearClips(ctx context.Context) error {
	if err := d.dispatchOK(ctx, wire.NewCommand(wire.CmdClipsClear)); err != nil {
		return err
	}
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdClipsGet))
}

// SetPlayrangeClips restricts playback to count clips starting at the
// given 1-based clip id. Frame bounds come from the mirrored timeline.
func (d *Deck) SetPlayrangeClips(ctx context.Context, id, count int) error {
	tl := d.model.Timeline()
	if id < 1 || count < 1 || id+count-1 > len(tl.Clips) {
		return fmt.Errorf("%w: id %d count %d of %d clips", ErrUnknownClip, id, count, len(tl.Clips))
	}
	first := tl.Clips[id-1]
	last := tl.Clips[id+count-2]
	return d.SetPlayrangeFrames(ctx, first.FrameIn, last.FrameOut-1)
}

// SetPlayrangeTimecode restricts playback to a timecode range.
func (d *Deck) SetPlayrangeTimecode(ctx context.Context, in, out timecode.Timecode) error {
	fps := d.model.Video().Framerate
	return d.SetPlayrangeFrames(ctx, in.TotalFrames(fps), out.TotalFrames(fps))
}

// SetPlayrangeFrames restricts playback to an inclusive 0-based frame
// range.
func (d *Deck) SetPlayrangeFrames(ctx context.Context, in, out int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdPlayrangeSet,
		wire.Param{Key: "timeline in", Value: strconv.Itoa(in + 1)},
		wire.Param{Key: "timeline out", Value: strconv.Itoa(out + 1)}))
}

// ClearPlayrange removes the playback range restriction.
func (d *Deck) ClearPlayrange(ctx context.Context) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdPlayrangeClear))
}

// Configure applies the set fields of a Settings. Values outside the
// known enumerations are rejected with ErrInvalidSetting before anything
// is sent: a configuration command carries several parameters at once,
// and a value the deck refuses would leave the rest half-applied. For a
// firmware value the enumerations do not know, send a configuration
// command through Dispatch. Stop mode goes through its own command.
func (d *Deck) Configure(ctx context.Context, s config.Settings) error {
	if s.Empty() {
		return nil
	}

	var params []wire.Param
	if s.VideoInput != "" {
		if !s.VideoInput.Valid() {
			return fmt.Errorf("%w: video input %q", ErrInvalidSetting, s.VideoInput)
		}
		params = append(params, wire.Param{Key: "video input", Value: string(s.VideoInput)})
	}
	if s.AudioInput != "" {
		if !s.AudioInput.Valid() {
			return fmt.Errorf("%w: audio input %q", ErrInvalidSetting, s.AudioInput)
		}
		params = append(params, wire.Param{Key: "audio input", Value: string(s.AudioInput)})
	}
	if s.AudioCodec != "" {
		if !s.AudioCodec.Valid() {
			return fmt.Errorf("%w: audio codec %q", ErrInvalidSetting, s.AudioCodec)
		}
		params = append(params, wire.Param{Key: "audio codec", Value: string(s.AudioCodec)})
	}
	if s.FileFormat != "" {
		if !s.FileFormat.Valid() {
			return fmt.Errorf("%w: file format %q", ErrInvalidSetting, s.FileFormat)
		}
		params = append(params, wire.Param{Key: "file format", Value: string(s.FileFormat)})
	}

	if len(params) > 0 {
		if err := d.dispatchOK(ctx, wire.NewCommand(wire.CmdConfiguration, params...)); err != nil {
			return err
		}
	}

	if s.StopMode != "" {
		if !s.StopMode.Valid() {
			return fmt.Errorf("%w: stop mode %q", ErrInvalidSetting, s.StopMode)
		}
		return d.dispatchOK(ctx, wire.NewCommand(wire.CmdPlayOption,
			wire.Param{Key: "stop mode", Value: string(s.StopMode)}))
	}
	return nil
}

// SelectSlot makes the given slot active. The clip list refresh follows
// from the resulting transport notification.
func (d *Deck) SelectSlot(ctx context.Context, id int) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdSlotSelect,
		wire.Param{Key: "slot id", Value: strconv.Itoa(id)}))
}

// Format erases the active slot's media: a prepare command yields a
// one-time token which a confirm command must echo.
func (d *Deck) Format(ctx context.Context) error {
	msg, err := d.Dispatch(ctx, wire.NewCommand(wire.CmdFormat,
		wire.Param{Key: "prepare", Value: "exFAT"}))
	if err != nil {
		return err
	}
	if len(msg.Body) == 0 || msg.Body[0] == "" {
		return ErrNoFormatToken
	}
	token := msg.Body[0]
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdFormat,
		wire.Param{Key: "confirm", Value: token}))
}

// CurrentClip returns the clip under the playhead, if any.
func (d *Deck) CurrentClip() (state.Clip, bool) {
	return d.model.CurrentClip()
}

// Reboot restarts the deck. The connection drops; reconnecting is the
// caller's move.
func (d *Deck) Reboot(ctx context.Context) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdReboot))
}

// Ping checks liveness of the control connection.
func (d *Deck) Ping(ctx context.Context) error {
	return d.dispatchOK(ctx, wire.NewCommand(wire.CmdPing))
}
