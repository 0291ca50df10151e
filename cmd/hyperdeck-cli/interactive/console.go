// Package interactive provides the command console for hyperdeck-cli.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/deckcontrol/hyperdeck-go/pkg/config"
	"github.com/deckcontrol/hyperdeck-go/pkg/deck"
	"github.com/deckcontrol/hyperdeck-go/pkg/state"
	"github.com/deckcontrol/hyperdeck-go/pkg/timecode"
	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

const opTimeout = 10 * time.Second

// Console handles interactive mode for hyperdeck-cli.
type Console struct {
	deck *deck.Deck
	addr string
	rl   *readline.Instance

	watching bool
}

// New creates a console attached to the given deck client.
func New(d *deck.Deck, addr string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "deck> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{deck: d, addr: addr, rl: rl}
	d.OnChange(c.handleChange)
	return c, nil
}

// Stdout returns a writer coordinating with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		opCtx, opCancel := context.WithTimeout(ctx, opTimeout)
		c.dispatch(opCtx, cancel, cmd, args, input)
		opCancel()

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			return
		}
	}
}

func (c *Console) dispatch(ctx context.Context, cancel context.CancelFunc, cmd string, args []string, input string) {
	out := c.rl.Stdout()

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "connect":
		c.report(c.deck.Connect(ctx))

	case "disconnect":
		c.report(c.deck.Disconnect())

	case "status":
		c.cmdStatus()

	case "slots":
		c.cmdSlots()

	case "clips":
		c.cmdClips()

	case "preview":
		c.report(c.deck.Preview(ctx))

	case "output":
		c.report(c.deck.Output(ctx))

	case "record":
		if len(args) > 0 {
			c.report(c.deck.RecordNamed(ctx, strings.Join(args, " ")))
		} else {
			c.report(c.deck.Record(ctx))
		}

	case "spill":
		if len(args) > 0 {
			slot, err := strconv.Atoi(args[0])
			if err != nil {
				fmt.Fprintln(out, "usage: spill [slot]")
				return
			}
			c.report(c.deck.RecordSpillTo(ctx, slot))
		} else {
			c.report(c.deck.RecordSpill(ctx))
		}

	case "stop":
		c.report(c.deck.Stop(ctx))

	case "play":
		c.cmdPlay(ctx, args)

	case "goto":
		c.cmdGoto(ctx, args)

	case "shuttle":
		speed, err := strconv.Atoi(argOr(args, 0, ""))
		if err != nil {
			fmt.Fprintln(out, "usage: shuttle <speed>")
			return
		}
		c.report(c.deck.Shuttle(ctx, speed))

	case "jog":
		frames, err := strconv.Atoi(argOr(args, 0, ""))
		if err != nil {
			fmt.Fprintln(out, "usage: jog <frames>")
			return
		}
		c.report(c.deck.Jog(ctx, frames))

	case "add":
		if len(args) == 0 {
			fmt.Fprintln(out, "usage: add <name>")
			return
		}
		c.report(c.deck.AddClip(ctx, strings.Join(args, " ")))

	case "remove":
		id, err := strconv.Atoi(argOr(args, 0, ""))
		if err != nil {
			fmt.Fprintln(out, "usage: remove <clip id>")
			return
		}
		c.report(c.deck.RemoveClip(ctx, id))

	case "clear":
		c.report(c.deck.ClearClips(ctx))

	case "playrange":
		c.cmdPlayrange(ctx, args)

	case "config":
		c.cmdConfig(ctx, args)

	case "slot":
		id, err := strconv.Atoi(argOr(args, 0, ""))
		if err != nil {
			fmt.Fprintln(out, "usage: slot <id>")
			return
		}
		c.report(c.deck.SelectSlot(ctx, id))

	case "format":
		c.report(c.deck.Format(ctx))

	case "reboot":
		c.report(c.deck.Reboot(ctx))

	case "ping":
		c.report(c.deck.Ping(ctx))

	case "refresh":
		c.report(c.deck.Refresh(ctx))

	case "watch":
		c.watching = !c.watching
		fmt.Fprintf(out, "watch %v\n", c.watching)

	case "raw":
		raw := strings.TrimSpace(strings.TrimPrefix(input, "raw"))
		if raw == "" {
			fmt.Fprintln(out, "usage: raw <command line>")
			return
		}
		msg, err := c.deck.Dispatch(ctx, wire.RawCommand(raw))
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintf(out, "%d %s\n", msg.Code, msg.Text)
		for _, l := range msg.Body {
			fmt.Fprintln(out, "  "+l)
		}

	case "quit", "exit", "q":
		fmt.Fprintln(out, "Exiting...")
		cancel()

	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	snap := c.deck.Snapshot()

	fmt.Fprintf(out, "Deck:      %s (%s, sw %s) at %s\n",
		snap.Device.Model, snap.Device.ProtocolVersion, snap.Device.SoftwareVersion, c.addr)
	fmt.Fprintf(out, "Link:      %s", c.deck.ConnectionState())
	if snap.Stale {
		fmt.Fprint(out, " (state stale)")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Transport: %s speed %d%%\n", snap.Timeline.Status, snap.Timeline.Speed)
	fmt.Fprintf(out, "Timeline:  %d clips, %d frames, playhead %s\n",
		len(snap.Timeline.Clips), snap.Timeline.TotalFrames(), playheadString(snap))
	if snap.Playrange.Active() {
		fmt.Fprintf(out, "Playrange: %d..%d\n", snap.Playrange.In, snap.Playrange.Out)
	}
	fmt.Fprintf(out, "Video:     %s (%d fps), input %s\n",
		snap.Video.VideoFormat, snap.Video.Framerate, snap.Settings.VideoInput)
}

func playheadString(snap deck.Snapshot) string {
	if snap.Timeline.Playhead == state.PlayheadUndefined {
		return "undefined"
	}
	fps := snap.Video.Framerate
	if fps <= 0 {
		return strconv.Itoa(snap.Timeline.Playhead)
	}
	return fmt.Sprintf("%d (%s)", snap.Timeline.Playhead,
		timecode.FromFrames(snap.Timeline.Playhead, fps))
}

func (c *Console) cmdSlots() {
	out := c.rl.Stdout()
	snap := c.deck.Snapshot()
	for _, sl := range snap.Slots {
		active := " "
		if sl.ID == snap.ActiveSlot {
			active = "*"
		}
		fmt.Fprintf(out, "%s slot %d: %-8s %-12s rec %ds, %d files\n",
			active, sl.ID, sl.Status, sl.VolumeName, sl.RecordingTime, len(sl.Disk))
	}
}

func (c *Console) cmdClips() {
	out := c.rl.Stdout()
	tl := c.deck.Snapshot().Timeline
	if len(tl.Clips) == 0 {
		fmt.Fprintln(out, "timeline empty")
		return
	}
	for _, cl := range tl.Clips {
		marker := "  "
		if tl.Playhead >= cl.FrameIn && tl.Playhead < cl.FrameOut {
			marker = "> "
		}
		fmt.Fprintf(out, "%s%2d: %-30s %s +%s [%d..%d)\n",
			marker, cl.Index, cl.Name, cl.Start, cl.Duration, cl.FrameIn, cl.FrameOut)
	}
}

func (c *Console) cmdPlay(ctx context.Context, args []string) {
	opts := deck.PlayOptions{}
	for _, a := range args {
		switch a {
		case "loop":
			opts.Loop = true
		case "single":
			opts.SingleClip = true
		default:
			speed, err := strconv.Atoi(a)
			if err != nil {
				fmt.Fprintln(c.rl.Stdout(), "usage: play [speed] [loop] [single]")
				return
			}
			opts.Speed = speed
		}
	}
	c.report(c.deck.Play(ctx, opts))
}

func (c *Console) cmdGoto(ctx context.Context, args []string) {
	out := c.rl.Stdout()
	if len(args) < 1 {
		fmt.Fprintln(out, "usage: goto <clip N | start | end | frame N | tc HH:MM:SS:FF>")
		return
	}
	switch args[0] {
	case "start":
		c.report(c.deck.GotoClip(ctx, deck.ClipStart))
	case "end":
		c.report(c.deck.GotoClip(ctx, deck.ClipEnd))
	case "clip":
		id, err := strconv.Atoi(argOr(args, 1, ""))
		if err != nil {
			fmt.Fprintln(out, "usage: goto clip <id>")
			return
		}
		c.report(c.deck.GotoClip(ctx, id))
	case "frame":
		frame, err := strconv.Atoi(argOr(args, 1, ""))
		if err != nil {
			fmt.Fprintln(out, "usage: goto frame <n>")
			return
		}
		c.report(c.deck.GotoTimeline(ctx, frame))
	case "tc":
		tc, err := timecode.Parse(argOr(args, 1, ""))
		if err != nil {
			fmt.Fprintln(out, "usage: goto tc HH:MM:SS:FF")
			return
		}
		c.report(c.deck.GotoTimecode(ctx, tc))
	default:
		fmt.Fprintf(out, "unknown goto form %q\n", args[0])
	}
}

func (c *Console) cmdPlayrange(ctx context.Context, args []string) {
	out := c.rl.Stdout()
	if len(args) == 1 && args[0] == "clear" {
		c.report(c.deck.ClearPlayrange(ctx))
		return
	}
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: playrange <in frame> <out frame> | clear")
		return
	}
	in, err1 := strconv.Atoi(args[0])
	outF, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(out, "usage: playrange <in frame> <out frame> | clear")
		return
	}
	c.report(c.deck.SetPlayrangeFrames(ctx, in, outF))
}

func (c *Console) cmdConfig(ctx context.Context, args []string) {
	out := c.rl.Stdout()
	if len(args) != 2 {
		snap := c.deck.Snapshot()
		fmt.Fprintf(out, "video input: %s\naudio input: %s\naudio codec: %s\nfile format: %s\nstop mode: %s\n",
			snap.Settings.VideoInput, snap.Settings.AudioInput, snap.Settings.AudioCodec,
			snap.Settings.FileFormat, snap.Settings.StopMode)
		return
	}

	var s config.Settings
	switch args[0] {
	case "video-input":
		s.VideoInput = config.VideoInput(args[1])
	case "audio-input":
		s.AudioInput = config.AudioInput(args[1])
	case "audio-codec":
		s.AudioCodec = config.AudioCodec(args[1])
	case "file-format":
		s.FileFormat = config.FileFormat(args[1])
	case "stop-mode":
		s.StopMode = config.StopMode(args[1])
	default:
		fmt.Fprintf(out, "unknown setting %q\n", args[0])
		return
	}
	c.report(c.deck.Configure(ctx, s))
}

// handleChange runs on the connection's read loop; it only prints.
func (c *Console) handleChange(change state.Change) {
	if !c.watching {
		return
	}
	out := c.rl.Stdout()
	switch change.Kind {
	case state.ChangeTransport:
		tl := c.deck.Snapshot().Timeline
		fmt.Fprintf(out, "[%s speed %d]\n", tl.Status, tl.Speed)
	case state.ChangeTimeline:
		fmt.Fprintf(out, "[playhead %s]\n", playheadString(c.deck.Snapshot()))
	case state.ChangeSlots:
		fmt.Fprintln(out, "[slots changed]")
	case state.ChangeStale:
		fmt.Fprintln(out, "[state stale]")
	}
}

func (c *Console) report(err error) {
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "error:", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "ok")
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Deck Commands:
  Session:
    connect / disconnect      - Manage the control connection
    status / slots / clips    - Show mirrored deck state
    refresh                   - Re-query slot and timeline state
    watch                     - Toggle live state change output
    ping                      - Check connection liveness

  Transport:
    preview / output          - Switch deck mode
    record [name]             - Start recording
    spill [slot]              - Continue recording on another slot
    stop                      - Stop and refresh clip list
    play [speed] [loop] [single]
    goto <start|end|clip N|frame N|tc HH:MM:SS:FF>
    shuttle <speed> / jog <frames>

  Timeline & media:
    add <name> / remove <id> / clear
    playrange <in> <out> | playrange clear
    slot <id>                 - Select active slot
    format                    - Erase the active slot (token handshake)

  Configuration:
    config                    - Show settings
    config <key> <value>      - video-input, audio-input, audio-codec,
                                file-format, stop-mode
  Other:
    raw <command line>        - Send a protocol command verbatim
    quit                      - Exit`)
}
