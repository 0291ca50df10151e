package state

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deckcontrol/hyperdeck-go/pkg/log"
	"github.com/deckcontrol/hyperdeck-go/pkg/timecode"
	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// Router applies protocol messages to the Model. It is the model's single
// writer: asynchronous notifications go through Route, query responses
// through ApplyResponse. Routing never blocks on I/O and never issues
// commands; follow-up queries are the caller's decision.
type Router struct {
	model  *Model
	logger log.Logger
}

// NewRouter creates a router mutating the given model.
func NewRouter(model *Model, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Router{model: model, logger: logger}
}

// Reset drops all device state ahead of a (re)connect.
func (r *Router) Reset() {
	r.model.reset()
}

// Route applies one unsolicited notification as a single atomic mutation.
// Unknown notification kinds are logged and ignored so that newer firmware
// cannot disrupt command flow.
func (r *Router) Route(msg wire.Message) {
	switch msg.Text {
	case "connection info":
		r.applyConnectionInfo(msg.Body)
	case "slot info":
		r.applySlotInfo(msg.Body)
	case "transport info":
		r.applyTransportInfo(msg.Body)
	case "timeline position":
		r.applyTimelinePosition(msg.Body)
	case "display timecode":
		r.applyDisplayTimecode(msg.Body)
	case "playrange info":
		r.applyPlayrange(msg.Body)
	case "configuration":
		r.applyConfiguration(msg.Body)
	default:
		r.logger.Log(log.Event{
			Timestamp: time.Now(),
			Direction: log.DirectionIn,
			Layer:     log.LayerSession,
			Category:  log.CategoryAnomaly,
			Error: &log.ErrorEventData{
				Message: fmt.Sprintf("unknown notification kind %d %q ignored", msg.Code, msg.Text),
				Context: "router",
			},
		})
	}
}

// ApplyResponse applies a successful query response to the model. Responses
// that carry no state (plain acknowledgements) are ignored.
func (r *Router) ApplyResponse(msg wire.Message) {
	if msg.Kind() != wire.KindSuccess || !msg.IsMultiline() {
		return
	}
	switch msg.Text {
	case "device info":
		r.applyDeviceInfo(msg.Body)
	case "slot info":
		r.applySlotInfo(msg.Body)
	case "transport info":
		r.applyTransportInfo(msg.Body)
	case "playrange info":
		r.applyPlayrange(msg.Body)
	case "configuration":
		r.applyConfiguration(msg.Body)
	case "clips info":
		r.applyClipsInfo(msg.Body)
	case "disk list":
		r.applyDiskList(msg.Body)
	case "play option info":
		r.applyPlayOption(msg.Body)
	}
}

func (r *Router) applyConnectionInfo(body []string) {
	m := r.model
	m.mu.Lock()
	for _, f := range wire.Fields(body) {
		switch f.Key {
		case "protocol version":
			m.device.ProtocolVersion = f.Value
		case "model":
			m.device.Model = f.Value
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeDevice})
}

func (r *Router) applyDeviceInfo(body []string) {
	m := r.model
	m.mu.Lock()
	for _, f := range wire.Fields(body) {
		switch f.Key {
		case "protocol version":
			m.device.ProtocolVersion = f.Value
		case "model":
			m.device.Model = f.Value
		case "software version":
			m.device.SoftwareVersion = f.Value
		case "unique id":
			m.device.UniqueID = f.Value
		case "slot count":
			m.device.SlotCount = atoi(f.Value)
		}
	}
	// The slot set is populated here and stays stable for the session;
	// per-slot metrics arrive from subsequent slot info queries.
	for id := 1; id <= m.device.SlotCount; id++ {
		if _, ok := m.slots[id]; !ok {
			m.slots[id] = &Slot{ID: id, Status: SlotEmpty}
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeDevice}, Change{Kind: ChangeSlots})
}

func (r *Router) applySlotInfo(body []string) {
	fields := wire.Fields(body)

	id := 0
	for _, f := range fields {
		if f.Key == "slot id" {
			if f.Value == "none" {
				return
			}
			id = atoi(f.Value)
			break
		}
	}
	if id == 0 {
		return
	}

	m := r.model
	m.mu.Lock()
	slot, ok := m.slots[id]
	if !ok {
		slot = &Slot{ID: id}
		m.slots[id] = slot
	}
	for _, f := range fields {
		switch f.Key {
		case "status":
			slot.Status = SlotStatus(f.Value)
		case "volume name":
			slot.VolumeName = f.Value
		case "recording time":
			slot.RecordingTime = atoi(f.Value)
		case "video format":
			slot.VideoFormat = f.Value
		case "blocked":
			slot.Blocked = f.Value == "true"
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeSlots})
}

func (r *Router) applyTransportInfo(body []string) {
	m := r.model
	m.mu.Lock()
	activeSlotChanged := false
	for _, f := range wire.Fields(body) {
		switch f.Key {
		case "status":
			m.timeline.Status = TransportStatus(f.Value)
		case "speed":
			m.timeline.Speed = atoi(f.Value)
		case "slot id", "active slot":
			slot := 0
			if f.Value != "none" {
				slot = atoi(f.Value)
			}
			if slot != m.activeSlot {
				m.activeSlot = slot
				activeSlotChanged = true
			}
		case "clip id":
			m.timeline.ClipID = atoi(f.Value)
		case "single clip":
			m.timeline.SingleClip = f.Value == "true"
		case "loop":
			m.timeline.Loop = f.Value == "true"
		case "timeline":
			m.timeline.Playhead = playheadFromWire(f.Value)
		case "display timecode":
			m.video.DisplayTimecode = f.Value
		case "timecode":
			m.video.Timecode = f.Value
		case "video format":
			m.video.VideoFormat = f.Value
			m.video.Framerate = timecode.Framerate(f.Value)
		case "input video format":
			m.video.InputVideoFormat = f.Value
		case "dynamic range":
			m.video.DynamicRange = f.Value
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeTransport, ActiveSlotChanged: activeSlotChanged})
}

func (r *Router) applyTimelinePosition(body []string) {
	m := r.model
	m.mu.Lock()
	for _, f := range wire.Fields(body) {
		if f.Key == "timeline" {
			m.timeline.Playhead = playheadFromWire(f.Value)
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeTimeline})
}

func (r *Router) applyDisplayTimecode(body []string) {
	m := r.model
	m.mu.Lock()
	for _, f := range wire.Fields(body) {
		if f.Key == "display timecode" {
			m.video.DisplayTimecode = f.Value
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeTransport})
}

func (r *Router) applyPlayrange(body []string) {
	m := r.model
	m.mu.Lock()
	for _, f := range wire.Fields(body) {
		switch f.Key {
		case "timeline in":
			m.playr.In = atoi(f.Value)
		case "timeline out":
			m.playr.Out = atoi(f.Value)
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangePlayrange})
}

func (r *Router) applyConfiguration(body []string) {
	m := r.model
	m.mu.Lock()
	for _, f := range wire.Fields(body) {
		switch f.Key {
		case "video input":
			m.settings.VideoInput = f.Value
		case "audio input":
			m.settings.AudioInput = f.Value
		case "audio codec":
			m.settings.AudioCodec = f.Value
		case "file format":
			m.settings.FileFormat = f.Value
		case "audio mapping":
			m.settings.AudioMapping = atoi(f.Value)
		case "audio input channels":
			m.settings.AudioInputChannels = atoi(f.Value)
		case "timecode input":
			m.settings.TimecodeInput = f.Value
		case "timecode output":
			m.settings.TimecodeOutput = f.Value
		case "timecode preference":
			m.settings.TimecodePreference = f.Value
		case "record trigger":
			m.settings.RecordTrigger = f.Value
		case "record prefix":
			m.settings.RecordPrefix = f.Value
		case "append timestamp":
			m.settings.AppendTimestamp = f.Value == "true"
		case "genlock input resync":
			m.settings.GenlockInputResync = f.Value == "true"
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeConfiguration})
}

// applyClipsInfo rebuilds the timeline from a clips query response. The
// device's clip order is authoritative. A fresh timeline also clears the
// stale flag set on disconnect.
func (r *Router) applyClipsInfo(body []string) {
	m := r.model
	m.mu.Lock()

	fps := m.video.Framerate
	clips := make([]Clip, 0, len(body))
	frame := 0
	for _, f := range wire.Fields(body) {
		if f.Key == "clip count" || f.Key == "" {
			continue
		}
		id, err := strconv.Atoi(f.Key)
		if err != nil {
			continue
		}
		name, start, duration, ok := parseClipLine(f.Value)
		if !ok {
			continue
		}
		length := duration.TotalFrames(fps)
		clips = append(clips, Clip{
			Index:    id,
			Name:     name,
			SlotID:   m.activeSlot,
			Start:    start,
			Duration: duration,
			FrameIn:  frame,
			FrameOut: frame + length,
		})
		frame += length
	}

	m.timeline.Clips = clips
	if len(clips) == 0 {
		m.timeline.Playhead = PlayheadUndefined
	}
	wasStale := m.stale
	m.stale = false
	m.mu.Unlock()

	changes := []Change{{Kind: ChangeTimeline}}
	if wasStale {
		changes = append(changes, Change{Kind: ChangeStale})
	}
	m.notify(changes...)
}

// parseClipLine splits "name start duration" where the name may contain
// spaces and the two trailing tokens are timecodes.
func parseClipLine(s string) (string, timecode.Timecode, timecode.Timecode, bool) {
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return "", timecode.Timecode{}, timecode.Timecode{}, false
	}
	duration, err := timecode.Parse(s[i+1:])
	if err != nil {
		return "", timecode.Timecode{}, timecode.Timecode{}, false
	}
	s = s[:i]
	i = strings.LastIndexByte(s, ' ')
	if i < 0 {
		return "", timecode.Timecode{}, timecode.Timecode{}, false
	}
	start, err := timecode.Parse(s[i+1:])
	if err != nil {
		return "", timecode.Timecode{}, timecode.Timecode{}, false
	}
	return s[:i], start, duration, true
}

func (r *Router) applyDiskList(body []string) {
	fields := wire.Fields(body)

	id := 0
	for _, f := range fields {
		if f.Key == "slot id" {
			id = atoi(f.Value)
			break
		}
	}
	if id == 0 {
		return
	}

	m := r.model
	m.mu.Lock()
	slot, ok := m.slots[id]
	if !ok {
		slot = &Slot{ID: id}
		m.slots[id] = slot
	}
	var disk []string
	for _, f := range fields {
		if _, err := strconv.Atoi(f.Key); err != nil {
			continue
		}
		// "<name> <file format> <video format> <duration>"; only the
		// name is retained.
		name, _, _ := strings.Cut(f.Value, " ")
		disk = append(disk, name)
	}
	slot.Disk = disk
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeSlots})
}

func (r *Router) applyPlayOption(body []string) {
	m := r.model
	m.mu.Lock()
	for _, f := range wire.Fields(body) {
		if f.Key == "stop mode" {
			m.settings.StopMode = f.Value
		}
	}
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeConfiguration})
}

// playheadFromWire converts the 1-based wire playhead to the 0-based
// internal offset. Wire value 0 means no clip is loaded.
func playheadFromWire(s string) int {
	v := atoi(s)
	if v <= 0 {
		return PlayheadUndefined
	}
	return v - 1
}

// atoi parses an integer field, tolerating junk as 0.
func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
