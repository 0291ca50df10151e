package simdeck

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/deckcontrol/hyperdeck-go/pkg/timecode"
)

// Status codes used by the simulation.
const (
	codeSyntaxError     = 100
	codeUnsupportedParm = 101
	codeInvalidValue    = 102
	codeNoDisk          = 105
	codeTimelineEmpty   = 107
	codeOutOfRange      = 109

	codeOK             = 200
	codeSlotInfo       = 202
	codeDeviceInfo     = 204
	codeClipsInfo      = 205
	codeDiskList       = 206
	codeTransportInfo  = 208
	codeNotify         = 209
	codeConfiguration  = 211
	codeFormatReady    = 216
	codePlayrangeInfo  = 221
	codePlayOptionInfo = 228

	codeConnectionInfo    = 500
	codeSlotNotify        = 502
	codeTransportNotify   = 508
	codeConfigNotify      = 511
	codePlayrangeNotify   = 512
	codeDisplayTCNotify   = 513
	codeTimelinePosNotify = 514
)

var notifyFlags = []string{
	"transport", "slot", "configuration", "playrange",
	"timeline position", "display timecode", "remote", "dropped frames",
}

// paramKeys is every key the parser recognizes, longest first so that
// "timeline in" wins over "timeline".
var paramKeys = []string{
	"timeline position", "display timecode", "dropped frames",
	"timeline in", "timeline out", "single clip", "stop mode",
	"video input", "audio input", "file format", "audio codec",
	"configuration", "playrange", "transport", "timecode", "timeline",
	"slot id", "clip id", "confirm", "prepare", "enable", "remote",
	"speed", "loop", "name", "slot", "clip",
}

type param struct {
	key   string
	value string
}

// parseParams splits "k: v k2: v2" into ordered pairs. Values run up to
// the next recognized key; keys inside values are a known limitation.
func parseParams(rest string) []param {
	type match struct {
		pos, end int
		key      string
	}
	var matches []match
	for pos := 0; pos < len(rest); pos++ {
		if pos > 0 && rest[pos-1] != ' ' {
			continue
		}
		for _, k := range paramKeys {
			if strings.HasPrefix(rest[pos:], k+":") {
				matches = append(matches, match{pos: pos, end: pos + len(k) + 1, key: k})
				pos += len(k)
				break
			}
		}
	}
	params := make([]param, 0, len(matches))
	for i, m := range matches {
		stop := len(rest)
		if i+1 < len(matches) {
			stop = matches[i+1].pos
		}
		params = append(params, param{key: m.key, value: strings.TrimSpace(rest[m.end:stop])})
	}
	return params
}

func paramMap(params []param) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[p.key] = p.value
	}
	return m
}

func (srv *Server) banner() string {
	srv.mu.Lock()
	body := []string{
		"protocol version: " + srv.deck.device.ProtocolVersion,
		"model: " + srv.deck.device.Model,
	}
	srv.mu.Unlock()
	return formatMessage(codeConnectionInfo, "connection info", body)
}

// pendingNotify is a notification queued while the deck mutex is held and
// delivered after the command reply.
type pendingNotify struct {
	flag string
	code int
	text string
	body []string
}

func (srv *Server) handleCommand(sess *session, line string) {
	name := line
	rest := ""
	if i := strings.Index(line, ":"); i >= 0 {
		name = line[:i]
		rest = strings.TrimSpace(line[i+1:])
	}
	params := parseParams(rest)
	pm := paramMap(params)

	srv.logger.Debug().Str("command", name).Str("params", rest).Msg("command")

	var reply string
	var notifies []pendingNotify

	srv.mu.Lock()
	d := srv.deck
	switch name {
	case "ping":
		reply = formatMessage(codeOK, "ok", nil)

	case "device info":
		reply = formatMessage(codeDeviceInfo, "device info", d.deviceInfoBody())

	case "slot info":
		id := d.activeSlot
		if v, ok := pm["slot id"]; ok {
			id, _ = strconv.Atoi(v)
		}
		sl := d.slotByID(id)
		if sl == nil {
			reply = formatMessage(codeNoDisk, "no disk", nil)
			break
		}
		reply = formatMessage(codeSlotInfo, "slot info", d.slotInfoBody(sl))

	case "disk list":
		id := d.activeSlot
		if v, ok := pm["slot id"]; ok {
			id, _ = strconv.Atoi(v)
		}
		sl := d.slotByID(id)
		if sl == nil {
			reply = formatMessage(codeNoDisk, "no disk", nil)
			break
		}
		reply = formatMessage(codeDiskList, "disk list", d.diskListBody(sl))

	case "transport info":
		reply = formatMessage(codeTransportInfo, "transport info", d.transportInfoBody())

	case "clips get":
		reply = formatMessage(codeClipsInfo, "clips info", d.clipsInfoBody())

	case "clips add":
		nm, ok := pm["name"]
		if !ok || nm == "" {
			reply = formatMessage(codeSyntaxError, "syntax error", nil)
			break
		}
		d.clips = append(d.clips, clip{name: nm, duration: timecode.Timecode{Seconds: 2}})
		reply = formatMessage(codeOK, "ok", nil)

	case "clips remove":
		id, err := strconv.Atoi(pm["clip id"])
		if err != nil || id < 1 || id > len(d.clips) {
			reply = formatMessage(codeOutOfRange, "out of range", nil)
			break
		}
		d.clips = append(d.clips[:id-1], d.clips[id:]...)
		reply = formatMessage(codeOK, "ok", nil)

	case "clips clear":
		d.clips = nil
		d.playhead = 0
		d.clipID = 0
		reply = formatMessage(codeOK, "ok", nil)

	case "preview":
		if pm["enable"] == "true" {
			d.status = "preview"
		} else {
			d.status = "stopped"
		}
		d.speed = 0
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.transportNotify())

	case "record":
		sl := d.slotByID(d.activeSlot)
		if sl == nil || sl.status != "mounted" {
			reply = formatMessage(codeNoDisk, "no disk", nil)
			break
		}
		nm := pm["name"]
		if nm == "" {
			nm = fmt.Sprintf("untitled_%02d.mov", len(d.clips)+1)
		}
		d.status = "record"
		d.speed = 0
		d.recording = nm
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.transportNotify())

	case "record spill":
		if d.status != "record" {
			reply = formatMessage(codeInvalidValue, "invalid value", nil)
			break
		}
		target := 0
		if v, ok := pm["slot id"]; ok {
			target, _ = strconv.Atoi(v)
		} else {
			for _, sl := range d.slots {
				if sl.id != d.activeSlot && sl.status == "mounted" {
					target = sl.id
					break
				}
			}
		}
		sl := d.slotByID(target)
		if sl == nil || sl.status != "mounted" {
			reply = formatMessage(codeNoDisk, "no disk", nil)
			break
		}
		d.finishRecording()
		d.activeSlot = target
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.transportNotify(), d.slotNotify(sl))

	case "stop":
		wasRecording := d.status == "record"
		if wasRecording {
			d.finishRecording()
		}
		d.status = "stopped"
		d.speed = 0
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.transportNotify())
		if wasRecording {
			if sl := d.slotByID(d.activeSlot); sl != nil {
				notifies = append(notifies, d.slotNotify(sl))
			}
		}

	case "play":
		if len(d.clips) == 0 {
			reply = formatMessage(codeTimelineEmpty, "timeline empty", nil)
			break
		}
		speed := 100
		if v, ok := pm["speed"]; ok {
			speed, _ = strconv.Atoi(v)
		}
		d.status = "play"
		d.speed = speed
		if v, ok := pm["loop"]; ok {
			d.loop = v == "true"
		}
		if v, ok := pm["single clip"]; ok {
			d.singleClip = v == "true"
		}
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.transportNotify())

	case "goto":
		code, ns := d.seek(pm)
		if code != codeOK {
			reply = formatMessage(code, failureText(code), nil)
			break
		}
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, ns...)

	case "jog":
		v, ok := pm["timeline"]
		if !ok {
			reply = formatMessage(codeSyntaxError, "syntax error", nil)
			break
		}
		delta, err := strconv.Atoi(v)
		if err != nil {
			reply = formatMessage(codeInvalidValue, "invalid value", nil)
			break
		}
		d.movePlayhead(d.playhead + delta)
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.timelineNotify())

	case "shuttle":
		speed, err := strconv.Atoi(pm["speed"])
		if err != nil || speed < -1600 || speed > 1600 {
			reply = formatMessage(codeOutOfRange, "out of range", nil)
			break
		}
		d.speed = speed
		if speed == 0 {
			d.status = "stopped"
		} else {
			d.status = "play"
		}
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.transportNotify())

	case "slot select":
		id, err := strconv.Atoi(pm["slot id"])
		sl := d.slotByID(id)
		if err != nil || sl == nil {
			reply = formatMessage(codeNoDisk, "no disk", nil)
			break
		}
		d.activeSlot = id
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.transportNotify(), d.slotNotify(sl))

	case "playrange set":
		in, errIn := strconv.Atoi(pm["timeline in"])
		out, errOut := strconv.Atoi(pm["timeline out"])
		if errIn != nil || errOut != nil {
			reply = formatMessage(codeSyntaxError, "syntax error", nil)
			break
		}
		if in < 1 || out <= in || out > d.totalFrames() {
			reply = formatMessage(codeOutOfRange, "out of range", nil)
			break
		}
		d.playrangeIn, d.playrangeOut = in, out
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.playrangeNotify())

	case "playrange clear":
		d.playrangeIn, d.playrangeOut = 0, 0
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.playrangeNotify())

	case "playrange":
		reply = formatMessage(codePlayrangeInfo, "playrange info", d.playrangeBody())

	case "configuration":
		if len(params) == 0 {
			reply = formatMessage(codeConfiguration, "configuration", d.configurationBody())
			break
		}
		for _, p := range params {
			switch p.key {
			case "video input", "audio input", "file format", "audio codec":
				d.config[p.key] = p.value
			default:
				reply = formatMessage(codeUnsupportedParm, "unsupported parameter", nil)
			}
		}
		if reply == "" {
			reply = formatMessage(codeOK, "ok", nil)
			notifies = append(notifies, d.configNotify())
		}

	case "play option":
		if len(params) == 0 {
			reply = formatMessage(codePlayOptionInfo, "play option info", d.playOptionBody())
			break
		}
		mode, ok := pm["stop mode"]
		if !ok {
			reply = formatMessage(codeUnsupportedParm, "unsupported parameter", nil)
			break
		}
		switch mode {
		case "lastframe", "nextframe", "black":
			d.stopMode = mode
			reply = formatMessage(codeOK, "ok", nil)
		default:
			reply = formatMessage(codeInvalidValue, "invalid value", nil)
		}

	case "notify":
		if len(params) == 0 {
			reply = formatMessage(codeNotify, "notify", d.notifyBody(sess))
			break
		}
		bad := false
		for _, p := range params {
			if !isNotifyFlag(p.key) {
				bad = true
				continue
			}
			sess.setNotify(p.key, p.value == "true")
		}
		if bad {
			reply = formatMessage(codeUnsupportedParm, "unsupported parameter", nil)
		} else {
			reply = formatMessage(codeOK, "ok", nil)
		}

	case "format":
		if fs, ok := pm["prepare"]; ok {
			if fs != "exFAT" {
				reply = formatMessage(codeInvalidValue, "invalid value", nil)
				break
			}
			d.formatToken = uuid.NewString()
			reply = formatMessage(codeFormatReady, "format ready", []string{d.formatToken})
			break
		}
		token, ok := pm["confirm"]
		expected := d.formatToken
		d.formatToken = "" // tokens are single use
		if !ok || token == "" || token != expected {
			reply = formatMessage(codeInvalidValue, "invalid value", nil)
			break
		}
		d.clips = nil
		d.playhead = 0
		d.clipID = 0
		if sl := d.slotByID(d.activeSlot); sl != nil {
			sl.files = nil
			notifies = append(notifies, d.slotNotify(sl))
		}
		reply = formatMessage(codeOK, "ok", nil)
		notifies = append(notifies, d.transportNotify())

	case "reboot":
		reply = formatMessage(codeOK, "ok", nil)
		srv.mu.Unlock()
		sess.send(reply)
		srv.DropAllConnections()
		return

	default:
		reply = formatMessage(codeSyntaxError, "syntax error", nil)
	}
	srv.mu.Unlock()

	sess.send(reply)
	for _, n := range notifies {
		srv.notifySend(n.flag, n.code, n.text, n.body)
	}
}

func isNotifyFlag(key string) bool {
	for _, f := range notifyFlags {
		if f == key {
			return true
		}
	}
	return false
}

func failureText(code int) string {
	switch code {
	case codeSyntaxError:
		return "syntax error"
	case codeInvalidValue:
		return "invalid value"
	case codeTimelineEmpty:
		return "timeline empty"
	case codeOutOfRange:
		return "out of range"
	default:
		return "internal error"
	}
}

// seek handles the goto command forms: clip id, timeline and timecode,
// each absolute or with a +/- relative prefix.
func (d *deckState) seek(pm map[string]string) (int, []pendingNotify) {
	if len(d.clips) == 0 {
		return codeTimelineEmpty, nil
	}
	fps := d.framerate()

	if v, ok := pm["clip id"]; ok {
		id, err := strconv.Atoi(v)
		if err != nil {
			return codeInvalidValue, nil
		}
		if strings.HasPrefix(v, "+") || strings.HasPrefix(v, "-") {
			id = d.clipID + id
		}
		if id < 1 || id > len(d.clips) {
			return codeOutOfRange, nil
		}
		d.clipID = id
		d.playhead = d.clipStart(id-1).TotalFrames(fps) + 1
		return codeOK, []pendingNotify{d.timelineNotify()}
	}

	if v, ok := pm["clip"]; ok {
		switch v {
		case "start":
			d.clipID = 1
		case "end":
			d.clipID = len(d.clips)
		default:
			// Frame position within the current clip, absolute or relative.
			offset, err := strconv.Atoi(v)
			if err != nil {
				return codeInvalidValue, nil
			}
			clipStart := d.clipStart(d.clipID-1).TotalFrames(fps) + 1
			if strings.HasPrefix(v, "+") || strings.HasPrefix(v, "-") {
				d.movePlayhead(d.playhead + offset)
			} else {
				d.movePlayhead(clipStart + offset - 1)
			}
			return codeOK, []pendingNotify{d.timelineNotify()}
		}
		d.playhead = d.clipStart(d.clipID-1).TotalFrames(fps) + 1
		return codeOK, []pendingNotify{d.timelineNotify()}
	}

	if v, ok := pm["timeline"]; ok {
		pos, err := strconv.Atoi(v)
		if err != nil {
			return codeInvalidValue, nil
		}
		if strings.HasPrefix(v, "+") || strings.HasPrefix(v, "-") {
			pos = d.playhead + pos
		}
		d.movePlayhead(pos)
		return codeOK, []pendingNotify{d.timelineNotify()}
	}

	if v, ok := pm["timecode"]; ok {
		// A +/- prefix makes the timecode a delta from the playhead.
		sign := 0
		switch {
		case strings.HasPrefix(v, "+"):
			sign = 1
		case strings.HasPrefix(v, "-"):
			sign = -1
		}
		if sign != 0 {
			v = v[1:]
		}
		tc, err := timecode.Parse(v)
		if err != nil {
			return codeInvalidValue, nil
		}
		if sign != 0 {
			d.movePlayhead(d.playhead + sign*tc.TotalFrames(fps))
		} else {
			d.movePlayhead(tc.TotalFrames(fps) + 1)
		}
		return codeOK, []pendingNotify{d.timelineNotify()}
	}

	return codeSyntaxError, nil
}

// movePlayhead clamps to the timeline and keeps clipID in step.
func (d *deckState) movePlayhead(pos int) {
	total := d.totalFrames()
	if pos < 1 {
		pos = 1
	}
	if pos > total {
		pos = total
	}
	d.playhead = pos

	fps := d.framerate()
	frame := pos - 1
	acc := 0
	for i, c := range d.clips {
		next := acc + c.duration.TotalFrames(fps)
		if frame < next {
			d.clipID = i + 1
			return
		}
		acc = next
	}
	d.clipID = len(d.clips)
}

// finishRecording appends the in-progress clip and its file.
func (d *deckState) finishRecording() {
	if d.recording == "" {
		return
	}
	d.clips = append(d.clips, clip{name: d.recording, duration: timecode.Timecode{Seconds: 2}})
	if sl := d.slotByID(d.activeSlot); sl != nil {
		sl.files = append(sl.files, d.recording)
		if sl.recordingTime > 2 {
			sl.recordingTime -= 2
		}
	}
	d.recording = ""
	if d.playhead == 0 {
		d.playhead = 1
		d.clipID = 1
	}
}
