package simdeck

import (
	"fmt"
	"sort"

	"github.com/deckcontrol/hyperdeck-go/pkg/timecode"
)

// Body builders. Callers hold the server mutex.

func (d *deckState) deviceInfoBody() []string {
	return []string{
		"protocol version: " + d.device.ProtocolVersion,
		"model: " + d.device.Model,
		"unique id: " + d.device.UniqueID,
		fmt.Sprintf("slot count: %d", len(d.slots)),
		"software version: " + d.device.SoftwareVersion,
	}
}

func (d *deckState) slotInfoBody(sl *slot) []string {
	body := []string{
		fmt.Sprintf("slot id: %d", sl.id),
		"status: " + sl.status,
		"volume name: " + sl.volumeName,
		fmt.Sprintf("recording time: %d", sl.recordingTime),
		"video format: " + sl.videoFormat,
	}
	return body
}

func (d *deckState) diskListBody(sl *slot) []string {
	body := []string{fmt.Sprintf("slot id: %d", sl.id)}
	format := d.config["file format"]
	for i, name := range sl.files {
		body = append(body, fmt.Sprintf("%d: %s %s %s 00:00:02:00", i, name, format, d.videoFormat))
	}
	return body
}

func (d *deckState) transportInfoBody() []string {
	active := "none"
	if d.activeSlot > 0 {
		active = fmt.Sprintf("%d", d.activeSlot)
	}
	return []string{
		"status: " + d.status,
		fmt.Sprintf("speed: %d", d.speed),
		"slot id: " + active,
		"active slot: " + active,
		fmt.Sprintf("clip id: %d", d.clipID),
		fmt.Sprintf("single clip: %t", d.singleClip),
		"display timecode: " + d.displayTimecode(),
		"timecode: " + d.displayTimecode(),
		"video format: " + d.videoFormat,
		fmt.Sprintf("loop: %t", d.loop),
		fmt.Sprintf("timeline: %d", d.playhead),
		"input video format: " + d.videoFormat,
		"dynamic range: SDR",
	}
}

func (d *deckState) displayTimecode() string {
	frame := d.playhead - 1
	if frame < 0 {
		frame = 0
	}
	return timecode.FromFrames(frame, d.framerate()).String()
}

func (d *deckState) clipsInfoBody() []string {
	body := []string{fmt.Sprintf("clip count: %d", len(d.clips))}
	for i, c := range d.clips {
		body = append(body, fmt.Sprintf("%d: %s %s %s",
			i+1, c.name, d.clipStart(i).String(), c.duration.String()))
	}
	return body
}

func (d *deckState) configurationBody() []string {
	keys := make([]string, 0, len(d.config))
	for k := range d.config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	body := make([]string, 0, len(keys))
	for _, k := range keys {
		body = append(body, k+": "+d.config[k])
	}
	return body
}

func (d *deckState) playrangeBody() []string {
	in, out := "none", "none"
	if d.playrangeOut > 0 {
		in = fmt.Sprintf("%d", d.playrangeIn)
		out = fmt.Sprintf("%d", d.playrangeOut)
	}
	return []string{"timeline in: " + in, "timeline out: " + out}
}

func (d *deckState) playOptionBody() []string {
	return []string{"stop mode: " + d.stopMode}
}

func (d *deckState) notifyBody(sess *session) []string {
	body := make([]string, 0, len(notifyFlags))
	for _, f := range notifyFlags {
		body = append(body, fmt.Sprintf("%s: %t", f, sess.notifyEnabled(f)))
	}
	return body
}

// Notification constructors.

func (d *deckState) transportNotify() pendingNotify {
	return pendingNotify{flag: "transport", code: codeTransportNotify,
		text: "transport info", body: d.transportInfoBody()}
}

func (d *deckState) slotNotify(sl *slot) pendingNotify {
	return pendingNotify{flag: "slot", code: codeSlotNotify,
		text: "slot info", body: d.slotInfoBody(sl)}
}

func (d *deckState) timelineNotify() pendingNotify {
	return pendingNotify{flag: "timeline position", code: codeTimelinePosNotify,
		text: "timeline position", body: []string{fmt.Sprintf("timeline: %d", d.playhead)}}
}

func (d *deckState) playrangeNotify() pendingNotify {
	return pendingNotify{flag: "playrange", code: codePlayrangeNotify,
		text: "playrange info", body: d.playrangeBody()}
}

func (d *deckState) configNotify() pendingNotify {
	return pendingNotify{flag: "configuration", code: codeConfigNotify,
		text: "configuration", body: d.configurationBody()}
}
