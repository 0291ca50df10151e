package state_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckcontrol/hyperdeck-go/pkg/state"
	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// decode builds a classified message from raw wire text.
func decode(t *testing.T, raw string) wire.Message {
	t.Helper()
	d := wire.NewDecoder(wire.DefaultCodeRanges())
	d.Write([]byte(raw))
	msg, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok, "incomplete test message %q", raw)
	return msg
}

func newModelRouter() (*state.Model, *state.Router) {
	m := state.NewModel()
	return m, state.NewRouter(m, nil)
}

// applyBaseline brings a model to a connected steady state: two slots,
// 1080p25 output, three clips of 4s, 6s and 6s.
func applyBaseline(t *testing.T, r *state.Router) {
	t.Helper()
	r.ApplyResponse(decode(t, "204 device info:\r\n"+
		"protocol version: 1.12\r\n"+
		"model: HyperDeck Studio HD Plus\r\n"+
		"unique id: 7c2e0d1443d2\r\n"+
		"slot count: 2\r\n"+
		"software version: 8.0.2\r\n\r\n"))
	r.ApplyResponse(decode(t, "202 slot info:\r\n"+
		"slot id: 1\r\nstatus: mounted\r\nvolume name: Media 1\r\n"+
		"recording time: 3000\r\nvideo format: 1080p25\r\n\r\n"))
	r.ApplyResponse(decode(t, "208 transport info:\r\n"+
		"status: stopped\r\nspeed: 0\r\nactive slot: 1\r\n"+
		"video format: 1080p25\r\ntimeline: 1\r\n\r\n"))
	r.ApplyResponse(decode(t, "205 clips info:\r\n"+
		"clip count: 3\r\n"+
		"1: first.mov 00:00:00:00 00:00:04:00\r\n"+
		"2: second.mov 00:00:04:00 00:00:06:00\r\n"+
		"3: third.mov 00:00:10:00 00:00:06:00\r\n\r\n"))
}

func TestDeviceInfoPopulatesSlots(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	dev := m.DeviceInfo()
	assert.Equal(t, "HyperDeck Studio HD Plus", dev.Model)
	assert.Equal(t, "1.12", dev.ProtocolVersion)
	assert.Equal(t, "8.0.2", dev.SoftwareVersion)
	assert.Equal(t, 2, dev.SlotCount)

	slots := m.Slots()
	require.Len(t, slots, 2)
	assert.Equal(t, 1, slots[0].ID)
	assert.Equal(t, state.SlotMounted, slots[0].Status)
	assert.Equal(t, "Media 1", slots[0].VolumeName)
	assert.Equal(t, 3000, slots[0].RecordingTime)
	assert.Equal(t, state.SlotEmpty, slots[1].Status)

	assert.Equal(t, 3000, m.RemainingRecordingTime())
}

func TestSlotInfoNoneIgnored(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	r.Route(decode(t, "502 slot info:\r\nslot id: none\r\n\r\n"))
	assert.Len(t, m.Slots(), 2)
}

func TestTransportInfo(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	tl := m.Timeline()
	assert.Equal(t, state.TransportStopped, tl.Status)
	assert.Equal(t, 0, tl.Playhead) // wire value 1 is frame offset 0
	assert.Equal(t, 1, m.ActiveSlot())

	video := m.Video()
	assert.Equal(t, "1080p25", video.VideoFormat)
	assert.Equal(t, 25, video.Framerate)
}

func TestTimelineRebuild(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	tl := m.Timeline()
	require.Len(t, tl.Clips, 3)

	// At 25 fps: [0,100), [100,250), [250,400).
	assert.Equal(t, 0, tl.Clips[0].FrameIn)
	assert.Equal(t, 100, tl.Clips[0].FrameOut)
	assert.Equal(t, 100, tl.Clips[1].FrameIn)
	assert.Equal(t, 250, tl.Clips[1].FrameOut)
	assert.Equal(t, 250, tl.Clips[2].FrameIn)
	assert.Equal(t, 400, tl.Clips[2].FrameOut)
	assert.Equal(t, 400, tl.TotalFrames())

	// Intervals are contiguous in index order.
	for i := 1; i < len(tl.Clips); i++ {
		assert.Equal(t, tl.Clips[i-1].FrameOut, tl.Clips[i].FrameIn)
		assert.Equal(t, i+1, tl.Clips[i].Index)
	}

	// Clips are owned by the active slot at rebuild time.
	assert.Equal(t, 1, tl.Clips[0].SlotID)
}

func TestRecordedClipAppends(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)
	previous := len(m.Timeline().Clips)

	// A fresh clips query after recording "myclip" reports one more clip.
	r.ApplyResponse(decode(t, "205 clips info:\r\n"+
		"clip count: 4\r\n"+
		"1: first.mov 00:00:00:00 00:00:04:00\r\n"+
		"2: second.mov 00:00:04:00 00:00:06:00\r\n"+
		"3: third.mov 00:00:10:00 00:00:06:00\r\n"+
		"4: myclip.mov 00:00:16:00 00:00:02:00\r\n\r\n"))

	tl := m.Timeline()
	require.Len(t, tl.Clips, previous+1)
	last := tl.Clips[len(tl.Clips)-1]
	assert.Equal(t, "myclip.mov", last.Name)
	assert.Equal(t, previous+1, last.Index)
	assert.Equal(t, 400, last.FrameIn)
}

func TestClipNameWithSpaces(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	r.ApplyResponse(decode(t, "205 clips info:\r\n"+
		"clip count: 1\r\n"+
		"1: my summer holiday.mov 00:00:00:00 00:00:04:00\r\n\r\n"))

	tl := m.Timeline()
	require.Len(t, tl.Clips, 1)
	assert.Equal(t, "my summer holiday.mov", tl.Clips[0].Name)
}

func TestCurrentClip(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	r.Route(decode(t, "514 timeline position:\r\ntimeline: 151\r\n\r\n"))

	clip, ok := m.CurrentClip()
	require.True(t, ok)
	assert.Equal(t, "second.mov", clip.Name) // frame 150 is in [100,250)
}

func TestTimelinePositionNotification(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	r.Route(decode(t, "514 timeline position:\r\ntimeline: 251\r\n\r\n"))
	assert.Equal(t, 250, m.Timeline().Playhead)

	// Wire value 0 means nothing loaded.
	r.Route(decode(t, "514 timeline position:\r\ntimeline: 0\r\n\r\n"))
	assert.Equal(t, state.PlayheadUndefined, m.Timeline().Playhead)
}

func TestActiveSlotChangeFlag(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	var changes []state.Change
	m.OnChange(func(c state.Change) { changes = append(changes, c) })

	r.Route(decode(t, "508 transport info:\r\nactive slot: 2\r\n\r\n"))
	require.Len(t, changes, 1)
	assert.Equal(t, state.ChangeTransport, changes[0].Kind)
	assert.True(t, changes[0].ActiveSlotChanged)
	assert.Equal(t, 2, m.ActiveSlot())

	// Same slot again: no active-slot change.
	r.Route(decode(t, "508 transport info:\r\nactive slot: 2\r\n\r\n"))
	require.Len(t, changes, 2)
	assert.False(t, changes[1].ActiveSlotChanged)
}

func TestConfigurationAndPlayOption(t *testing.T) {
	m, r := newModelRouter()

	r.Route(decode(t, "511 configuration:\r\n"+
		"video input: SDI\r\naudio input: embedded\r\n"+
		"file format: QuickTimeProResHQ\r\naudio codec: PCM\r\n"+
		"audio input channels: 2\r\nappend timestamp: true\r\n\r\n"))
	r.ApplyResponse(decode(t, "228 play option info:\r\nstop mode: lastframe\r\n\r\n"))

	s := m.Settings()
	assert.Equal(t, "SDI", s.VideoInput)
	assert.Equal(t, "QuickTimeProResHQ", s.FileFormat)
	assert.Equal(t, 2, s.AudioInputChannels)
	assert.True(t, s.AppendTimestamp)
	assert.Equal(t, "lastframe", s.StopMode)
}

func TestPlayrangeToleratesJunk(t *testing.T) {
	m, r := newModelRouter()

	r.Route(decode(t, "512 playrange info:\r\ntimeline in: 100\r\ntimeline out: 400\r\n\r\n"))
	assert.Equal(t, state.Playrange{In: 100, Out: 400}, m.Playrange())
	assert.True(t, m.Playrange().Active())

	r.Route(decode(t, "512 playrange info:\r\ntimeline in: none\r\ntimeline out: none\r\n\r\n"))
	assert.Equal(t, state.Playrange{}, m.Playrange())
	assert.False(t, m.Playrange().Active())
}

func TestUnknownNotificationIgnored(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	var changes []state.Change
	m.OnChange(func(c state.Change) { changes = append(changes, c) })

	before := m.Timeline()
	r.Route(decode(t, "530 quantum flux info:\r\nflux: high\r\n\r\n"))

	assert.Empty(t, changes, "unknown kind must not mutate the model")
	assert.Equal(t, before.TotalFrames(), m.Timeline().TotalFrames())
}

func TestStaleLifecycle(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)
	require.False(t, m.Stale())

	var kinds []state.ChangeKind
	m.OnChange(func(c state.Change) { kinds = append(kinds, c.Kind) })

	m.MarkStale()
	assert.True(t, m.Stale())
	assert.Contains(t, kinds, state.ChangeStale)

	// Marking twice does not re-notify.
	m.MarkStale()
	assert.Len(t, kinds, 1)

	// A fresh timeline query clears the flag.
	r.ApplyResponse(decode(t, "205 clips info:\r\n"+
		"clip count: 1\r\n"+
		"1: first.mov 00:00:00:00 00:00:04:00\r\n\r\n"))
	assert.False(t, m.Stale())
	assert.Contains(t, kinds, state.ChangeTimeline)
}

func TestDiskList(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	r.ApplyResponse(decode(t, "206 disk list:\r\n"+
		"slot id: 1\r\n"+
		"0: first.mov QuickTimeProResHQ 1080p25 00:00:04:00\r\n"+
		"1: second.mov QuickTimeProResHQ 1080p25 00:00:06:00\r\n\r\n"))

	slot, ok := m.Slot(1)
	require.True(t, ok)
	assert.Equal(t, []string{"first.mov", "second.mov"}, slot.Disk)
}

func TestSnapshotsAreCopies(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	tl := m.Timeline()
	tl.Clips[0].Name = "mutated"
	assert.Equal(t, "first.mov", m.Timeline().Clips[0].Name)

	slots := m.Slots()
	slots[0].VolumeName = "mutated"
	got, _ := m.Slot(1)
	assert.Equal(t, "Media 1", got.VolumeName)
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	m, r := newModelRouter()
	applyBaseline(t, r)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				tl := m.Timeline()
				// Readers must always see a complete update:
				// contiguity holds in every snapshot.
				for j := 1; j < len(tl.Clips); j++ {
					if tl.Clips[j-1].FrameOut != tl.Clips[j].FrameIn {
						t.Error("torn timeline snapshot")
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		body := "clip count: 2\r\n" +
			fmt.Sprintf("1: a%d.mov 00:00:00:00 00:00:0%d:00\r\n", i, 1+i%8) +
			fmt.Sprintf("2: b%d.mov 00:00:01:00 00:00:0%d:00\r\n", i, 1+(i+3)%8)
		r.ApplyResponse(decode(t, "205 clips info:\r\n"+body+"\r\n"))
	}
	close(stop)
	wg.Wait()
}
