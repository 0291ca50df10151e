package simdeck

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deckcontrol/hyperdeck-go/pkg/timecode"
)

// Fixture describes the initial deck state. It is YAML-loadable so test
// scenarios and the sim binary can share canned decks.
type Fixture struct {
	Device DeviceFixture `yaml:"device"`
	Slots  []SlotFixture `yaml:"slots"`
	Clips  []ClipFixture `yaml:"clips"`

	VideoFormat string            `yaml:"video_format"`
	Config      map[string]string `yaml:"config"`
	StopMode    string            `yaml:"stop_mode"`
}

type DeviceFixture struct {
	ProtocolVersion string `yaml:"protocol_version"`
	Model           string `yaml:"model"`
	UniqueID        string `yaml:"unique_id"`
	SoftwareVersion string `yaml:"software_version"`
}

type SlotFixture struct {
	ID            int      `yaml:"id"`
	Status        string   `yaml:"status"`
	VolumeName    string   `yaml:"volume_name"`
	RecordingTime int      `yaml:"recording_time"`
	VideoFormat   string   `yaml:"video_format"`
	Files         []string `yaml:"files"`
}

type ClipFixture struct {
	Name     string `yaml:"name"`
	Duration string `yaml:"duration"` // timecode, e.g. 00:00:04:00
}

// DefaultFixture is a two-slot 1080p25 deck with three clips, the shape
// most tests expect.
func DefaultFixture() Fixture {
	return Fixture{
		Device: DeviceFixture{
			ProtocolVersion: "1.12",
			Model:           "HyperDeck Studio HD Plus",
			UniqueID:        "7c2e0d1443d2",
			SoftwareVersion: "8.0.2",
		},
		Slots: []SlotFixture{
			{ID: 1, Status: "mounted", VolumeName: "Media 1", RecordingTime: 3000, VideoFormat: "1080p25",
				Files: []string{"first.mov", "second.mov", "third.mov"}},
			{ID: 2, Status: "empty"},
		},
		Clips: []ClipFixture{
			{Name: "first.mov", Duration: "00:00:04:00"},
			{Name: "second.mov", Duration: "00:00:06:00"},
			{Name: "third.mov", Duration: "00:00:06:00"},
		},
		VideoFormat: "1080p25",
		Config: map[string]string{
			"video input": "SDI",
			"audio input": "embedded",
			"file format": "QuickTimeProResHQ",
			"audio codec": "PCM",
		},
		StopMode: "lastframe",
	}
}

// LoadFixture reads a fixture from a YAML file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

type slot struct {
	id            int
	status        string
	volumeName    string
	recordingTime int
	videoFormat   string
	files         []string
}

type clip struct {
	name     string
	duration timecode.Timecode
}

// deckState is the mutable deck. All access goes through the Server mutex.
type deckState struct {
	device      DeviceFixture
	slots       []*slot
	clips       []clip
	activeSlot  int
	videoFormat string

	status     string
	speed      int
	loop       bool
	singleClip bool
	playhead   int // wire value, 1-based, 0 = nothing loaded
	clipID     int

	config   map[string]string
	stopMode string

	playrangeIn  int // wire positions, 0 = no playrange
	playrangeOut int

	recording   string // clip name while status == record
	formatToken string
}

func newDeckState(f Fixture) (*deckState, error) {
	d := &deckState{
		device:      f.Device,
		videoFormat: f.VideoFormat,
		status:      "stopped",
		config:      map[string]string{},
		stopMode:    f.StopMode,
	}
	if d.stopMode == "" {
		d.stopMode = "lastframe"
	}
	for k, v := range f.Config {
		d.config[k] = v
	}
	for _, sf := range f.Slots {
		st := sf.Status
		if st == "" {
			st = "empty"
		}
		d.slots = append(d.slots, &slot{
			id:            sf.ID,
			status:        st,
			volumeName:    sf.VolumeName,
			recordingTime: sf.RecordingTime,
			videoFormat:   sf.VideoFormat,
			files:         append([]string(nil), sf.Files...),
		})
		if d.activeSlot == 0 && st == "mounted" {
			d.activeSlot = sf.ID
		}
	}
	for _, cf := range f.Clips {
		dur, err := timecode.Parse(cf.Duration)
		if err != nil {
			return nil, fmt.Errorf("clip %q: %w", cf.Name, err)
		}
		d.clips = append(d.clips, clip{name: cf.Name, duration: dur})
	}
	if len(d.clips) > 0 {
		d.playhead = 1
		d.clipID = 1
	}
	return d, nil
}

func (d *deckState) slotByID(id int) *slot {
	for _, s := range d.slots {
		if s.id == id {
			return s
		}
	}
	return nil
}

func (d *deckState) framerate() int {
	if fps := timecode.Framerate(d.videoFormat); fps > 0 {
		return fps
	}
	return 25
}

// totalFrames is the timeline length at the deck framerate.
func (d *deckState) totalFrames() int {
	fps := d.framerate()
	total := 0
	for _, c := range d.clips {
		total += c.duration.TotalFrames(fps)
	}
	return total
}

// clipStart returns the start timecode of clip i (cumulative).
func (d *deckState) clipStart(i int) timecode.Timecode {
	fps := d.framerate()
	frames := 0
	for j := 0; j < i; j++ {
		frames += d.clips[j].duration.TotalFrames(fps)
	}
	return timecode.FromFrames(frames, fps)
}
