package state

import (
	"sort"
	"sync"
)

// Model is the in-memory state of one deck. It is owned by exactly one
// Router (single writer); any number of readers may take snapshots
// concurrently. Snapshot getters return copies, never internal storage.
type Model struct {
	mu sync.RWMutex

	device   DeviceInfo
	slots    map[int]*Slot
	timeline Timeline
	video    Video
	settings Settings
	playr    Playrange

	// activeSlot is the slot the timeline is built from (0 = none).
	activeSlot int

	// stale marks the whole model as pre-disconnect data.
	stale bool

	obsMu     sync.Mutex
	observers []func(Change)
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		slots:    make(map[int]*Slot),
		timeline: Timeline{Playhead: PlayheadUndefined},
	}
}

// OnChange registers an observer called after each committed mutation.
// Observers run outside the model lock and must not mutate the model.
func (m *Model) OnChange(fn func(Change)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

// notify delivers changes to all observers, outside the model lock.
func (m *Model) notify(changes ...Change) {
	m.obsMu.Lock()
	observers := append(([]func(Change))(nil), m.observers...)
	m.obsMu.Unlock()

	for _, ch := range changes {
		for _, fn := range observers {
			fn(ch)
		}
	}
}

// DeviceInfo returns the deck description from the connect-time queries.
func (m *Model) DeviceInfo() DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// Slots returns a snapshot of all slots ordered by ID.
func (m *Model) Slots() []Slot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slots := make([]Slot, 0, len(m.slots))
	for _, s := range m.slots {
		slots = append(slots, copySlot(s))
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })
	return slots
}

// Slot returns a snapshot of one slot.
func (m *Model) Slot(id int) (Slot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[id]
	if !ok {
		return Slot{}, false
	}
	return copySlot(s), true
}

// Timeline returns a snapshot of the timeline including transport state.
func (m *Model) Timeline() Timeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyTimeline(m.timeline)
}

// CurrentClip returns the clip under the playhead.
func (m *Model) CurrentClip() (Clip, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tl := m.timeline
	if tl.Playhead != PlayheadUndefined {
		for _, c := range tl.Clips {
			if tl.Playhead >= c.FrameIn && tl.Playhead < c.FrameOut {
				return c, true
			}
		}
	}
	if tl.ClipID >= 1 && tl.ClipID <= len(tl.Clips) {
		return tl.Clips[tl.ClipID-1], true
	}
	return Clip{}, false
}

// Video returns the video/timecode state.
func (m *Model) Video() Video {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.video
}

// Settings returns the configuration mirror.
func (m *Model) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Playrange returns the active playback range.
func (m *Model) Playrange() Playrange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playr
}

// ActiveSlot returns the slot the timeline is built from (0 = none).
func (m *Model) ActiveSlot() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeSlot
}

// RemainingRecordingTime returns the recording seconds remaining summed
// over all slots.
func (m *Model) RemainingRecordingTime() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int
	for _, s := range m.slots {
		total += s.RecordingTime
	}
	return total
}

// Stale reports whether the model holds pre-disconnect data. Stale data
// must not be trusted until a fresh timeline query lands.
func (m *Model) Stale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stale
}

// MarkStale flags the whole model as pre-disconnect data. Called on
// connection loss; cleared when a fresh clips query is applied.
func (m *Model) MarkStale() {
	m.mu.Lock()
	if m.stale {
		m.mu.Unlock()
		return
	}
	m.stale = true
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeStale})
}

// reset drops all device state. Called when a connection to a
// (potentially different) deck is being established.
func (m *Model) reset() {
	m.mu.Lock()
	m.device = DeviceInfo{}
	m.slots = make(map[int]*Slot)
	m.timeline = Timeline{Playhead: PlayheadUndefined}
	m.video = Video{}
	m.settings = Settings{}
	m.playr = Playrange{}
	m.activeSlot = 0
	m.mu.Unlock()
}

func copySlot(s *Slot) Slot {
	out := *s
	out.Disk = append([]string(nil), s.Disk...)
	return out
}

func copyTimeline(t Timeline) Timeline {
	out := t
	out.Clips = append([]Clip(nil), t.Clips...)
	return out
}
