// Package timecode provides HH:MM:SS:FF timecode values and conversions
// between timecodes and frame counts.
package timecode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTimecode indicates a string that is not a valid timecode.
var ErrInvalidTimecode = errors.New("invalid timecode")

// Timecode is a deck timecode of the form HH:MM:SS:FF.
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Frames  int
}

// Parse parses a "HH:MM:SS:FF" string.
func Parse(s string) (Timecode, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Timecode{}, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
	}
	var v [4]int
	for i, p := range parts {
		if len(p) != 2 || p[0] < '0' || p[0] > '9' || p[1] < '0' || p[1] > '9' {
			return Timecode{}, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
		}
		v[i] = int(p[0]-'0')*10 + int(p[1]-'0')
	}
	if v[1] > 59 || v[2] > 59 {
		return Timecode{}, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
	}
	return Timecode{Hours: v[0], Minutes: v[1], Seconds: v[2], Frames: v[3]}, nil
}

// String formats the timecode as "HH:MM:SS:FF".
func (t Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds, t.Frames)
}

// TotalFrames converts the timecode to a frame count at the given framerate.
// Returns 0 when the framerate is unknown (0).
func (t Timecode) TotalFrames(fps int) int {
	if fps <= 0 {
		return 0
	}
	return ((t.Hours*60+t.Minutes)*60+t.Seconds)*fps + t.Frames
}

// FromFrames converts a frame count to a timecode at the given framerate.
func FromFrames(frames, fps int) Timecode {
	if fps <= 0 || frames < 0 {
		return Timecode{}
	}
	return Timecode{
		Hours:   frames / (3600 * fps),
		Minutes: frames / (60 * fps) % 60,
		Seconds: frames / fps % 60,
		Frames:  frames % fps,
	}
}

// Add returns the timecode advanced by another timecode's duration.
func (t Timecode) Add(d Timecode, fps int) Timecode {
	return FromFrames(t.TotalFrames(fps)+d.TotalFrames(fps), fps)
}

// Framerate derives the frames-per-second from a deck video format string
// such as "1080p25" or "4Kp5994". Returns 0 for unknown formats.
func Framerate(videoFormat string) int {
	switch {
	case strings.Contains(videoFormat, "50"):
		return 50
	case strings.Contains(videoFormat, "5994"):
		return 60
	case strings.Contains(videoFormat, "60"):
		return 60
	case strings.Contains(videoFormat, "23976"):
		return 24
	case strings.Contains(videoFormat, "24"):
		return 24
	case strings.Contains(videoFormat, "25"):
		return 25
	case strings.Contains(videoFormat, "2997"):
		return 30
	case strings.Contains(videoFormat, "30"):
		return 30
	default:
		return 0
	}
}
