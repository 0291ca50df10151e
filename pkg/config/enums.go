// Package config holds the configuration surface of the deck client:
// accepted-value enumerations for deck settings, the optional-field
// Settings struct used to change them, and the Profile of protocol knobs
// that vary between firmware revisions.
package config

// VideoInput selects the source of the video signal.
type VideoInput string

const (
	VideoInputSDI       VideoInput = "SDI"
	VideoInputHDMI      VideoInput = "HDMI"
	VideoInputComponent VideoInput = "component"
)

// Valid reports whether the value is a known video input.
func (v VideoInput) Valid() bool {
	switch v {
	case VideoInputSDI, VideoInputHDMI, VideoInputComponent:
		return true
	}
	return false
}

// AudioInput selects the source of the audio signal.
type AudioInput string

const (
	AudioInputEmbedded AudioInput = "embedded"
	AudioInputXLR      AudioInput = "XLR"
	AudioInputRCA      AudioInput = "RCA"
)

// Valid reports whether the value is a known audio input.
func (a AudioInput) Valid() bool {
	switch a {
	case AudioInputEmbedded, AudioInputXLR, AudioInputRCA:
		return true
	}
	return false
}

// AudioCodec selects the recording audio codec.
type AudioCodec string

const (
	AudioCodecPCM AudioCodec = "PCM"
	AudioCodecAAC AudioCodec = "AAC"
)

// Valid reports whether the value is a known audio codec.
func (a AudioCodec) Valid() bool {
	return a == AudioCodecPCM || a == AudioCodecAAC
}

// FileFormat selects the recording file format and codec tier.
type FileFormat string

const (
	FileFormatH264HighSDI FileFormat = "H.264High_SDI"
	FileFormatH264High    FileFormat = "H.264High"
	FileFormatH264Medium  FileFormat = "H.264Medium"
	FileFormatH264Low     FileFormat = "H.264Low"

	FileFormatH265HighSDI FileFormat = "H.265High_SDI"
	FileFormatH265High    FileFormat = "H.265High"
	FileFormatH265Medium  FileFormat = "H.265Medium"
	FileFormatH265Low     FileFormat = "H.265Low"

	FileFormatProResHQ    FileFormat = "QuickTimeProResHQ"
	FileFormatProRes      FileFormat = "QuickTimeProRes"
	FileFormatProResLT    FileFormat = "QuickTimeProResLT"
	FileFormatProResProxy FileFormat = "QuickTimeProResProxy"

	FileFormatQTDNxHD220x FileFormat = "QuickTimeDNxHD220x"
	FileFormatQTDNxHD145  FileFormat = "QuickTimeDNxHD145"
	FileFormatQTDNxHD45   FileFormat = "QuickTimeDNxHD45"
	FileFormatQTDNxHRHQX  FileFormat = "QuickTimeDNxHR_HQX"
	FileFormatQTDNxHRSQ   FileFormat = "QuickTimeDNxHR_SQ"
	FileFormatQTDNxHRLB   FileFormat = "QuickTimeDNxHR_LB"

	FileFormatDNxHD220x FileFormat = "DNxHD220x"
	FileFormatDNxHD145  FileFormat = "DNxHD145"
	FileFormatDNxHD45   FileFormat = "DNxHD45"
	FileFormatDNxHRSQ   FileFormat = "DNxHR_SQ"
	FileFormatDNxHRLB   FileFormat = "DNxHR_LB"
)

// fileFormats is the set of known file format values.
var fileFormats = map[FileFormat]struct{}{
	FileFormatH264HighSDI: {}, FileFormatH264High: {}, FileFormatH264Medium: {}, FileFormatH264Low: {},
	FileFormatH265HighSDI: {}, FileFormatH265High: {}, FileFormatH265Medium: {}, FileFormatH265Low: {},
	FileFormatProResHQ: {}, FileFormatProRes: {}, FileFormatProResLT: {}, FileFormatProResProxy: {},
	FileFormatQTDNxHD220x: {}, FileFormatQTDNxHD145: {}, FileFormatQTDNxHD45: {},
	FileFormatQTDNxHRHQX: {}, FileFormatQTDNxHRSQ: {}, FileFormatQTDNxHRLB: {},
	FileFormatDNxHD220x: {}, FileFormatDNxHD145: {}, FileFormatDNxHD45: {},
	FileFormatDNxHRSQ: {}, FileFormatDNxHRLB: {},
}

// Valid reports whether the value is a known file format.
func (f FileFormat) Valid() bool {
	_, ok := fileFormats[f]
	return ok
}

// StopMode selects the output frame shown when playback stops.
type StopMode string

const (
	StopModeLastFrame StopMode = "lastframe"
	StopModeNextFrame StopMode = "nextframe"
	StopModeBlack     StopMode = "black"
)

// Valid reports whether the value is a known stop mode.
func (s StopMode) Valid() bool {
	switch s {
	case StopModeLastFrame, StopModeNextFrame, StopModeBlack:
		return true
	}
	return false
}
