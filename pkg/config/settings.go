package config

// Settings describes a configuration change to send to the deck.
// Zero-valued fields are left unchanged. The client only checks that
// values are well-formed strings; whether the deck supports a value is
// the deck's responsibility to reject.
type Settings struct {
	VideoInput VideoInput
	AudioInput AudioInput
	AudioCodec AudioCodec
	FileFormat FileFormat

	// StopMode is set via the separate "play option" command,
	// not via "configuration".
	StopMode StopMode
}

// Empty reports whether no configuration field is set.
func (s Settings) Empty() bool {
	return s == Settings{}
}
