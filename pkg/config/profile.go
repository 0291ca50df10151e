package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deckcontrol/hyperdeck-go/pkg/wire"
)

// Profile carries the protocol knobs that vary between deck firmware
// revisions. It is loadable from YAML so a deployment can adjust to a
// firmware without a code change.
type Profile struct {
	// CodeRanges partitions status codes into failure/success/async.
	CodeRanges wire.CodeRanges `yaml:"code_ranges"`

	// CommandTimeout bounds the wait for a command's terminal response.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// ConnectTimeout bounds dialing plus the wait for the connection banner.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// KeepAliveInterval is the idle ping period (0 disables keepalive).
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`

	// MaxLineLength is the maximum accepted wire line length.
	MaxLineLength int `yaml:"max_line_length"`
}

// DefaultProfile returns the profile of the documented protocol.
func DefaultProfile() Profile {
	return Profile{
		CodeRanges:     wire.DefaultCodeRanges(),
		CommandTimeout: 5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		MaxLineLength:  wire.DefaultMaxLineLength,
	}
}

// LoadProfile reads a YAML profile from path. Unset fields fall back to
// their defaults.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	return p.WithDefaults(), nil
}

// WithDefaults fills zero-valued fields from the default profile.
func (p Profile) WithDefaults() Profile {
	def := DefaultProfile()
	if p.CodeRanges == (wire.CodeRanges{}) {
		p.CodeRanges = def.CodeRanges
	}
	if p.CommandTimeout <= 0 {
		p.CommandTimeout = def.CommandTimeout
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = def.ConnectTimeout
	}
	if p.MaxLineLength <= 0 {
		p.MaxLineLength = def.MaxLineLength
	}
	return p
}
