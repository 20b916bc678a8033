// Application settings loaded from TOML
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultOutputPostfix = "_LSW"
	DefaultPSFSize       = 64
)

var ErrInvalidSettings = errors.New("invalid settings")

// Duration decodes TOML strings like "250ms"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type CacheSettings struct {
	Compress bool `toml:"compress"`
}

type ProgressSettings struct {
	Trickle Duration `toml:"trickle"`
}

type OutputSettings struct {
	Postfix    string   `toml:"postfix"`
	Format     string   `toml:"format"`
	Extensions []string `toml:"extensions"`
}

type ROISettings struct {
	MaxWidth  int `toml:"max_width"`
	MaxHeight int `toml:"max_height"`
}

// Settings configures the runtime, not the filters
type Settings struct {
	Workers  int              `toml:"workers"`
	LogLevel string           `toml:"log_level"`
	PSFSize  int              `toml:"psf_size"`
	Cache    CacheSettings    `toml:"cache"`
	Progress ProgressSettings `toml:"progress"`
	Output   OutputSettings   `toml:"output"`
	ROI      ROISettings      `toml:"roi"`
}

// DefaultSettings returns the built-in settings
func DefaultSettings() *Settings {
	return &Settings{
		Workers:  0,
		LogLevel: "info",
		PSFSize:  DefaultPSFSize,
		Progress: ProgressSettings{Trickle: Duration{250 * time.Millisecond}},
		Output: OutputSettings{
			Postfix:    DefaultOutputPostfix,
			Format:     "tif",
			Extensions: []string{".tif", ".tiff", ".png"},
		},
		ROI: ROISettings{MaxWidth: 1024, MaxHeight: 768},
	}
}

// LoadSettings decodes a TOML file over DefaultSettings. An empty path returns the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown settings keys %s: %w", strings.Join(keys, ", "), ErrInvalidSettings)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseSettings decodes TOML text over DefaultSettings
func ParseSettings(data string) (*Settings, error) {
	s := DefaultSettings()
	if _, err := toml.Decode(data, s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings ranges
func (s *Settings) Validate() error {
	switch {
	case s.Workers < 0:
		return fmt.Errorf("workers %d: %w", s.Workers, ErrInvalidSettings)
	case s.PSFSize < 4:
		return fmt.Errorf("psf_size %d: %w", s.PSFSize, ErrInvalidSettings)
	case s.ROI.MaxWidth <= 0 || s.ROI.MaxHeight <= 0:
		return fmt.Errorf("roi %dx%d: %w", s.ROI.MaxWidth, s.ROI.MaxHeight, ErrInvalidSettings)
	case s.Output.Postfix == "":
		return fmt.Errorf("empty output postfix: %w", ErrInvalidSettings)
	case s.Progress.Trickle.Duration < 0:
		return fmt.Errorf("progress trickle %s: %w", s.Progress.Trickle, ErrInvalidSettings)
	}
	return nil
}

// HasExtension reports whether name ends in one of the batch extensions
func (s *Settings) HasExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range s.Output.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
