package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astro-restoration/internal/core"
)

func TestDefaultProfileIsValid(t *testing.T) {
	p := DefaultProfile()
	require.NoError(t, p.Validate())
	assert.Equal(t, ModeLuminance, p.SharpenMode)
	assert.Equal(t, PSFSynthetic, p.PSF.Type)
}

func TestParseProfileKeepsDefaults(t *testing.T) {
	p, err := ParseProfile([]byte("name: jupiter\namount: 7000\nsharpenMode: rgb\ndenoiseAlgorithm1: sigma1\n"))
	require.NoError(t, err)
	assert.Equal(t, "jupiter", p.Name)
	assert.Equal(t, 7000.0, p.Amount)
	assert.Equal(t, ModeRGB, p.SharpenMode)
	assert.Equal(t, DenoiseSigma1, p.DenoiseAlgorithm1)
	assert.Equal(t, 1.5, p.Radius)
	assert.Equal(t, 1.0, p.Gamma)
}

func TestParseProfileRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"mode", "sharpenMode: WAVELET\n"},
		{"amount", "amount: 10000\n"},
		{"gamma", "gamma: 3\n"},
		{"savgol size", "savitzkyGolaySize: 7\n"},
		{"denoise slot", "denoiseAlgorithm1: SAVGOLAY\n"},
		{"psf", "psf:\n  type: MEASURED\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}
}

func TestProfileRoundTripThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saturn.yaml")
	p := DefaultProfile()
	p.Name = "saturn"
	p.RadiusGreen = 2.2
	p.PSF.AiryDiskRadius = 3.5

	require.NoError(t, SaveProfile(path, p))
	loaded, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestPerChannelFallback(t *testing.T) {
	p := DefaultProfile()
	p.Radius = 1.2
	p.Amount = 4000
	p.Iterations = 0
	p.RadiusBlue = 2.5
	p.WienerIterations = 8
	p.WienerIterationsGreen = 12

	red := p.Sharpen(core.Red)
	green := p.Sharpen(core.Green)
	blue := p.Sharpen(core.Blue)
	assert.Equal(t, 1.2, red.Radius)
	assert.Equal(t, 1, red.Iterations)
	assert.Equal(t, 1.2, green.Radius)
	assert.Equal(t, 4000.0, green.Amount)
	assert.Equal(t, 2.5, blue.Radius)

	assert.Equal(t, 8, p.WienerIterationsFor(core.Red))
	assert.Equal(t, 12, p.WienerIterationsFor(core.Green))
	assert.Equal(t, 8, p.WienerIterationsFor(core.Blue))

	p.BilateralSigmaSpace = 0
	assert.Equal(t, 1, p.Bilateral(core.Green).SigmaSpace)
}

func TestLuminanceIncludes(t *testing.T) {
	p := DefaultProfile()
	p.LuminanceIncludeGreen = false
	inc, ok := p.LuminanceIncludes()
	assert.True(t, ok)
	assert.Equal(t, [core.NumChannels]bool{true, false, true}, inc)

	p.LuminanceIncludeRed, p.LuminanceIncludeBlue = false, false
	inc, ok = p.LuminanceIncludes()
	assert.False(t, ok)
	assert.Equal(t, [core.NumChannels]bool{true, true, true}, inc)
}

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings(`
workers = 4
log_level = "debug"

[cache]
compress = true

[progress]
trickle = "100ms"

[output]
postfix = "_OUT"
`)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Workers)
	assert.True(t, s.Cache.Compress)
	assert.Equal(t, 100*time.Millisecond, s.Progress.Trickle.Duration)
	assert.Equal(t, "_OUT", s.Output.Postfix)
	assert.Equal(t, DefaultPSFSize, s.PSFSize)
	assert.Equal(t, 1024, s.ROI.MaxWidth)

	_, err = ParseSettings("workers = -1\n")
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestLoadSettingsDefaultsWithoutPath(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
	assert.True(t, s.HasExtension("frame.TIF"))
	assert.False(t, s.HasExtension("frame.jpg"))
}
