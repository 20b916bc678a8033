package filters

import (
	"context"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

// SharpenFilter is the SHARPEN stage
type SharpenFilter struct {
	logger logrus.FieldLogger
}

// NewSharpenFilter creates the unsharp mask stage
func NewSharpenFilter(logger logrus.FieldLogger) *SharpenFilter {
	return &SharpenFilter{logger: logger}
}

func (f *SharpenFilter) IsApplied(p *config.Profile) bool {
	return p.ApplyUnsharpMask && p.Radius > 0
}

func (f *SharpenFilter) IsSlow() bool { return false }

func (f *SharpenFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	if err := checkCancelled(ctx); err != nil {
		return false, err
	}
	if isMono || p.SharpenMode == config.ModeRGB {
		changed := false
		params := [core.NumChannels]UnsharpParams{}
		for _, c := range core.Channels {
			params[c] = NewUnsharpParams(p.Sharpen(c))
			changed = changed || !params[c].IsNoop()
		}
		if !changed {
			return false, nil
		}
		err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
			px := buf.Float32Plane(c)
			UnsharpMask(px, buf.Width, buf.Height, params[c])
			buf.SetFromFloat32(c, px)
			return nil
		})
		return err == nil, err
	}

	include, ok := p.LuminanceIncludes()
	if !ok {
		f.logger.Warn("SHARPEN: all channels excluded from luminance, using all three")
	}
	params := NewUnsharpParams(p.Sharpen(core.Red))
	if params.IsNoop() {
		return false, nil
	}
	SharpenLuminance(buf, params, include, p.LuminanceIncludeColor)
	return true, nil
}

// SharpenLuminance sharpens the luminance estimate of an RGB buffer and adds
// the delta to the HSL lightness of every pixel. The HSL decomposition is
// recomputed on every iteration. includeColor false desaturates the result.
func SharpenLuminance(buf *core.ImageBuffer, p UnsharpParams, include [core.NumChannels]bool, includeColor bool) {
	n := buf.Len()
	hue := make([]float64, n)
	sat := make([]float64, n)
	light := make([]float64, n)
	lum := make([]float32, n)

	iterations := max(p.Iterations, 1)
	single := p
	single.Iterations = 1
	for it := 0; it < iterations; it++ {
		decomposeHSL(buf, include, hue, sat, light, lum)
		sharpened := make([]float32, n)
		copy(sharpened, lum)
		UnsharpMask(sharpened, buf.Width, buf.Height, single)
		for i := 0; i < n; i++ {
			l := light[i] + float64(sharpened[i]-lum[i])/core.MaxValue
			s := sat[i]
			if !includeColor {
				s = 0
			}
			c := colorful.Hsl(hue[i], s, min(max(l, 0), 1)).Clamped()
			buf.Planes[core.Red][i] = core.Clamp16(c.R * core.MaxValue)
			buf.Planes[core.Green][i] = core.Clamp16(c.G * core.MaxValue)
			buf.Planes[core.Blue][i] = core.Clamp16(c.B * core.MaxValue)
		}
	}
}

func decomposeHSL(buf *core.ImageBuffer, include [core.NumChannels]bool, hue, sat, light []float64, lum []float32) {
	count := 0
	for _, in := range include {
		if in {
			count++
		}
	}
	r, g, b := buf.Planes[core.Red], buf.Planes[core.Green], buf.Planes[core.Blue]
	for i := range lum {
		c := colorful.Color{R: float64(r[i]) / core.MaxValue, G: float64(g[i]) / core.MaxValue, B: float64(b[i]) / core.MaxValue}
		hue[i], sat[i], light[i] = c.Hsl()
		var sum float32
		if include[core.Red] {
			sum += float32(r[i])
		}
		if include[core.Green] {
			sum += float32(g[i])
		}
		if include[core.Blue] {
			sum += float32(b[i])
		}
		lum[i] = sum / float32(count)
	}
}
