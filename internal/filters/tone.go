// Tone and colour stages operating directly on 16-bit samples
package filters

import (
	"context"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

// darkBackgroundThreshold is the band above the background floor in which
// brightening is faded out when the dark background is preserved
const darkBackgroundThreshold = 1024

// preserveDarkBackground fades a new value toward the floor when the old
// value lies within darkBackgroundThreshold above lowest
func preserveDarkBackground(oldValue, newValue, lowest float64, preserve bool) float64 {
	if preserve && oldValue < darkBackgroundThreshold+lowest {
		newValue *= (oldValue - lowest) / darkBackgroundThreshold
	}
	return math.Trunc(newValue)
}

// truncate16 drops the fraction and saturates into [0, MaxValue]
func truncate16(v float64) uint16 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= core.MaxValue {
		return core.MaxValue
	}
	return uint16(v)
}

// GammaFilter is the GAMMA stage: v' = 65535·(v/65535)^(2-g)
type GammaFilter struct{}

func NewGammaFilter() *GammaFilter { return &GammaFilter{} }

func (f *GammaFilter) IsApplied(p *config.Profile) bool { return p.Gamma != 1 }
func (f *GammaFilter) IsSlow() bool                      { return false }

func (f *GammaFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	exponent := 2 - p.Gamma
	var lut [core.MaxValue + 1]uint16
	for v := range lut {
		lut[v] = core.Clamp16(core.MaxValue * math.Pow(float64(v)/core.MaxValue, exponent))
	}
	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		plane := buf.Planes[c]
		for i, v := range plane {
			plane[i] = lut[v]
		}
		return nil
	})
	return err == nil, err
}

// HistogramStretchFilter is the HISTOGRAM_STRETCH stage
type HistogramStretchFilter struct{}

func NewHistogramStretchFilter() *HistogramStretchFilter { return &HistogramStretchFilter{} }

func (f *HistogramStretchFilter) IsApplied(p *config.Profile) bool {
	return p.Contrast != 0 || p.Brightness != 0 || p.Lightness != 0 || p.Background != 0
}

func (f *HistogramStretchFilter) IsSlow() bool { return false }

// StretchLUT returns the lookup table of a histogram stretch
func StretchLUT(contrast, brightness, lightness, background int, preserveDark bool) []uint16 {
	newMin := math.Round(float64(contrast) * 16384 / 100)
	newMax := 65536 - newMin
	newMax = math.Round(newMax - float64(brightness)*49152/100)
	factor := core.MaxValue / math.Max(newMax-newMin, 1)
	lowest := 16384 * float64(background) / 100

	lut := make([]uint16, core.MaxValue+1)
	for v := range lut {
		old := float64(v)
		stretched := float64(lightness)*256 + old*factor - newMin
		lut[v] = truncate16(preserveDarkBackground(old, stretched, lowest, preserveDark))
	}
	return lut
}

func (f *HistogramStretchFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	lut := StretchLUT(p.Contrast, p.Brightness, p.Lightness, p.Background, p.PreserveDarkBackground)
	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		plane := buf.Planes[c]
		for i, v := range plane {
			plane[i] = lut[v]
		}
		return nil
	})
	return err == nil, err
}

// ClippingSuppressionFilter is the CLIPPING_SUPPRESSION stage. It compresses
// highlights with v·(((65535-v)/65535)·s + (1-s)).
type ClippingSuppressionFilter struct{}

func NewClippingSuppressionFilter() *ClippingSuppressionFilter {
	return &ClippingSuppressionFilter{}
}

func (f *ClippingSuppressionFilter) IsApplied(p *config.Profile) bool {
	return p.ClippingSuppression != 0
}

func (f *ClippingSuppressionFilter) IsSlow() bool { return false }

func (f *ClippingSuppressionFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	s := p.ClippingSuppression / 100
	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		plane := buf.Planes[c]
		for i, v := range plane {
			fv := float64(v)
			plane[i] = truncate16(fv * (((core.MaxValue-fv)/core.MaxValue)*s + (1 - s)))
		}
		return nil
	})
	return err == nil, err
}

// RGBBalanceFilter is the RGB_BALANCE stage: per-channel background
// subtraction followed by purple fringe reduction.
type RGBBalanceFilter struct{}

func NewRGBBalanceFilter() *RGBBalanceFilter { return &RGBBalanceFilter{} }

func (f *RGBBalanceFilter) IsApplied(p *config.Profile) bool {
	return p.Red != 0 || p.Green != 0 || p.Blue != 0 || p.Purple != 0
}

func (f *RGBBalanceFilter) IsSlow() bool { return false }

func (f *RGBBalanceFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	if isMono {
		return false, nil
	}
	if err := checkCancelled(ctx); err != nil {
		return false, err
	}
	amounts := [core.NumChannels]float64{p.Red * 64, p.Green * 64, p.Blue * 64}
	purple := p.Purple / 255
	r, g, b := buf.Planes[core.Red], buf.Planes[core.Green], buf.Planes[core.Blue]
	for i := range r {
		vals := [core.NumChannels]float64{float64(r[i]), float64(g[i]), float64(b[i])}
		for c := range vals {
			vals[c] = preserveDarkBackground(vals[c], vals[c]-amounts[c], 0, p.PreserveDarkBackground)
			vals[c] = math.Max(vals[c], 0)
		}
		if purple > 0 {
			vals = reducePurple(vals, purple)
		}
		r[i], g[i], b[i] = truncate16(vals[0]), truncate16(vals[1]), truncate16(vals[2])
	}
	return true, nil
}

// reducePurple pulls pixels where green is the weakest channel toward grey
func reducePurple(v [core.NumChannels]float64, purple float64) [core.NumChannels]float64 {
	red, green, blue := v[0], v[1], v[2]
	if !(green < red && green < blue) {
		return v
	}
	var diffG, diffRB float64
	if blue < red {
		diffG = red - green*0.5
		diffRB = red - blue
	} else {
		diffG = blue - green*0.5
		diffRB = blue - red
	}
	if diffG <= 0 {
		return v
	}
	factor := math.Max(0, 1-diffRB/diffG)
	desat := (red + green + blue) / 3
	for c := range v {
		corrected := desat*factor + v[c]*(1-factor)
		v[c] = corrected*purple + v[c]*(1-purple)
	}
	return v
}

// SaturationFilter is the SATURATION stage, scaling HSL saturation
type SaturationFilter struct{}

func NewSaturationFilter() *SaturationFilter { return &SaturationFilter{} }

func (f *SaturationFilter) IsApplied(p *config.Profile) bool { return p.Saturation != 1 }
func (f *SaturationFilter) IsSlow() bool                      { return false }

func (f *SaturationFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	if isMono {
		return false, nil
	}
	if err := checkCancelled(ctx); err != nil {
		return false, err
	}
	r, g, b := buf.Planes[core.Red], buf.Planes[core.Green], buf.Planes[core.Blue]
	for i := range r {
		c := colorful.Color{R: float64(r[i]) / core.MaxValue, G: float64(g[i]) / core.MaxValue, B: float64(b[i]) / core.MaxValue}
		h, s, l := c.Hsl()
		out := colorful.Hsl(h, math.Min(s*p.Saturation, 1), l).Clamped()
		r[i] = core.Clamp16(out.R * core.MaxValue)
		g[i] = core.Clamp16(out.G * core.MaxValue)
		b[i] = core.Clamp16(out.B * core.MaxValue)
	}
	return true, nil
}

// ColorNormalizeFilter is the COLOR_NORMALIZE stage: red and blue are scaled
// so their means match green's.
type ColorNormalizeFilter struct {
	logger logrus.FieldLogger
}

func NewColorNormalizeFilter(logger logrus.FieldLogger) *ColorNormalizeFilter {
	return &ColorNormalizeFilter{logger: logger}
}

func (f *ColorNormalizeFilter) IsApplied(p *config.Profile) bool { return p.NormalizeColorBalance }
func (f *ColorNormalizeFilter) IsSlow() bool                      { return false }

func (f *ColorNormalizeFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	if isMono {
		return false, nil
	}
	redAvg, greenAvg, blueAvg := buf.Mean(core.Red), buf.Mean(core.Green), buf.Mean(core.Blue)
	if redAvg == 0 || blueAvg == 0 {
		f.logger.Warn("COLOR_NORMALIZE: empty red or blue channel, skipping")
		return false, nil
	}
	scales := map[core.Channel]float64{core.Red: greenAvg / redAvg, core.Blue: greenAvg / blueAvg}
	f.logger.WithFields(logrus.Fields{
		"red_scale":  scales[core.Red],
		"blue_scale": scales[core.Blue],
	}).Debug("COLOR_NORMALIZE: scaling")
	for c, scale := range scales {
		plane := buf.Planes[c]
		for i, v := range plane {
			plane[i] = truncate16(float64(v) * scale)
		}
	}
	return true, nil
}

// DispersionFilter is the DISPERSION stage: integer shifts of the red and
// blue planes relative to green, vacated pixels become zero.
type DispersionFilter struct{}

func NewDispersionFilter() *DispersionFilter { return &DispersionFilter{} }

func (f *DispersionFilter) IsApplied(p *config.Profile) bool {
	return p.DispersionCorrectionEnabled
}

func (f *DispersionFilter) IsSlow() bool { return false }

// ShiftPlane moves every sample by (dx, dy) so new[x,y] = old[x-dx, y-dy]
func ShiftPlane(plane []uint16, width, height, dx, dy int) {
	if dx == 0 && dy == 0 {
		return
	}
	src := make([]uint16, len(plane))
	copy(src, plane)
	for y := 0; y < height; y++ {
		sy := y - dy
		for x := 0; x < width; x++ {
			sx := x - dx
			if sx < 0 || sx >= width || sy < 0 || sy >= height {
				plane[y*width+x] = 0
				continue
			}
			plane[y*width+x] = src[sy*width+sx]
		}
	}
}

func (f *DispersionFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	if isMono {
		return false, nil
	}
	if p.DispersionCorrectionRedX == 0 && p.DispersionCorrectionRedY == 0 &&
		p.DispersionCorrectionBlueX == 0 && p.DispersionCorrectionBlueY == 0 {
		return false, nil
	}
	ShiftPlane(buf.Planes[core.Red], buf.Width, buf.Height, p.DispersionCorrectionRedX, p.DispersionCorrectionRedY)
	ShiftPlane(buf.Planes[core.Blue], buf.Width, buf.Height, p.DispersionCorrectionBlueX, p.DispersionCorrectionBlueY)
	return true, nil
}
