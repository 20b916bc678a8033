// Unsharp mask engine with deringing and clipping prevention
package filters

import (
	"math"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	"astro-restoration/internal/kernels"
)

// UnsharpParams holds engine parameters already scaled from profile units
type UnsharpParams struct {
	Radius     float64
	Amount     float64 // weight of the blur, in [0, 1)
	Iterations int

	ClippingStrength float64 // 0 disables clipping prevention
	ClippingFrom     float64 // percentile of the pass-1 value where suppression starts

	DeringRadius    float64
	DeringStrength  float64 // 0 disables deringing
	DeringThreshold int

	BlendRaw float64 // share of the unsharpened input mixed back in
}

// NewUnsharpParams scales profile units into engine parameters
func NewUnsharpParams(c config.SharpenChannel) UnsharpParams {
	iterations := c.Iterations
	if iterations < 1 {
		iterations = 1
	}
	threshold := c.DeringThreshold
	if threshold <= 0 {
		threshold = 4
	}
	return UnsharpParams{
		Radius:           c.Radius,
		Amount:           c.Amount / 10000,
		Iterations:       iterations,
		ClippingStrength: float64(c.ClippingStrength) / 500,
		ClippingFrom:     float64(100 - c.ClippingRange),
		DeringRadius:     c.DeringRadius,
		DeringStrength:   float64(c.DeringStrength) / 100,
		DeringThreshold:  threshold,
		BlendRaw:         float64(c.BlendRaw) / 100,
	}
}

// IsNoop reports whether the parameters leave every plane untouched
func (p UnsharpParams) IsNoop() bool {
	return p.Radius <= 0 || p.Amount <= 0
}

// unsharpPlain applies (v - a·b)/(1 - a) in place with a uniform amount,
// mixing blend of this pass's input back in.
func unsharpPlain(px []float32, width, height int, radius, amount, blend float64) {
	blur := kernels.GaussianBlur(px, width, height, radius)
	inv := 1 / (1 - amount)
	for i, v := range px {
		usm := (float64(v) - amount*float64(blur[i])) * inv
		px[i] = float32(usm*(1-blend) + float64(v)*blend)
	}
}

// unsharpWeighted applies the formula with a per-pixel amount
func unsharpWeighted(px []float32, width, height int, radius float64, amounts []float64, blend float64) {
	blur := kernels.GaussianBlur(px, width, height, radius)
	for i, v := range px {
		a := amounts[i]
		if a <= 0 {
			continue
		}
		usm := (float64(v) - a*float64(blur[i])) / (1 - a)
		px[i] = float32(usm*(1-blend) + float64(v)*blend)
	}
}

// deringFactors returns per-pixel multipliers 1 - cutoff/100·strength where
// cutoff falls from 100 in dark areas to 0 inside bright structures.
func deringFactors(px []float32, width, height int, p UnsharpParams) []float64 {
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v := range px {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	threshold := (hi - lo) / float32(p.DeringThreshold)
	mask := make([]float32, len(px))
	for i, v := range px {
		if v >= threshold {
			mask[i] = core.MaxValue
		}
	}
	mask = kernels.GaussianBlur(mask, width, height, p.DeringRadius)

	factors := make([]float64, len(px))
	for i, m := range mask {
		cutoff := int((core.MaxValue - math.Max(0, math.Min(core.MaxValue, float64(m)))) / 655)
		factors[i] = 1 - float64(cutoff)/100*p.DeringStrength
		if factors[i] < 0 {
			factors[i] = 0
		}
	}
	return factors
}

// clippingFactors runs the plain passes on a copy and returns per-pixel
// multipliers 1 - frac that fade the amount where the result would clip.
func clippingFactors(px []float32, width, height int, p UnsharpParams) []float64 {
	pass := make([]float32, len(px))
	copy(pass, px)
	for i, n := 0, max(p.Iterations, 1); i < n; i++ {
		unsharpPlain(pass, width, height, p.Radius, p.Amount, p.BlendRaw)
	}

	factors := make([]float64, len(px))
	span := 100 - p.ClippingFrom
	for i, v := range pass {
		idx := math.Round(math.Max(float64(v), 0) / core.MaxValue * 100)
		frac := 0.0
		if idx >= p.ClippingFrom && span > 0 {
			d := (idx - p.ClippingFrom) / span
			frac = d * d * p.ClippingStrength
		}
		factors[i] = math.Max(0, 1-frac)
	}
	return factors
}

// UnsharpMask sharpens a float plane in place. The dering mask and the
// clipping pass are built once from the input; every iteration then scales
// the amount per pixel. Raw blending mixes each iteration's input back in.
func UnsharpMask(px []float32, width, height int, p UnsharpParams) {
	if p.IsNoop() {
		return
	}
	iterations := max(p.Iterations, 1)
	dering := p.DeringStrength > 0 && p.DeringRadius > 0
	clipping := p.ClippingStrength > 0
	if !dering && !clipping {
		for i := 0; i < iterations; i++ {
			unsharpPlain(px, width, height, p.Radius, p.Amount, p.BlendRaw)
		}
		return
	}

	amounts := make([]float64, len(px))
	for i := range amounts {
		amounts[i] = p.Amount
	}
	if dering {
		for i, f := range deringFactors(px, width, height, p) {
			amounts[i] *= f
		}
	}
	if clipping {
		for i, f := range clippingFactors(px, width, height, p) {
			amounts[i] *= f
		}
	}
	for i := 0; i < iterations; i++ {
		unsharpWeighted(px, width, height, p.Radius, amounts, p.BlendRaw)
	}
}
