package filters

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

const (
	rofStep = 0.25
	rofG    = 1.0
)

// ROFDenoise runs Chambolle's dual projection for the Rudin-Osher-Fatemi
// total variation model on a float plane in place.
func ROFDenoise(ctx context.Context, f []float32, width, height int, theta float64, iterations int) error {
	if theta <= 0 || iterations <= 0 {
		return nil
	}
	n := width * height
	px := make([]float64, n)
	py := make([]float64, n)
	u := make([]float64, n)
	step := rofStep / theta

	for it := 0; it < iterations; it++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		// u = f - θ·div p
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				u[i] = float64(f[i]) - theta*divergence(px, py, width, height, x, y)
			}
		}
		// p = (p - dt/θ·∇u)/(1 + dt/θ·|∇u|)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				var ux, uy float64
				if x < width-1 {
					ux = u[i+1] - u[i]
				}
				if y < height-1 {
					uy = u[i+width] - u[i]
				}
				norm := 1 + step*math.Hypot(ux, uy)/rofG
				px[i] = (px[i] - step*ux) / norm
				py[i] = (py[i] - step*uy) / norm
			}
		}
	}
	// the result is the last primal step
	for i, v := range u {
		f[i] = float32(v)
	}
	return nil
}

// divergence is the backward difference adjoint to the forward gradient
func divergence(px, py []float64, width, height, x, y int) float64 {
	i := y*width + x
	var dx, dy float64
	switch {
	case width == 1:
	case x == 0:
		dx = px[i]
	case x == width-1:
		dx = -px[i-1]
	default:
		dx = px[i] - px[i-1]
	}
	switch {
	case height == 1:
	case y == 0:
		dy = py[i]
	case y == height-1:
		dy = -py[i-width]
	default:
		dy = py[i] - py[i-width]
	}
	return dx + dy
}

// ROFFilter is the ROF_DENOISE stage, θ = profile value × 10
type ROFFilter struct {
	logger logrus.FieldLogger
}

func NewROFFilter(logger logrus.FieldLogger) *ROFFilter {
	return &ROFFilter{logger: logger}
}

func (f *ROFFilter) IsApplied(p *config.Profile) bool {
	return p.DenoiseAlgorithm1 == config.DenoiseROF
}

func (f *ROFFilter) IsSlow() bool { return false }

func (f *ROFFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	changed := false
	for _, c := range core.Channels {
		changed = changed || p.ROF(c).Theta > 0
	}
	if !changed {
		return false, nil
	}
	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		params := p.ROF(c)
		px := buf.Float32Plane(c)
		if err := ROFDenoise(ctx, px, buf.Width, buf.Height, float64(params.Theta)*10, params.Iterations); err != nil {
			return err
		}
		buf.SetFromFloat32(c, px)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
