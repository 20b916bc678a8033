package filters

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	"astro-restoration/internal/kernels"
)

// SavitzkyGolaySmooth convolves a plane with the stencil of the given half
// width and blends amount percent of the result over the input.
func SavitzkyGolaySmooth(px []float32, width, height, halfWidth, amount, iterations int) error {
	stencil, ok := kernels.SavitzkyGolay(halfWidth)
	if !ok {
		return fmt.Errorf("savitzky-golay half width %d not in %v", halfWidth, kernels.SavitzkyGolaySizes())
	}
	share := float64(amount) / 100
	for it := 0; it < max(iterations, 1); it++ {
		smoothed := stencil.Convolve(px, width, height)
		for i, v := range px {
			px[i] = float32(core.Clamp16(share*float64(smoothed[i]) + (1-share)*float64(v)))
		}
	}
	return nil
}

// SavitzkyGolayFilter is the SAVITZKY_GOLAY stage
type SavitzkyGolayFilter struct {
	logger logrus.FieldLogger
}

func NewSavitzkyGolayFilter(logger logrus.FieldLogger) *SavitzkyGolayFilter {
	return &SavitzkyGolayFilter{logger: logger}
}

func (f *SavitzkyGolayFilter) IsApplied(p *config.Profile) bool {
	return p.DenoiseAlgorithm2 == config.DenoiseSavGolay
}

func (f *SavitzkyGolayFilter) IsSlow() bool { return false }

func (f *SavitzkyGolayFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	changed := false
	for _, c := range core.Channels {
		s := p.SavitzkyGolay(c)
		changed = changed || (s.Size > 0 && s.Amount > 0)
	}
	if !changed {
		return false, nil
	}
	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		s := p.SavitzkyGolay(c)
		if s.Size == 0 || s.Amount == 0 {
			return nil
		}
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		px := buf.Float32Plane(c)
		if err := SavitzkyGolaySmooth(px, buf.Width, buf.Height, s.Size, s.Amount, s.Iterations); err != nil {
			return err
		}
		buf.SetFromFloat32(c, px)
		return nil
	})
	if err != nil {
		return false, err
	}
	f.logger.WithField("size", p.SavitzkyGolaySize).Debug("SAVITZKY_GOLAY: applied")
	return true, nil
}
