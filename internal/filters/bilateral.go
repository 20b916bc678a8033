package filters

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

// BilateralSmooth weights every neighbour within radius by
// exp(-d²/2σs²)·exp(-Δv²/2σc²) and replaces the pixel by the weighted mean.
func BilateralSmooth(ctx context.Context, px []float32, width, height int, sigmaColor, sigmaSpace float64, radius, iterations int) error {
	if radius <= 0 || sigmaColor <= 0 || sigmaSpace <= 0 {
		return nil
	}
	size := 2*radius + 1
	spatial := make([]float64, size*size)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			spatial[(dy+radius)*size+dx+radius] = math.Exp(-float64(dx*dx+dy*dy) / (2 * sigmaSpace * sigmaSpace))
		}
	}
	colorDen := 2 * sigmaColor * sigmaColor
	src := make([]float32, len(px))

	for it := 0; it < max(iterations, 1); it++ {
		copy(src, px)
		for y := 0; y < height; y++ {
			if err := checkCancelled(ctx); err != nil {
				return err
			}
			for x := 0; x < width; x++ {
				center := float64(src[y*width+x])
				var sum, wsum float64
				for dy := -radius; dy <= radius; dy++ {
					yy := min(max(y+dy, 0), height-1)
					row := src[yy*width : (yy+1)*width]
					for dx := -radius; dx <= radius; dx++ {
						xx := min(max(x+dx, 0), width-1)
						v := float64(row[xx])
						d := v - center
						w := spatial[(dy+radius)*size+dx+radius] * math.Exp(-d*d/colorDen)
						sum += w * v
						wsum += w
					}
				}
				px[y*width+x] = float32(sum / wsum)
			}
		}
	}
	return nil
}

// BilateralFilter is the BILATERAL_DENOISE stage, σc = profile value × 10
type BilateralFilter struct {
	logger logrus.FieldLogger
}

func NewBilateralFilter(logger logrus.FieldLogger) *BilateralFilter {
	return &BilateralFilter{logger: logger}
}

func (f *BilateralFilter) IsApplied(p *config.Profile) bool {
	return p.DenoiseAlgorithm1 == config.DenoiseBilateral
}

func (f *BilateralFilter) IsSlow() bool { return false }

func (f *BilateralFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		b := p.Bilateral(c)
		px := buf.Float32Plane(c)
		if err := BilateralSmooth(ctx, px, buf.Width, buf.Height, float64(b.SigmaColor)*10, float64(b.SigmaSpace), b.Radius, b.Iterations); err != nil {
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
