package filters

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

// sigmaPollInterval bounds how long a sigma pass runs between cancellation checks
const sigmaPollInterval = 100 * time.Millisecond

// sigmaKernel is a circular kernel described by the half length of each row
type sigmaKernel struct {
	radius     int
	lineRadius []int
	points     int
}

// newSigmaKernel builds the circular kernel for a radius. Radius 0.5 covers
// the four neighbours, radius 1 a 3×3 square.
func newSigmaKernel(radius float64) sigmaKernel {
	if radius >= 1.5 && radius < 1.75 {
		radius = 1.75
	} else if radius >= 2.5 && radius < 2.85 {
		radius = 2.85
	}
	r2 := int(radius*radius) + 1
	k := int(math.Sqrt(float64(r2) + 1e-10))
	lines := make([]int, 2*k+1)
	lines[k] = k
	points := 2*k + 1
	for y := 1; y <= k; y++ {
		dx := int(math.Sqrt(float64(r2-y*y) + 1e-10))
		lines[k+y] = dx
		lines[k-y] = dx
		points += 4*dx + 2
	}
	return sigmaKernel{radius: k, lineRadius: lines, points: points}
}

// SigmaFilter replaces every pixel by the mean of the kernel pixels within
// sigmaWidth standard deviations of its value. When fewer than minFraction
// of the kernel qualifies, the pixel is treated as an outlier and replaced by
// the mean of its neighbours.
type SigmaFilter struct {
	SigmaWidth  float64
	MinFraction float64
}

// Filter runs one pass over a float plane in place
func (s SigmaFilter) Filter(ctx context.Context, px []float32, width, height int, radius float64) error {
	kernel := newSigmaKernel(radius)
	minPix := int(float64(kernel.points)*s.MinFraction + 0.999999)
	return sigmaPass(ctx, px, width, height, kernel, s.SigmaWidth, minPix, true)
}

// sigmaPass keeps a stripe of 2k+1 rows padded by k edge pixels on both
// sides. New rows overwrite the oldest slot and the line radii rotate with
// them so no row is ever shifted.
func sigmaPass(ctx context.Context, pixels []float32, width, height int, kernel sigmaKernel, sigmaWidth float64, minPix int, outlierAware bool) error {
	k := kernel.radius
	kSize := 2*k + 1
	lineRadius := make([]int, kSize)
	copy(lineRadius, kernel.lineRadius)
	nPoints := float64(kernel.points)

	xmin, xmax := -k, width+k
	cacheWidth := xmax - xmin
	smallKernel := k < 2
	cache := make([]float32, cacheWidth*kSize)

	edge := func(v, n int) int {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}
	i := 0
	for y := -k; y < k; y++ {
		row := edge(y, height) * width
		for x := xmin; x < xmax; x++ {
			cache[i] = pixels[row+edge(x, width)]
			i++
		}
	}
	nextLine := 2 * k

	var sum0, sum1 float64
	var lastPoll time.Time
	for y := 0; y < height; y++ {
		if time.Since(lastPoll) > sigmaPollInterval {
			lastPoll = time.Now()
			if err := checkCancelled(ctx); err != nil {
				return err
			}
		}

		ynext := min(y+k, height-1)
		src := pixels[ynext*width : (ynext+1)*width]
		dst := cache[nextLine*cacheWidth : (nextLine+1)*cacheWidth]
		for x := 0; x < k; x++ {
			dst[x] = src[0]
			dst[k+width+x] = src[width-1]
		}
		copy(dst[k:k+width], src)
		nextLine = (nextLine + 1) % kSize

		full := true
		for x, xc := 0, k; x < width; x, xc = x+1, xc+1 {
			p := y*width + x
			value := float64(pixels[p])
			if full {
				full = smallKernel
				sum0, sum1 = 0, 0
				for ky := 0; ky < kSize; ky++ {
					base := ky * cacheWidth
					for xx := xc - lineRadius[ky]; xx <= xc+lineRadius[ky]; xx++ {
						v := float64(cache[base+xx])
						sum0 += v
						sum1 += v * v
					}
				}
			} else {
				for ky := 0; ky < kSize; ky++ {
					base := ky*cacheWidth + xc
					v := float64(cache[base+lineRadius[ky]])
					sum0 += v
					sum1 += v * v
					v = float64(cache[base-lineRadius[ky]-1])
					sum0 -= v
					sum1 -= v * v
				}
			}

			mean := sum0 / nPoints
			variance := max(sum1/nPoints-mean*mean, 0)
			sigmaRange := sigmaWidth * math.Sqrt(variance)
			bottom, top := value-sigmaRange, value+sigmaRange

			var sum float64
			count := 0
			for ky := 0; ky < kSize; ky++ {
				base := ky * cacheWidth
				for xx := xc - lineRadius[ky]; xx <= xc+lineRadius[ky]; xx++ {
					v := float64(cache[base+xx])
					if v >= bottom && v <= top {
						sum += v
						count++
					}
				}
			}
			switch {
			case count >= minPix:
				pixels[p] = float32(sum / float64(count))
			case outlierAware && nPoints > 1:
				pixels[p] = float32((sum0 - value) / (nPoints - 1))
			default:
				pixels[p] = float32(mean)
			}
		}

		last := lineRadius[kSize-1]
		copy(lineRadius[1:], lineRadius[:kSize-1])
		lineRadius[0] = last
	}
	return nil
}

// SigmaDenoiseFilter is a SIGMA_DENOISE_1 or SIGMA_DENOISE_2 stage
type SigmaDenoiseFilter struct {
	logger    logrus.FieldLogger
	slot      int
	algorithm string
}

// NewSigmaDenoise1Filter creates the first sigma stage: sigma 2, minimum
// fraction amount/100.
func NewSigmaDenoise1Filter(logger logrus.FieldLogger) *SigmaDenoiseFilter {
	return &SigmaDenoiseFilter{logger: logger, slot: 1, algorithm: config.DenoiseSigma1}
}

// NewSigmaDenoise2Filter creates the second sigma stage: sigma 5, every kernel
// pixel must qualify.
func NewSigmaDenoise2Filter(logger logrus.FieldLogger) *SigmaDenoiseFilter {
	return &SigmaDenoiseFilter{logger: logger, slot: 2, algorithm: config.DenoiseSigma2}
}

func (f *SigmaDenoiseFilter) IsApplied(p *config.Profile) bool {
	if f.slot == 1 {
		return p.DenoiseAlgorithm1 == f.algorithm
	}
	return p.DenoiseAlgorithm2 == f.algorithm
}

func (f *SigmaDenoiseFilter) IsSlow() bool { return false }

func (f *SigmaDenoiseFilter) channelParams(p *config.Profile, c core.Channel) (SigmaFilter, config.SigmaChannel) {
	if f.slot == 1 {
		s := p.Denoise1(c)
		return SigmaFilter{SigmaWidth: 2, MinFraction: min(s.Amount, 100) / 100}, s
	}
	return SigmaFilter{SigmaWidth: 5, MinFraction: 1}, p.Denoise2(c)
}

func (f *SigmaDenoiseFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	f.logger.WithField("slot", f.slot).Debug("SIGMA: applying")
	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		filter, params := f.channelParams(p, c)
		px := buf.Float32Plane(c)
		for i := 0; i < params.Iterations; i++ {
			if err := filter.Filter(ctx, px, buf.Width, buf.Height, params.Radius); err != nil {
				return err
			}
		}
		buf.SetFromFloat32(c, px)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
