package filters

import (
	"context"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	"astro-restoration/internal/kernels"
)

// waveletScales is the number of à-trous detail planes that get shrunk
const waveletScales = 3

// b3Spline is the 1D smoothing kernel of the starlet transform
var b3Spline = [5]float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// madToSigma converts a median absolute deviation into a Gaussian sigma
const madToSigma = 1 / 0.6745

// atrousSmooth convolves with the B3 spline dilated by 2^scale, edges mirrored
func atrousSmooth(src []float64, width, height, scale int) []float64 {
	step := 1 << scale
	tmp := make([]float64, len(src))
	out := make([]float64, len(src))
	mirror := func(i, n int) int {
		for i < 0 || i >= n {
			if i < 0 {
				i = -i
			}
			if i >= n {
				i = 2*(n-1) - i
			}
			if n == 1 {
				return 0
			}
		}
		return i
	}
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			var s float64
			for k, w := range b3Spline {
				s += w * src[row+mirror(x+(k-2)*step, width)]
			}
			tmp[row+x] = s
		}
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var s float64
			for k, w := range b3Spline {
				s += w * tmp[mirror(y+(k-2)*step, height)*width+x]
			}
			out[y*width+x] = s
		}
	}
	return out
}

// noiseSigma estimates the noise level of a detail plane from its MAD
func noiseSigma(detail []float64) float64 {
	abs := make([]float64, len(detail))
	for i, v := range detail {
		abs[i] = math.Abs(v)
	}
	sort.Float64s(abs)
	return stat.Quantile(0.5, stat.Empirical, abs, nil) * madToSigma
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	}
	return 0
}

// WaveletDenoise shrinks the three finest à-trous detail planes. strengths
// are fractions of 3σ of each plane's estimated noise. With recovery the
// low-frequency part of what was removed is added back.
func WaveletDenoise(ctx context.Context, px []float32, width, height int, strengths [waveletScales]float64, recovery bool) error {
	n := len(px)
	orig := make([]float64, n)
	for i, v := range px {
		orig[i] = float64(v)
	}
	current := orig
	result := make([]float64, n)
	for s := 0; s < waveletScales; s++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		smooth := atrousSmooth(current, width, height, s)
		detail := make([]float64, n)
		for i := range detail {
			detail[i] = current[i] - smooth[i]
		}
		if strengths[s] > 0 {
			t := 3 * strengths[s] * noiseSigma(detail)
			for i, d := range detail {
				detail[i] = softThreshold(d, t)
			}
		}
		for i, d := range detail {
			result[i] += d
		}
		current = smooth
	}
	for i := range result {
		result[i] += current[i]
	}

	if recovery {
		residual := make([]float32, n)
		for i := range residual {
			residual[i] = float32(orig[i] - result[i])
		}
		residual = kernels.GaussianBlur(residual, width, height, 1)
		for i, r := range residual {
			result[i] += 0.5 * float64(r)
		}
	}
	for i, v := range result {
		px[i] = float32(v)
	}
	return nil
}

// IansNoiseReductionFilter is the IANS_NR stage: fine and medium strengths
// come from the profile amounts divided by 200.
type IansNoiseReductionFilter struct {
	logger logrus.FieldLogger
}

func NewIansNoiseReductionFilter(logger logrus.FieldLogger) *IansNoiseReductionFilter {
	return &IansNoiseReductionFilter{logger: logger}
}

func (f *IansNoiseReductionFilter) IsApplied(p *config.Profile) bool {
	return p.DenoiseAlgorithm1 == config.DenoiseIans
}

func (f *IansNoiseReductionFilter) IsSlow() bool { return true }

func (f *IansNoiseReductionFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	strengths := [waveletScales]float64{p.IansAmount / 200, p.IansAmountMid / 200, 0}
	if strengths[0] <= 0 && strengths[1] <= 0 {
		return false, nil
	}
	recovery := p.IansRecovery > 0
	iterations := max(p.IansIterations, 1)
	f.logger.WithFields(logrus.Fields{
		"fine":       strengths[0],
		"medium":     strengths[1],
		"recovery":   recovery,
		"iterations": iterations,
	}).Info("IANS_NR: applying wavelet noise reduction")

	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		px := buf.Float32Plane(c)
		for i := 0; i < iterations; i++ {
			if err := WaveletDenoise(ctx, px, buf.Width, buf.Height, strengths, recovery); err != nil {
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
