package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"astro-restoration/internal/core"
	"astro-restoration/internal/kernels"
)

// checkPair rejects nil, empty or differently sized buffers
func checkPair(original, processed *core.ImageBuffer) error {
	if original == nil || processed == nil || original.Len() == 0 || processed.Len() == 0 {
		return fmt.Errorf("empty images: %w", ErrIncomparable)
	}
	if !original.SameSize(processed) {
		return fmt.Errorf("%dx%d vs %dx%d: %w", original.Width, original.Height,
			processed.Width, processed.Height, ErrIncomparable)
	}
	return nil
}

// luminance averages the three planes; mono buffers give their single plane
func luminance(buf *core.ImageBuffer) []float64 {
	out := make([]float64, buf.Len())
	r, g, b := buf.Planes[core.Red], buf.Planes[core.Green], buf.Planes[core.Blue]
	for i := range out {
		out[i] = (float64(r[i]) + float64(g[i]) + float64(b[i])) / 3
	}
	return out
}

func meanSquaredError(original, processed *core.ImageBuffer) float64 {
	a, b := luminance(original), luminance(processed)
	floats.Sub(a, b)
	return floats.Dot(a, a) / float64(len(a))
}

// PSNR is the peak signal to noise ratio against the 16-bit peak
type PSNR struct{}

func NewPSNR() *PSNR {
	return &PSNR{}
}

func (p *PSNR) Calculate(original, processed *core.ImageBuffer) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	mse := meanSquaredError(original, processed)
	if mse == 0 {
		return math.Inf(1), nil // Perfect match
	}
	return 10 * math.Log10(core.MaxValue*core.MaxValue/mse), nil
}

func (p *PSNR) Name() string { return "PSNR" }

func (p *PSNR) Description() string {
	return "Peak Signal-to-Noise Ratio against the 16-bit peak"
}

func (p *PSNR) Range() (float64, float64) {
	return 0, 100 // Practical range, can go higher
}

func (p *PSNR) IsHigherBetter() bool { return true }

// MSE is the mean squared luminance difference
type MSE struct{}

func NewMSE() *MSE {
	return &MSE{}
}

func (m *MSE) Calculate(original, processed *core.ImageBuffer) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	return meanSquaredError(original, processed), nil
}

func (m *MSE) Name() string        { return "MSE" }
func (m *MSE) Description() string { return "Mean Squared Error between images" }

func (m *MSE) Range() (float64, float64) {
	return 0, core.MaxValue * core.MaxValue
}

func (m *MSE) IsHigherBetter() bool { return false }

// MAE is the mean absolute luminance difference
type MAE struct{}

func NewMAE() *MAE {
	return &MAE{}
}

func (m *MAE) Calculate(original, processed *core.ImageBuffer) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	a, b := luminance(original), luminance(processed)
	return floats.Distance(a, b, 1) / float64(len(a)), nil
}

func (m *MAE) Name() string        { return "MAE" }
func (m *MAE) Description() string { return "Mean Absolute Error between images" }

func (m *MAE) Range() (float64, float64) {
	return 0, core.MaxValue
}

func (m *MAE) IsHigherBetter() bool { return false }

// SSIM is the mean structural similarity over Gaussian windows
type SSIM struct {
	sigma float64
}

func NewSSIM() *SSIM {
	return &SSIM{sigma: 1.5}
}

func (s *SSIM) Calculate(original, processed *core.ImageBuffer) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	w, h := original.Width, original.Height
	x := unitPlane(luminance(original))
	y := unitPlane(luminance(processed))

	xx := make([]float32, len(x))
	yy := make([]float32, len(x))
	xy := make([]float32, len(x))
	for i := range x {
		xx[i] = x[i] * x[i]
		yy[i] = y[i] * y[i]
		xy[i] = x[i] * y[i]
	}

	muX := kernels.GaussianBlur(x, w, h, s.sigma)
	muY := kernels.GaussianBlur(y, w, h, s.sigma)
	sXX := kernels.GaussianBlur(xx, w, h, s.sigma)
	sYY := kernels.GaussianBlur(yy, w, h, s.sigma)
	sXY := kernels.GaussianBlur(xy, w, h, s.sigma)

	const (
		c1 = 0.01 * 0.01
		c2 = 0.03 * 0.03
	)
	var sum float64
	for i := range x {
		mx, my := float64(muX[i]), float64(muY[i])
		varX := float64(sXX[i]) - mx*mx
		varY := float64(sYY[i]) - my*my
		cov := float64(sXY[i]) - mx*my
		num := (2*mx*my + c1) * (2*cov + c2)
		den := (mx*mx + my*my + c1) * (varX + varY + c2)
		sum += num / den
	}
	return sum / float64(len(x)), nil
}

// unitPlane scales 16-bit samples into [0, 1]
func unitPlane(px []float64) []float32 {
	out := make([]float32, len(px))
	for i, v := range px {
		out[i] = float32(v / core.MaxValue)
	}
	return out
}

func (s *SSIM) Name() string { return "SSIM" }

func (s *SSIM) Description() string {
	return "Structural Similarity Index - measures perceptual quality"
}

func (s *SSIM) Range() (float64, float64) { return 0, 1 }
func (s *SSIM) IsHigherBetter() bool      { return true }

// ContrastRatio compares the luminance standard deviation after and before
type ContrastRatio struct{}

func NewContrastRatio() *ContrastRatio {
	return &ContrastRatio{}
}

func (c *ContrastRatio) Calculate(original, processed *core.ImageBuffer) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	_, before := stat.MeanStdDev(luminance(original), nil)
	_, after := stat.MeanStdDev(luminance(processed), nil)
	if before == 0 || math.IsNaN(before) {
		return 1.0, nil
	}
	return after / before, nil
}

func (c *ContrastRatio) Name() string        { return "Contrast Ratio" }
func (c *ContrastRatio) Description() string { return "Ratio of contrast preservation" }
func (c *ContrastRatio) Range() (float64, float64) {
	return 0, 2
}
func (c *ContrastRatio) IsHigherBetter() bool { return true }

// Sharpness compares the variance of the Laplacian after and before
type Sharpness struct{}

func NewSharpness() *Sharpness {
	return &Sharpness{}
}

func (s *Sharpness) Calculate(original, processed *core.ImageBuffer) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	before := laplacianVariance(luminance(original), original.Width, original.Height)
	after := laplacianVariance(luminance(processed), processed.Width, processed.Height)
	if before == 0 {
		return 1.0, nil
	}
	return after / before, nil
}

// laplacianVariance applies the 4-neighbour Laplacian to the interior
func laplacianVariance(px []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	lap := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		row := y * w
		for x := 1; x < w-1; x++ {
			i := row + x
			lap = append(lap, px[i-1]+px[i+1]+px[i-w]+px[i+w]-4*px[i])
		}
	}
	return stat.Variance(lap, nil)
}

func (s *Sharpness) Name() string        { return "Sharpness" }
func (s *Sharpness) Description() string { return "Variance of the Laplacian relative to the input" }
func (s *Sharpness) Range() (float64, float64) {
	return 0, 10
}
func (s *Sharpness) IsHigherBetter() bool { return true }
