package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astro-restoration/internal/core"
	"astro-restoration/internal/kernels"
)

func gradientBuffer(t *testing.T, w, h int) *core.ImageBuffer {
	t.Helper()
	buf, err := core.NewImageBuffer(w, h)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint16(1000 + 500*x + 300*y)
			if (x/4+y/4)%2 == 0 {
				v += 8000
			}
			for c := range buf.Planes {
				buf.Planes[c][y*w+x] = v
			}
		}
	}
	return buf
}

func offsetBuffer(src *core.ImageBuffer, delta uint16) *core.ImageBuffer {
	out := src.Clone()
	for c := range out.Planes {
		for i := range out.Planes[c] {
			out.Planes[c][i] += delta
		}
	}
	return out
}

func blurredBuffer(src *core.ImageBuffer, sigma float64) *core.ImageBuffer {
	out := src.Clone()
	for _, c := range core.Channels {
		out.SetFromFloat32(c, kernels.GaussianBlur(src.Float32Plane(c), src.Width, src.Height, sigma))
	}
	return out
}

func TestIdenticalBuffers(t *testing.T) {
	a := gradientBuffer(t, 24, 24)
	b := a.Clone()

	psnr, err := NewPSNR().Calculate(a, b)
	require.NoError(t, err)
	assert.True(t, math.IsInf(psnr, 1))

	mse, err := NewMSE().Calculate(a, b)
	require.NoError(t, err)
	assert.Zero(t, mse)

	ssim, err := NewSSIM().Calculate(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ssim, 1e-3)

	contrast, err := NewContrastRatio().Calculate(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, contrast, 1e-9)

	sharpness, err := NewSharpness().Calculate(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sharpness, 1e-9)
}

func TestConstantOffset(t *testing.T) {
	a := gradientBuffer(t, 16, 16)
	b := offsetBuffer(a, 100)

	mse, err := NewMSE().Calculate(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 10000, mse, 1e-6)

	mae, err := NewMAE().Calculate(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 100, mae, 1e-9)

	psnr, err := NewPSNR().Calculate(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 10*math.Log10(65535.0*65535.0/10000), psnr, 1e-9)

	// an offset does not change the spread
	contrast, err := NewContrastRatio().Calculate(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, contrast, 1e-9)
}

func TestBlurLowersSharpnessAndSSIM(t *testing.T) {
	a := gradientBuffer(t, 32, 32)
	b := blurredBuffer(a, 2)

	sharpness, err := NewSharpness().Calculate(a, b)
	require.NoError(t, err)
	assert.Less(t, sharpness, 1.0)

	ssim, err := NewSSIM().Calculate(a, b)
	require.NoError(t, err)
	assert.Less(t, ssim, 0.999)
	assert.Greater(t, ssim, 0.0)
}

func TestIncomparableBuffers(t *testing.T) {
	a := gradientBuffer(t, 8, 8)
	b := gradientBuffer(t, 9, 8)

	for _, m := range []Metric{NewPSNR(), NewMSE(), NewMAE(), NewSSIM(), NewContrastRatio(), NewSharpness()} {
		_, err := m.Calculate(a, b)
		assert.ErrorIs(t, err, ErrIncomparable, m.Name())
		_, err = m.Calculate(nil, a)
		assert.ErrorIs(t, err, ErrIncomparable, m.Name())
	}
}

func TestEvaluator(t *testing.T) {
	e := NewEvaluator()
	assert.Equal(t, []string{"contrast_ratio", "mae", "mse", "psnr", "sharpness", "ssim"}, e.Names())

	a := gradientBuffer(t, 16, 16)
	b := offsetBuffer(a, 10)

	_, err := e.Calculate("nope", a, b)
	assert.Error(t, err)

	all := e.CalculateAll(a, b)
	assert.Len(t, all, 6)

	step := e.EvaluateStep(a, b, "SHARPEN")
	assert.Contains(t, step, "psnr")
	assert.Contains(t, step, "sharpness")
	assert.NotContains(t, step, "ssim")

	step = e.EvaluateStep(a, b, "ROF_DENOISE")
	assert.Contains(t, step, "ssim")
	assert.Contains(t, step, "contrast_preservation")

	info := e.Info()
	assert.False(t, info["mse"].HigherBetter)
	assert.Equal(t, [2]float64{0, 1}, info["ssim"].Range)
}

func TestGenerateReport(t *testing.T) {
	e := NewEvaluator()
	a := gradientBuffer(t, 16, 16)

	report := e.GenerateReport(a, a.Clone())
	assert.Greater(t, report.OverallScore, 60.0)
	assert.LessOrEqual(t, report.OverallScore, 100.0)
	assert.Empty(t, report.Analysis.Issues)
	assert.NotEmpty(t, report.Timestamp)

	noisy := offsetBuffer(a, 20000)
	report = e.GenerateReport(a, noisy)
	assert.Contains(t, report.Analysis.Issues, "low PSNR, the restoration changed the image heavily")
}
