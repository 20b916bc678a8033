package filters

import (
	"context"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func constantPlane(n int, v float32) []float32 {
	px := make([]float32, n)
	for i := range px {
		px[i] = v
	}
	return px
}

// stepPlane is dark on the left half and bright on the right half
func stepPlane(width, height int, dark, bright float32) []float32 {
	px := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				px[y*width+x] = dark
			} else {
				px[y*width+x] = bright
			}
		}
	}
	return px
}

func minMax(px []float32) (float32, float32) {
	lo, hi := px[0], px[0]
	for _, v := range px {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func TestSigmaFilterUniformPlane(t *testing.T) {
	px := constantPlane(16, 1000)
	s := SigmaFilter{SigmaWidth: 2, MinFraction: 0.2}
	require.NoError(t, s.Filter(context.Background(), px, 4, 4, 2))
	for i, v := range px {
		assert.Equal(t, float32(1000), v, "pixel %d", i)
	}
}

func TestSigmaFilterReplacesOutlier(t *testing.T) {
	w, h := 9, 9
	px := constantPlane(w*h, 1000)
	px[4*w+4] = 60000
	s := SigmaFilter{SigmaWidth: 2, MinFraction: 0.5}
	require.NoError(t, s.Filter(context.Background(), px, w, h, 1))
	for i, v := range px {
		assert.Equal(t, float32(1000), v, "pixel %d", i)
	}
}

func TestSigmaKernelShape(t *testing.T) {
	tests := []struct {
		radius float64
		k      int
		points int
	}{
		{0.5, 1, 5},
		{1, 1, 9},
		{1.5, 2, 13},
		{2, 2, 21},
	}
	for _, tt := range tests {
		k := newSigmaKernel(tt.radius)
		assert.Equal(t, tt.k, k.radius, "radius %v", tt.radius)
		assert.Equal(t, tt.points, k.points, "radius %v", tt.radius)
		sum := 0
		for _, l := range k.lineRadius {
			sum += 2*l + 1
		}
		assert.Equal(t, k.points, sum)
	}
}

func TestSigmaFilterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	buf, err := core.NewImageBuffer(8, 8)
	require.NoError(t, err)
	p := config.DefaultProfile()
	p.DenoiseAlgorithm1 = config.DenoiseSigma1
	f := NewSigmaDenoise1Filter(testLogger())
	assert.True(t, f.IsApplied(p))
	_, err = f.Apply(ctx, buf, p, false)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestUnsharpMaskOvershootsStepEdge(t *testing.T) {
	w, h := 32, 8
	px := stepPlane(w, h, 10000, 50000)
	UnsharpMask(px, w, h, UnsharpParams{Radius: 2, Amount: 0.5, Iterations: 1})
	lo, hi := minMax(px)
	assert.Less(t, lo, float32(10000))
	assert.Greater(t, hi, float32(50000))

	weak := stepPlane(w, h, 10000, 50000)
	UnsharpMask(weak, w, h, UnsharpParams{Radius: 2, Amount: 0.2, Iterations: 1})
	_, weakHi := minMax(weak)
	assert.Less(t, weakHi, hi)
}

func TestUnsharpMaskZeroAmountIsIdentity(t *testing.T) {
	w, h := 16, 4
	px := stepPlane(w, h, 100, 900)
	orig := append([]float32(nil), px...)
	UnsharpMask(px, w, h, UnsharpParams{Radius: 2, Amount: 0, Iterations: 3})
	assert.Equal(t, orig, px)
}

func TestUnsharpMaskFullRawBlendIsIdentity(t *testing.T) {
	w, h := 16, 4
	px := stepPlane(w, h, 100, 900)
	orig := append([]float32(nil), px...)
	UnsharpMask(px, w, h, UnsharpParams{Radius: 2, Amount: 0.5, Iterations: 1, BlendRaw: 1})
	assert.Equal(t, orig, px)
}

func TestDeringingReducesUndershoot(t *testing.T) {
	w, h := 32, 8
	plain := stepPlane(w, h, 5000, 50000)
	UnsharpMask(plain, w, h, UnsharpParams{Radius: 2, Amount: 0.6, Iterations: 1})

	dering := stepPlane(w, h, 5000, 50000)
	UnsharpMask(dering, w, h, UnsharpParams{
		Radius: 2, Amount: 0.6, Iterations: 1,
		DeringRadius: 3, DeringStrength: 1, DeringThreshold: 4,
	})
	plainLo, _ := minMax(plain)
	deringLo, _ := minMax(dering)
	assert.Greater(t, deringLo, plainLo)
}

func TestClippingPreventionReducesHighlights(t *testing.T) {
	w, h := 32, 8
	plain := stepPlane(w, h, 20000, 60000)
	UnsharpMask(plain, w, h, UnsharpParams{Radius: 2, Amount: 0.8, Iterations: 1})

	guarded := stepPlane(w, h, 20000, 60000)
	UnsharpMask(guarded, w, h, UnsharpParams{
		Radius: 2, Amount: 0.8, Iterations: 1,
		ClippingStrength: 1, ClippingFrom: 0,
	})
	_, plainHi := minMax(plain)
	_, guardedHi := minMax(guarded)
	assert.Less(t, guardedHi, plainHi)
}

func maxAbsDiff(a, b []float32) float64 {
	d := 0.0
	for i := range a {
		d = math.Max(d, math.Abs(float64(a[i]-b[i])))
	}
	return d
}

func TestUnsharpMaskBlendsEachIteration(t *testing.T) {
	w, h := 32, 8
	p := UnsharpParams{Radius: 2, Amount: 0.5, Iterations: 2, BlendRaw: 0.5}
	got := stepPlane(w, h, 10000, 50000)
	UnsharpMask(got, w, h, p)

	want := stepPlane(w, h, 10000, 50000)
	single := p
	single.Iterations = 1
	UnsharpMask(want, w, h, single)
	UnsharpMask(want, w, h, single)

	assert.Less(t, maxAbsDiff(got, want), 0.5)
}

func TestUnsharpMaskIterationsStrengthen(t *testing.T) {
	w, h := 32, 8
	once := stepPlane(w, h, 10000, 50000)
	UnsharpMask(once, w, h, UnsharpParams{Radius: 2, Amount: 0.5, Iterations: 1})
	thrice := stepPlane(w, h, 10000, 50000)
	UnsharpMask(thrice, w, h, UnsharpParams{Radius: 2, Amount: 0.5, Iterations: 3})

	_, onceHi := minMax(once)
	_, thriceHi := minMax(thrice)
	assert.Greater(t, thriceHi, onceHi)
}

func TestDeringMaskBuiltFromInput(t *testing.T) {
	w, h := 32, 8
	p := UnsharpParams{
		Radius: 2, Amount: 0.5, Iterations: 3,
		DeringRadius: 2, DeringStrength: 1, DeringThreshold: 4,
	}
	got := stepPlane(w, h, 1000, 50000)
	UnsharpMask(got, w, h, p)

	want := stepPlane(w, h, 1000, 50000)
	amounts := deringFactors(want, w, h, p)
	for i := range amounts {
		amounts[i] *= p.Amount
	}
	for i := 0; i < p.Iterations; i++ {
		unsharpWeighted(want, w, h, p.Radius, amounts, 0)
	}
	assert.Less(t, maxAbsDiff(got, want), 0.5)

	plain := stepPlane(w, h, 1000, 50000)
	UnsharpMask(plain, w, h, UnsharpParams{Radius: 2, Amount: 0.5, Iterations: 3})
	plainLo, _ := minMax(plain)
	gotLo, _ := minMax(got)
	assert.Greater(t, gotLo, plainLo)
}

func TestClippingPreventionIterated(t *testing.T) {
	w, h := 32, 8
	p := UnsharpParams{
		Radius: 2, Amount: 0.6, Iterations: 3,
		ClippingStrength: 1, ClippingFrom: 50, BlendRaw: 0.25,
	}
	got := stepPlane(w, h, 20000, 60000)
	UnsharpMask(got, w, h, p)

	want := stepPlane(w, h, 20000, 60000)
	amounts := clippingFactors(want, w, h, p)
	for i := range amounts {
		amounts[i] *= p.Amount
	}
	for i := 0; i < p.Iterations; i++ {
		unsharpWeighted(want, w, h, p.Radius, amounts, p.BlendRaw)
	}
	assert.Less(t, maxAbsDiff(got, want), 0.5)

	plain := stepPlane(w, h, 20000, 60000)
	UnsharpMask(plain, w, h, UnsharpParams{Radius: 2, Amount: 0.6, Iterations: 3, BlendRaw: 0.25})
	_, plainHi := minMax(plain)
	_, gotHi := minMax(got)
	assert.Less(t, gotHi, plainHi)
}

func TestDeringAndClippingIterated(t *testing.T) {
	w, h := 32, 8
	plain := stepPlane(w, h, 2000, 60000)
	UnsharpMask(plain, w, h, UnsharpParams{Radius: 2, Amount: 0.6, Iterations: 2})

	both := stepPlane(w, h, 2000, 60000)
	UnsharpMask(both, w, h, UnsharpParams{
		Radius: 2, Amount: 0.6, Iterations: 2,
		ClippingStrength: 1, ClippingFrom: 50,
		DeringRadius: 2, DeringStrength: 1, DeringThreshold: 4,
	})
	plainLo, plainHi := minMax(plain)
	bothLo, bothHi := minMax(both)
	assert.Greater(t, bothLo, plainLo)
	assert.Less(t, bothHi, plainHi)
}

func TestNewUnsharpParamsScaling(t *testing.T) {
	p := NewUnsharpParams(config.SharpenChannel{
		Radius: 1.5, Amount: 5000, Iterations: 0,
		ClippingStrength: 250, ClippingRange: 30,
		DeringStrength: 40, BlendRaw: 10,
	})
	assert.Equal(t, 0.5, p.Amount)
	assert.Equal(t, 1, p.Iterations)
	assert.Equal(t, 0.5, p.ClippingStrength)
	assert.Equal(t, 70.0, p.ClippingFrom)
	assert.Equal(t, 0.4, p.DeringStrength)
	assert.Equal(t, 0.1, p.BlendRaw)
	assert.Equal(t, 4, p.DeringThreshold)
}

func rgbStepBuffer(t *testing.T, w, h int) *core.ImageBuffer {
	t.Helper()
	buf, err := core.NewImageBuffer(w, h)
	require.NoError(t, err)
	for c := range buf.Planes {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := uint16(8000 + 2000*c)
				if x >= w/2 {
					v = uint16(40000 + 3000*c)
				}
				buf.Planes[c][y*w+x] = v
			}
		}
	}
	return buf
}

func TestSharpenFilterModes(t *testing.T) {
	p := config.DefaultProfile()
	f := NewSharpenFilter(testLogger())
	require.True(t, f.IsApplied(p))

	t.Run("luminance", func(t *testing.T) {
		buf := rgbStepBuffer(t, 24, 6)
		orig := buf.Clone()
		changed, err := f.Apply(context.Background(), buf, p, false)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.False(t, buf.Equal(orig))
	})

	t.Run("rgb", func(t *testing.T) {
		rgb := p.Clone()
		rgb.SharpenMode = config.ModeRGB
		rgb.AmountBlue = 9000
		buf := rgbStepBuffer(t, 24, 6)
		changed, err := f.Apply(context.Background(), buf, rgb, false)
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("mono replicates red", func(t *testing.T) {
		plane := make([]uint16, 24*6)
		for i := range plane {
			if i%24 >= 12 {
				plane[i] = 30000
			}
		}
		buf, err := core.NewMonoBuffer(24, 6, plane)
		require.NoError(t, err)
		_, err = f.Apply(context.Background(), buf, p, true)
		require.NoError(t, err)
		assert.Equal(t, buf.Planes[core.Red], buf.Planes[core.Green])
		assert.Equal(t, buf.Planes[core.Red], buf.Planes[core.Blue])
	})

	t.Run("disabled", func(t *testing.T) {
		off := p.Clone()
		off.Radius = 0
		assert.False(t, f.IsApplied(off))
	})
}

func TestSharpenLuminanceWithoutColorDesaturates(t *testing.T) {
	buf := rgbStepBuffer(t, 16, 4)
	all := [core.NumChannels]bool{true, true, true}
	SharpenLuminance(buf, UnsharpParams{Radius: 1, Amount: 0.3, Iterations: 1}, all, false)
	for i := 0; i < buf.Len(); i++ {
		r, g, b := buf.Planes[core.Red][i], buf.Planes[core.Green][i], buf.Planes[core.Blue][i]
		assert.InDelta(t, r, g, 1)
		assert.InDelta(t, r, b, 1)
	}
}

func TestLocalContrastPasses(t *testing.T) {
	p := config.DefaultProfile()
	f := NewLocalContrastFilter(testLogger())
	assert.False(t, f.IsApplied(p))

	p.LocalContrastFine = 20
	p.LocalContrastLarge = 100
	passes := localContrastPasses(p)
	require.Len(t, passes, 2)
	assert.Equal(t, LocalContrastFineRadius, passes[0].Radius)
	assert.Equal(t, 0.2, passes[0].Amount)
	assert.Equal(t, LocalContrastLargeRadius, passes[1].Radius)
	assert.Less(t, passes[1].Amount, 1.0)

	buf := rgbStepBuffer(t, 24, 24)
	changed, err := f.Apply(context.Background(), buf, p, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSavitzkyGolaySmooth(t *testing.T) {
	w, h := 12, 12
	px := constantPlane(w*h, 3000)
	require.NoError(t, SavitzkyGolaySmooth(px, w, h, 3, 100, 2))
	for _, v := range px {
		assert.InDelta(t, 3000, v, 0.5)
	}

	noisy := stepPlane(w, h, 1000, 2000)
	orig := append([]float32(nil), noisy...)
	require.NoError(t, SavitzkyGolaySmooth(noisy, w, h, 2, 0, 1))
	assert.Equal(t, orig, noisy)

	assert.Error(t, SavitzkyGolaySmooth(noisy, w, h, 7, 100, 1))
}

func totalVariation(px []float32, w, h int) float64 {
	var tv float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if x < w-1 {
				tv += math.Abs(float64(px[i+1] - px[i]))
			}
			if y < h-1 {
				tv += math.Abs(float64(px[i+w] - px[i]))
			}
		}
	}
	return tv
}

func TestROFDenoise(t *testing.T) {
	w, h := 16, 16
	flat := constantPlane(w*h, 2500)
	require.NoError(t, ROFDenoise(context.Background(), flat, w, h, 100, 5))
	for _, v := range flat {
		assert.InDelta(t, 2500, v, 1e-3)
	}

	checker := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			checker[y*w+x] = 1000
			if (x+y)%2 == 0 {
				checker[y*w+x] = 1200
			}
		}
	}
	before := totalVariation(checker, w, h)
	require.NoError(t, ROFDenoise(context.Background(), checker, w, h, 200, 10))
	assert.Less(t, totalVariation(checker, w, h), before)
}

func TestROFDenoiseReturnsLastPrimalStep(t *testing.T) {
	w, h := 8, 8
	px := stepPlane(w, h, 1000, 3000)
	orig := append([]float32(nil), px...)
	// the first primal step sees a zero dual field
	require.NoError(t, ROFDenoise(context.Background(), px, w, h, 50, 1))
	assert.Equal(t, orig, px)

	require.NoError(t, ROFDenoise(context.Background(), px, w, h, 50, 2))
	assert.NotEqual(t, orig, px)
}

func TestBilateralPreservesEdges(t *testing.T) {
	w, h := 16, 8
	flat := constantPlane(w*h, 7000)
	require.NoError(t, BilateralSmooth(context.Background(), flat, w, h, 200, 2, 2, 1))
	for _, v := range flat {
		assert.InDelta(t, 7000, v, 1e-2)
	}

	edge := stepPlane(w, h, 0, 60000)
	require.NoError(t, BilateralSmooth(context.Background(), edge, w, h, 100, 2, 2, 2))
	assert.Less(t, edge[w/2-1], float32(1))
	assert.Greater(t, edge[w/2], float32(59999))
}

func TestWaveletDenoiseReducesNoise(t *testing.T) {
	w, h := 64, 64
	flat := constantPlane(w*h, 12000)
	require.NoError(t, WaveletDenoise(context.Background(), flat, w, h, [waveletScales]float64{0.5, 0.5, 0}, true))
	for _, v := range flat {
		assert.InDelta(t, 12000, v, 1e-2)
	}

	rng := rand.New(rand.NewSource(7))
	noisy := make([]float32, w*h)
	for i := range noisy {
		noisy[i] = float32(30000 + rng.NormFloat64()*500)
	}
	std := func(px []float32) float64 {
		xs := make([]float64, len(px))
		for i, v := range px {
			xs[i] = float64(v)
		}
		return stat.StdDev(xs, nil)
	}
	before := std(noisy)
	require.NoError(t, WaveletDenoise(context.Background(), noisy, w, h, [waveletScales]float64{0.5, 0.5, 0}, false))
	assert.Less(t, std(noisy), before*0.9)
}

func TestDenoiseStageSelection(t *testing.T) {
	p := config.DefaultProfile()
	log := testLogger()
	stages := map[string]Filter{
		config.DenoiseSigma1:    NewSigmaDenoise1Filter(log),
		config.DenoiseBilateral: NewBilateralFilter(log),
		config.DenoiseROF:       NewROFFilter(log),
		config.DenoiseIans:      NewIansNoiseReductionFilter(log),
	}
	for algorithm := range stages {
		p.DenoiseAlgorithm1 = algorithm
		for name, f := range stages {
			assert.Equal(t, name == algorithm, f.IsApplied(p), "%s selected, checking %s", algorithm, name)
		}
	}

	p.DenoiseAlgorithm2 = config.DenoiseSigma2
	assert.True(t, NewSigmaDenoise2Filter(log).IsApplied(p))
	assert.False(t, NewSavitzkyGolayFilter(log).IsApplied(p))
	p.DenoiseAlgorithm2 = config.DenoiseSavGolay
	assert.True(t, NewSavitzkyGolayFilter(log).IsApplied(p))
}
