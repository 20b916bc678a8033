package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianKernel1D(t *testing.T) {
	tests := []struct {
		name  string
		sigma float64
	}{
		{"small", 0.5},
		{"unit", 1},
		{"wide", 4.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := GaussianKernel1D(tt.sigma, DefaultAccuracy)
			require.Equal(t, 1, len(k)%2)

			sum := float32(0)
			for _, v := range k {
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-5)

			r := len(k) / 2
			for i := 1; i <= r; i++ {
				assert.Equal(t, k[r-i], k[r+i])
				assert.LessOrEqual(t, k[r+i], k[r+i-1])
			}
			// the outermost tap sits below the truncation accuracy relative to the peak
			assert.Less(t, float64(k[0]/k[r]), DefaultAccuracy)
		})
	}

	assert.Equal(t, []float32{1}, GaussianKernel1D(0, DefaultAccuracy))
}

func TestGaussianBlurPreservesConstantPlane(t *testing.T) {
	w, h := 13, 7
	src := make([]float32, w*h)
	for i := range src {
		src[i] = 1234
	}
	out := GaussianBlur(src, w, h, 2.5)
	for i, v := range out {
		assert.InDelta(t, 1234, v, 0.05, "index %d", i)
	}
}

func TestGaussianBlurSpreadsImpulse(t *testing.T) {
	w, h := 21, 21
	src := make([]float32, w*h)
	src[10*w+10] = 1000
	out := GaussianBlur(src, w, h, 1.5)

	total := float32(0)
	for _, v := range out {
		total += v
	}
	assert.InDelta(t, 1000, total, 0.5)
	assert.Less(t, out[10*w+10], float32(1000))
	assert.Greater(t, out[10*w+11], float32(0))
	assert.Equal(t, out[10*w+11], out[10*w+9])
	assert.Equal(t, out[11*w+10], out[9*w+10])
}

func TestGaussianBlurZeroSigmaCopies(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	out := GaussianBlur(src, 2, 2, 0)
	assert.Equal(t, src, out)
	out[0] = 9
	assert.Equal(t, float32(1), src[0])
}

func TestSavitzkyGolayTablesSumToDivisor(t *testing.T) {
	want := map[int]int{2: 2447, 3: 4287, 4: 9253, 5: 29989, 6: 33721}
	for _, hw := range SavitzkyGolaySizes() {
		s, ok := SavitzkyGolay(hw)
		require.True(t, ok, "half width %d", hw)
		assert.Equal(t, 2*hw+1, s.Size)
		assert.Equal(t, want[hw], s.Divisor)
		assert.Equal(t, s.Divisor, s.Sum(), s.Name)
		assert.NoError(t, s.Validate())
	}
	_, ok := SavitzkyGolay(0)
	assert.False(t, ok)
}

func TestSavitzkyGolayTablesAreSymmetric(t *testing.T) {
	for _, hw := range SavitzkyGolaySizes() {
		s, _ := SavitzkyGolay(hw)
		n := s.Size
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				v := s.Weights[y*n+x]
				assert.Equal(t, v, s.Weights[(n-1-y)*n+x], "%s vertical", s.Name)
				assert.Equal(t, v, s.Weights[y*n+(n-1-x)], "%s horizontal", s.Name)
				assert.Equal(t, v, s.Weights[x*n+y], "%s transpose", s.Name)
			}
		}
	}
}

func TestStencilConvolveConstantPlane(t *testing.T) {
	s, _ := SavitzkyGolay(3)
	w, h := 9, 6
	src := make([]float32, w*h)
	for i := range src {
		src[i] = 500
	}
	for _, v := range s.Convolve(src, w, h) {
		assert.InDelta(t, 500, v, 1e-3)
	}
}

func TestStencilValidate(t *testing.T) {
	bad := Stencil{Name: "bad", Size: 3, Weights: []int{1, 1, 1, 1, 1, 1, 1, 1, 1}, Divisor: 8}
	assert.Error(t, bad.Validate())
	shape := Stencil{Name: "shape", Size: 3, Weights: []int{1}, Divisor: 1}
	assert.Error(t, shape.Validate())
}

func TestAiryIntensity(t *testing.T) {
	k := Wavenumber(532)
	assert.Equal(t, 1.0, AiryIntensity(0, k, 8))

	// first dark ring of the Airy pattern sits where J1 has its first zero
	firstZero := 3.8317059702075125
	r := firstZero * 8 / k
	assert.InDelta(t, 0, AiryIntensity(r, k, 8), 1e-9)
	assert.Less(t, AiryIntensity(r/2, k, 8), 1.0)
}

func TestAiryDisk(t *testing.T) {
	size := 32
	disk := AiryDisk(size, 630, 4)
	require.Len(t, disk, size*size)

	peak := 0.0
	for _, v := range disk {
		peak = math.Max(peak, v)
	}
	assert.Equal(t, 1.0, peak)
	assert.Equal(t, 1.0, disk[(size/2)*size+size/2])
	assert.Equal(t, disk[(size/2)*size+size/2+3], disk[(size/2)*size+size/2-3])
	assert.Equal(t, 0.0, disk[0])

	point := AiryDisk(8, 630, 0)
	assert.Equal(t, 1.0, point[4*8+4])
}
