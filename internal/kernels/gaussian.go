// Package kernels holds the numeric building blocks shared by the filters:
// separable Gaussian blur, fixed integer stencils and the Airy disk model.
package kernels

import (
	"math"
)

// DefaultAccuracy is the relative kernel value at which Gaussian kernels are truncated.
const DefaultAccuracy = 0.01

// GaussianKernel1D returns a normalised, symmetric Gaussian kernel of length
// 2*r+1 where r is the distance at which the kernel drops below accuracy.
func GaussianKernel1D(sigma, accuracy float64) []float32 {
	if sigma <= 0 {
		return []float32{1}
	}
	if accuracy <= 0 || accuracy >= 1 {
		accuracy = DefaultAccuracy
	}
	radius := int(math.Ceil(sigma*math.Sqrt(-2*math.Log(accuracy)))) + 1
	kernel := make([]float32, 2*radius+1)

	sum := 0.0
	values := make([]float64, radius+1)
	for i := 0; i <= radius; i++ {
		values[i] = math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		if i == 0 {
			sum += values[i]
		} else {
			sum += 2 * values[i]
		}
	}
	for i := 0; i <= radius; i++ {
		v := float32(values[i] / sum)
		kernel[radius+i] = v
		kernel[radius-i] = v
	}
	return kernel
}

// clampIndex replaces out of range coordinates with the nearest edge coordinate
func clampIndex(size, x int) int {
	if x < 0 {
		return 0
	}
	if x >= size {
		return size - 1
	}
	return x
}

// convolveX convolves every row of data with kernel into res
func convolveX(res, data []float32, width, height int, kernel []float32) {
	k := len(kernel) / 2
	for y := 0; y < height; y++ {
		row := data[y*width : (y+1)*width]
		out := res[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			var sum float32
			if x-k >= 0 && x+k < width {
				for i, w := range kernel {
					sum += row[x-k+i] * w
				}
			} else {
				for i, w := range kernel {
					sum += row[clampIndex(width, x-k+i)] * w
				}
			}
			out[x] = sum
		}
	}
}

// convolveY convolves every column of data with kernel into res
func convolveY(res, data []float32, width, height int, kernel []float32) {
	k := len(kernel) / 2
	for y := 0; y < height; y++ {
		out := res[y*width : (y+1)*width]
		for x := range out {
			out[x] = 0
		}
		for i, w := range kernel {
			src := clampIndex(height, y-k+i) * width
			row := data[src : src+width]
			for x, v := range row {
				out[x] += v * w
			}
		}
	}
}

// GaussianBlur returns a blurred copy of a width×height plane using the
// default truncation accuracy. Pixels outside the plane take the value of
// the nearest edge pixel.
func GaussianBlur(src []float32, width, height int, sigma float64) []float32 {
	return GaussianBlurAccuracy(src, width, height, sigma, DefaultAccuracy)
}

// GaussianBlurAccuracy is GaussianBlur with an explicit kernel accuracy
func GaussianBlurAccuracy(src []float32, width, height int, sigma, accuracy float64) []float32 {
	res := make([]float32, len(src))
	if sigma <= 0 {
		copy(res, src)
		return res
	}
	kernel := GaussianKernel1D(sigma, accuracy)
	tmp := make([]float32, len(src))
	convolveX(tmp, src, width, height, kernel)
	convolveY(res, tmp, width, height, kernel)
	return res
}
