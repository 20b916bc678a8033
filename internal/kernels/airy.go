package kernels

import (
	"math"
)

// AiryIntensity returns the normalised Airy pattern intensity (2·J1(x)/x)²
// at distance r from the centre, where x = k·r/airyDiskRadius and k is the
// wavenumber of the light.
func AiryIntensity(r, k, airyDiskRadius float64) float64 {
	if r == 0 {
		return 1
	}
	x := k * r / airyDiskRadius
	j1 := math.J1(x)
	v := 2 * j1 / x
	return v * v
}

// Wavenumber converts a wavelength in nanometres to radians per micron.
func Wavenumber(wavelengthNM float64) float64 {
	return 2 * math.Pi / (wavelengthNM / 1000)
}

// AiryDisk renders a size×size Airy pattern centred at (size/2, size/2)
// normalised to a peak of 1. Intensities beyond three disk radii are zero.
func AiryDisk(size int, wavelengthNM, airyDiskRadius float64) []float64 {
	out := make([]float64, size*size)
	if airyDiskRadius <= 0 {
		out[(size/2)*size+size/2] = 1
		return out
	}
	k := Wavenumber(wavelengthNM)
	center := float64(size) / 2
	peak := 0.0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			r := math.Hypot(dx, dy)
			v := 0.0
			if r <= airyDiskRadius*3 {
				v = AiryIntensity(r, k, airyDiskRadius)
			}
			out[y*size+x] = v
			peak = math.Max(peak, v)
		}
	}
	if peak > 0 {
		for i := range out {
			out[i] /= peak
		}
	}
	return out
}
