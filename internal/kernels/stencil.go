package kernels

import (
	"fmt"
)

// Stencil is a square integer convolution kernel with its normalisation divisor
type Stencil struct {
	Name    string
	Size    int
	Weights []int
	Divisor int
}

// Radius returns the half width of the stencil
func (s Stencil) Radius() int {
	return s.Size / 2
}

// Sum returns the sum of all weights
func (s Stencil) Sum() int {
	sum := 0
	for _, w := range s.Weights {
		sum += w
	}
	return sum
}

// Validate checks the table shape and that the weights add up to the divisor
func (s Stencil) Validate() error {
	if s.Size%2 == 0 || len(s.Weights) != s.Size*s.Size {
		return fmt.Errorf("stencil %s: %d weights for size %d", s.Name, len(s.Weights), s.Size)
	}
	if sum := s.Sum(); sum != s.Divisor {
		return fmt.Errorf("stencil %s: weights sum to %d, divisor is %d", s.Name, sum, s.Divisor)
	}
	return nil
}

// Convolve returns Σ weight·value / divisor for every pixel of a plane.
// Neighbours outside the plane take the value of the nearest edge pixel.
func (s Stencil) Convolve(src []float32, width, height int) []float32 {
	out := make([]float32, len(src))
	r := s.Radius()
	div := float64(s.Divisor)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			inside := x-r >= 0 && x+r < width && y-r >= 0 && y+r < height
			var sum float64
			i := 0
			for dy := -r; dy <= r; dy++ {
				yy := y + dy
				if !inside {
					yy = clampIndex(height, yy)
				}
				row := src[yy*width : (yy+1)*width]
				for dx := -r; dx <= r; dx++ {
					w := s.Weights[i]
					i++
					if w == 0 {
						continue
					}
					xx := x + dx
					if !inside {
						xx = clampIndex(width, xx)
					}
					sum += float64(w) * float64(row[xx])
				}
			}
			out[y*width+x] = float32(sum / div)
		}
	}
	return out
}
