// Two-dimensional discrete Hartley transform
package deconv

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"astro-restoration/internal/workerpool"
)

// Hartley2D transforms row-major rows×cols real matrices. H = Re F - Im F of
// the 2D DFT, so the transform is its own inverse up to a factor 1/(rows·cols).
type Hartley2D struct {
	rows, cols int
	pool       *workerpool.Pool
	work       []complex128
}

// NewHartley2D prepares a transform for matrices of the given size
func NewHartley2D(rows, cols int, pool *workerpool.Pool) *Hartley2D {
	return &Hartley2D{rows: rows, cols: cols, pool: pool, work: make([]complex128, rows*cols)}
}

// Forward replaces data with its Hartley transform
func (h *Hartley2D) Forward(data []float64) {
	rows, cols := h.rows, h.cols
	work := h.work

	h.pool.ParallelFor(rows, func(start, end int) {
		fft := fourier.NewCmplxFFT(cols)
		in := make([]complex128, cols)
		out := make([]complex128, cols)
		for r := start; r < end; r++ {
			row := data[r*cols : (r+1)*cols]
			for c, v := range row {
				in[c] = complex(v, 0)
			}
			fft.Coefficients(out, in)
			copy(work[r*cols:(r+1)*cols], out)
		}
	})
	h.pool.ParallelFor(cols, func(start, end int) {
		fft := fourier.NewCmplxFFT(rows)
		in := make([]complex128, rows)
		out := make([]complex128, rows)
		for c := start; c < end; c++ {
			for r := 0; r < rows; r++ {
				in[r] = work[r*cols+c]
			}
			fft.Coefficients(out, in)
			for r := 0; r < rows; r++ {
				v := out[r]
				data[r*cols+c] = real(v) - imag(v)
			}
		}
	})
}

// Inverse replaces data with its inverse Hartley transform
func (h *Hartley2D) Inverse(data []float64) {
	h.Forward(data)
	scale := 1 / float64(h.rows*h.cols)
	h.pool.ParallelFor(len(data), func(start, end int) {
		for i := start; i < end; i++ {
			data[i] *= scale
		}
	})
}
