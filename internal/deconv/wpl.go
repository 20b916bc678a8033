// Wiener filter preconditioned Landweber deconvolution
package deconv

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"astro-restoration/internal/workerpool"
)

// wienerMinGamma is the smallest gamma that enables the Wiener preconditioner
const wienerMinGamma = 0.0001

var (
	ErrPSFTooLarge = errors.New("psf larger than the image")
	ErrEmptyInput  = errors.New("empty deconvolution input")
)

// Options tunes the deconvolver
type Options struct {
	Gamma     float64 // Wiener regularisation, disabled at or below 0.0001
	FilterXY  float64 // Gaussian low-pass strength in the frequency domain
	Normalize bool    // scale the blurred image by the PSF sum
	AntiRing  bool    // blend the padding toward the reblurred image
	Threshold float64 // results below become zero
	Boundary  Boundary
	Resizing  Resizing
}

// DefaultOptions returns the settings used by the deconvolution stage
func DefaultOptions() Options {
	return Options{
		Gamma:     0,
		FilterXY:  1,
		Normalize: true,
		AntiRing:  true,
		Threshold: 0.01,
		Boundary:  BoundaryReflexive,
		Resizing:  ResizeAuto,
	}
}

// Deconvolver runs the WPL iteration on float planes. Inner loops are
// partitioned by row on the worker pool. A run cannot be cancelled.
type Deconvolver struct {
	opts   Options
	pool   *workerpool.Pool
	logger logrus.FieldLogger
}

// NewDeconvolver creates a deconvolver. A nil pool runs everything inline.
func NewDeconvolver(opts Options, pool *workerpool.Pool, logger logrus.FieldLogger) *Deconvolver {
	return &Deconvolver{opts: opts, pool: pool, logger: logger}
}

// Plane is a row-major float matrix
type Plane struct {
	Data []float64
	Rows int
	Cols int
}

// Deconvolve restores b blurred by psf with the given number of Landweber
// iterations and returns a matrix of b's size.
func (d *Deconvolver) Deconvolve(b, psf Plane, iterations int) ([]float64, error) {
	if len(b.Data) == 0 || len(psf.Data) == 0 {
		return nil, ErrEmptyInput
	}
	if len(b.Data) != b.Rows*b.Cols || len(psf.Data) != psf.Rows*psf.Cols {
		return nil, fmt.Errorf("deconvolve: plane data does not match %dx%d / %dx%d: %w", b.Cols, b.Rows, psf.Cols, psf.Rows, ErrEmptyInput)
	}
	if psf.Rows > b.Rows || psf.Cols > b.Cols {
		return nil, fmt.Errorf("deconvolve: psf %dx%d, image %dx%d: %w", psf.Cols, psf.Rows, b.Cols, b.Rows, ErrPSFTooLarge)
	}
	start := time.Now()

	sum := floats.Sum(psf.Data)
	scalePSF := 1.0
	if sum != 0 && d.opts.Normalize {
		scalePSF /= sum
	}

	rows := expandedSize(psf.Rows, b.Rows, d.opts.Resizing)
	cols := expandedSize(psf.Cols, b.Cols, d.opts.Resizing)
	weightsCols, weightsRows := gaussianWeights(cols, d.opts.FilterXY), gaussianWeights(rows, d.opts.FilterXY)

	B := padCentered(b.Data, b.Rows, b.Cols, rows, cols, d.opts.Boundary)
	maxIdx := floats.MaxIdx(psf.Data)
	P := padPost(psf.Data, psf.Rows, psf.Cols, rows, cols)
	P = circShift(P, rows, cols, maxIdx/psf.Cols, maxIdx%psf.Cols)

	dht := NewHartley2D(rows, cols, d.pool)
	AX := make([]float64, len(B))

	d.logger.WithFields(logrus.Fields{
		"image":      fmt.Sprintf("%dx%d", b.Cols, b.Rows),
		"psf":        fmt.Sprintf("%dx%d", psf.Cols, psf.Rows),
		"padded":     fmt.Sprintf("%dx%d", cols, rows),
		"iterations": iterations,
		"boundary":   d.opts.Boundary.String(),
	}).Debug("DECONV: starting")

	dht.Forward(P)
	if d.opts.AntiRing {
		X := append([]float64(nil), B...)
		dht.Forward(X)
		d.convolveFD(rows, cols, P, X, AX)
		dht.Inverse(AX)
		d.blendBorders(b.Rows, b.Cols, rows, cols, sum, B, AX)
	}
	if d.opts.Gamma > wienerMinGamma {
		magMax := d.magMax(rows, cols, P)
		dht.Forward(B)
		X := append([]float64(nil), P...)
		d.wienerFD(d.opts.Gamma, magMax, rows, cols, X, X, P)
		copy(AX, B)
		d.wienerFD(d.opts.Gamma, magMax, rows, cols, AX, X, B)
		dht.Inverse(B)
	}

	rOff, cOff := padOffset(rows, b.Rows), padOffset(cols, b.Cols)

	dht.Inverse(P)
	aSum := floats.Norm(P, 1)
	if scalePSF != 1 {
		floats.Scale(1/scalePSF, B)
	}
	dht.Forward(P)

	X := append([]float64(nil), B...)
	for it := 0; it < iterations; it++ {
		dht.Forward(X)
		d.lowPass(X, rows, cols, weightsRows, weightsCols, 1)
		d.convolveFD(rows, cols, P, X, AX)
		dht.Inverse(AX)
		dht.Inverse(X)
		delta := d.landweberStep(B, AX, X, aSum)
		d.logger.WithFields(logrus.Fields{
			"iteration": it + 1,
			"delta":     delta,
			"energy":    energy(X, cols, b.Rows, b.Cols, rOff, cOff),
		}).Debug("DECONV: iteration")
	}
	dht.Forward(X)
	d.lowPass(X, rows, cols, weightsRows, weightsCols, aSum)
	dht.Inverse(X)

	out := crop(X, cols, b.Rows, b.Cols, rOff, cOff)
	for i, v := range out {
		if v < d.opts.Threshold {
			out[i] = 0
		}
	}
	d.logger.WithField("duration", time.Since(start)).Debug("DECONV: done")
	return out, nil
}

// gaussianWeights returns exp(-(k/(n/filter))²) for every frequency index,
// with frequencies above n/2 folded back
func gaussianWeights(n int, filter float64) []float64 {
	w := make([]float64, n)
	cc := float64(n) / (filter + 0.000001)
	for k := range w {
		shifted := k
		if shifted > n/2 {
			shifted = n - shifted
		}
		t := float64(shifted) / cc
		w[k] = math.Exp(-t * t)
	}
	return w
}

// convolveFD multiplies two Hartley spectra: h1·even(h2) + h1(-k)·odd(h2)
func (d *Deconvolver) convolveFD(rows, cols int, h1, h2, result []float64) {
	d.pool.ParallelFor(rows, func(start, end int) {
		for r := start; r < end; r++ {
			rC := (rows - r) % rows
			for c := 0; c < cols; c++ {
				cC := (cols - c) % cols
				i1, i2 := r*cols+c, rC*cols+cC
				even := (h2[i1] + h2[i2]) / 2
				odd := (h2[i1] - h2[i2]) / 2
				result[i1] = h1[i1]*even + h1[i2]*odd
			}
		}
	})
}

// wienerFD divides h1 by h2 in the Hartley domain with Tikhonov damping
// gamma·magMax. Inputs aliased by result are copied first since every output
// reads the mirrored index as well.
func (d *Deconvolver) wienerFD(gamma, magMax float64, rows, cols int, h1, h2, result []float64) {
	damping := gamma * magMax
	src1 := h1
	src2 := h2
	if sameSlice(result, h1) || sameSlice(result, h2) {
		src1 = append([]float64(nil), h1...)
		src2 = src1
		if !sameSlice(h1, h2) {
			src2 = append([]float64(nil), h2...)
		}
	}
	d.pool.ParallelFor(rows, func(start, end int) {
		for r := start; r < end; r++ {
			rC := (rows - r) % rows
			for c := 0; c < cols; c++ {
				cC := (cols - c) % cols
				i1, i2 := r*cols+c, rC*cols+cC
				even := (src2[i1] + src2[i2]) / 2
				odd := (src2[i1] - src2[i2]) / 2
				mag := src2[i1]*src2[i1] + src2[i2]*src2[i2]
				result[i1] = (src1[i1]*even - src1[i2]*odd) / (mag + damping)
			}
		}
	})
}

func sameSlice(a, b []float64) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}

// magMax returns the largest |H(k)|² + |H(-k)|² of a Hartley spectrum
func (d *Deconvolver) magMax(rows, cols int, h []float64) float64 {
	return workerpool.ParallelReduce(d.pool, rows, func(start, end int) float64 {
		best := 0.0
		for r := start; r < end; r++ {
			rC := (rows - r) % rows
			for c := 0; c < cols; c++ {
				cC := (cols - c) % cols
				a, b := h[r*cols+c], h[rC*cols+cC]
				best = max(best, a*a+b*b)
			}
		}
		return best
	}, func(a, b float64) float64 { return max(a, b) })
}

// blendBorders fades the padded border of B toward the reblurred image
// AX/sum, linearly with the distance from the original image.
func (d *Deconvolver) blendBorders(rows, cols, rowsE, colsE int, sum float64, B, AX []float64) {
	rOff, cOff := padOffset(rowsE, rows), padOffset(colsE, cols)
	d.pool.ParallelFor(rowsE, func(start, end int) {
		for rOut := start; rOut < end; rOut++ {
			r := rOut - rOff
			alphaJ := 0.0
			switch {
			case r < 0:
				alphaJ = float64(-r) / float64(rOff)
			case r > rows-1:
				alphaJ = float64(r-rows) / float64(rOff)
			}
			for cOut := 0; cOut < colsE; cOut++ {
				c := cOut - cOff
				alphaI := 0.0
				switch {
				case c < 0:
					alphaI = float64(-c) / float64(cOff)
				case c > cols-1:
					alphaI = float64(c-cols) / float64(cOff)
				}
				a := max(alphaI, alphaJ)
				i := rOut*colsE + cOut
				B[i] = (1-a)*B[i] + a*AX[i]/sum
			}
		}
	})
}

// lowPass multiplies a spectrum by the separable Gaussian weights divided by scale
func (d *Deconvolver) lowPass(X []float64, rows, cols int, weightsRows, weightsCols []float64, scale float64) {
	d.pool.ParallelFor(rows, func(start, end int) {
		for r := start; r < end; r++ {
			wr := weightsRows[r] / scale
			row := X[r*cols : (r+1)*cols]
			for c := range row {
				row[c] *= wr * weightsCols[c]
			}
		}
	})
}

// landweberStep adds B - AX/aSum to X, clamps X at zero and returns the
// summed magnitude of the accepted updates
func (d *Deconvolver) landweberStep(B, AX, X []float64, aSum float64) float64 {
	return workerpool.ParallelReduce(d.pool, len(X), func(start, end int) float64 {
		total := 0.0
		for i := start; i < end; i++ {
			delta := B[i] - AX[i]/aSum
			X[i] += delta
			if X[i] < 0 {
				X[i] = 0
			} else {
				total += math.Abs(delta)
			}
		}
		return total
	}, func(a, b float64) float64 { return a + b })
}

// energy sums X over the window of the original image
func energy(X []float64, colsE, rows, cols, rOff, cOff int) float64 {
	total := 0.0
	for r := 0; r < rows; r++ {
		start := (r+rOff)*colsE + cOff
		total += floats.Sum(X[start : start+cols])
	}
	return total
}
