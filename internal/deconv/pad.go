package deconv

import (
	"fmt"
	"math/bits"
)

// Boundary selects how the blurred image is extended beyond its edges
type Boundary int

const (
	BoundaryReflexive Boundary = iota
	BoundaryPeriodic
	BoundaryZero
)

func (b Boundary) String() string {
	switch b {
	case BoundaryReflexive:
		return "reflexive"
	case BoundaryPeriodic:
		return "periodic"
	case BoundaryZero:
		return "zero"
	}
	return fmt.Sprintf("boundary(%d)", int(b))
}

// Resizing selects the padded transform size
type Resizing int

const (
	ResizeAuto Resizing = iota
	ResizeMinimal
	ResizeNextPowerOfTwo
)

func (r Resizing) String() string {
	switch r {
	case ResizeAuto:
		return "auto"
	case ResizeMinimal:
		return "minimal"
	case ResizeNextPowerOfTwo:
		return "next-power-of-two"
	}
	return fmt.Sprintf("resizing(%d)", int(r))
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// expandedSize returns the padded length of one axis. AUTO keeps the next
// power of two unless it wastes half of the minimal size again.
func expandedSize(psfSize, imageSize int, resizing Resizing) int {
	minimal := psfSize + imageSize
	result := minimal
	switch resizing {
	case ResizeAuto:
		if p := nextPow2(minimal); float64(p) < 1.5*float64(minimal) {
			result = p
		}
	case ResizeNextPowerOfTwo:
		result = nextPow2(minimal)
	}
	return max(result, 4)
}

// padOffset is where the original data starts inside a padded axis
func padOffset(expanded, size int) int {
	return (expanded - size + 1) / 2
}

func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// padCentered embeds src (rows×cols) centred into a rowsE×colsE matrix
func padCentered(src []float64, rows, cols, rowsE, colsE int, boundary Boundary) []float64 {
	out := make([]float64, rowsE*colsE)
	rOff, cOff := padOffset(rowsE, rows), padOffset(colsE, cols)
	for r := 0; r < rowsE; r++ {
		sr := r - rOff
		inRows := sr >= 0 && sr < rows
		switch boundary {
		case BoundaryReflexive:
			sr = reflect(sr, rows)
		case BoundaryPeriodic:
			sr = wrap(sr, rows)
		default:
			if !inRows {
				continue
			}
		}
		for c := 0; c < colsE; c++ {
			sc := c - cOff
			switch boundary {
			case BoundaryReflexive:
				sc = reflect(sc, cols)
			case BoundaryPeriodic:
				sc = wrap(sc, cols)
			default:
				if sc < 0 || sc >= cols {
					continue
				}
			}
			out[r*colsE+c] = src[sr*cols+sc]
		}
	}
	return out
}

// padPost zero-pads src at the bottom and right
func padPost(src []float64, rows, cols, rowsE, colsE int) []float64 {
	out := make([]float64, rowsE*colsE)
	for r := 0; r < rows; r++ {
		copy(out[r*colsE:r*colsE+cols], src[r*cols:(r+1)*cols])
	}
	return out
}

// circShift rotates the matrix so element (shiftR, shiftC) lands on (0, 0)
func circShift(src []float64, rows, cols, shiftR, shiftC int) []float64 {
	out := make([]float64, len(src))
	for r := 0; r < rows; r++ {
		sr := (r + shiftR) % rows
		for c := 0; c < cols; c++ {
			out[r*cols+c] = src[sr*cols+(c+shiftC)%cols]
		}
	}
	return out
}

// crop extracts rows×cols starting at (rOff, cOff) of a colsE-wide matrix
func crop(src []float64, colsE, rows, cols, rOff, cOff int) []float64 {
	out := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		start := (r+rOff)*colsE + cOff
		copy(out[r*cols:(r+1)*cols], src[start:start+cols])
	}
	return out
}
