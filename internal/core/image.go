// Core 16-bit three-plane image buffer and the thread-safe holder around it
package core

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	// MaxValue is the largest sample value of a plane.
	MaxValue = 65535
	// NumChannels is the fixed number of planes in a buffer.
	NumChannels = 3

	maxDimension = 16384
)

// Channel indexes a plane of an ImageBuffer.
type Channel int

const (
	Red Channel = iota
	Green
	Blue
)

// String returns the channel name
func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Channels lists the planes in storage order.
var Channels = [NumChannels]Channel{Red, Green, Blue}

var (
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	ErrSizeMismatch      = errors.New("image size mismatch")
)

// ImageBuffer holds three row-major planes of unsigned 16-bit samples.
// Mono sources carry the same samples in every plane.
type ImageBuffer struct {
	Width  int
	Height int
	Planes [NumChannels][]uint16
}

// NewImageBuffer allocates a zeroed buffer
func NewImageBuffer(width, height int) (*ImageBuffer, error) {
	if err := validateDimensions(width, height); err != nil {
		return nil, err
	}
	b := &ImageBuffer{Width: width, Height: height}
	for c := range b.Planes {
		b.Planes[c] = make([]uint16, width*height)
	}
	return b, nil
}

// NewMonoBuffer replicates one plane into all three planes
func NewMonoBuffer(width, height int, plane []uint16) (*ImageBuffer, error) {
	if err := validateDimensions(width, height); err != nil {
		return nil, err
	}
	if len(plane) != width*height {
		return nil, fmt.Errorf("mono plane has %d samples, want %d: %w", len(plane), width*height, ErrSizeMismatch)
	}
	b := &ImageBuffer{Width: width, Height: height}
	for c := range b.Planes {
		b.Planes[c] = make([]uint16, len(plane))
		copy(b.Planes[c], plane)
	}
	return b, nil
}

// NewRGBBuffer wraps three existing planes without copying
func NewRGBBuffer(width, height int, red, green, blue []uint16) (*ImageBuffer, error) {
	if err := validateDimensions(width, height); err != nil {
		return nil, err
	}
	b := &ImageBuffer{Width: width, Height: height, Planes: [NumChannels][]uint16{red, green, blue}}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func validateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%dx%d: %w", width, height, ErrInvalidDimensions)
	}
	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("image too large: %dx%d (max: %d): %w", width, height, maxDimension, ErrInvalidDimensions)
	}
	return nil
}

// Validate checks dimensions and plane lengths
func (b *ImageBuffer) Validate() error {
	if err := validateDimensions(b.Width, b.Height); err != nil {
		return err
	}
	for c, plane := range b.Planes {
		if len(plane) != b.Width*b.Height {
			return fmt.Errorf("%s plane has %d samples, want %d: %w",
				Channel(c), len(plane), b.Width*b.Height, ErrSizeMismatch)
		}
	}
	return nil
}

// Len returns the number of samples per plane
func (b *ImageBuffer) Len() int {
	return b.Width * b.Height
}

// Plane returns the samples of one channel
func (b *ImageBuffer) Plane(c Channel) []uint16 {
	return b.Planes[c]
}

// SameSize reports whether both buffers share width and height
func (b *ImageBuffer) SameSize(o *ImageBuffer) bool {
	return o != nil && b.Width == o.Width && b.Height == o.Height
}

// Clone returns a deep copy
func (b *ImageBuffer) Clone() *ImageBuffer {
	out := &ImageBuffer{Width: b.Width, Height: b.Height}
	for c, plane := range b.Planes {
		out.Planes[c] = make([]uint16, len(plane))
		copy(out.Planes[c], plane)
	}
	return out
}

// CopyFrom overwrites the samples with those of src
func (b *ImageBuffer) CopyFrom(src *ImageBuffer) error {
	if !b.SameSize(src) {
		return fmt.Errorf("copy %dx%d into %dx%d: %w", src.Width, src.Height, b.Width, b.Height, ErrSizeMismatch)
	}
	for c := range b.Planes {
		copy(b.Planes[c], src.Planes[c])
	}
	return nil
}

// Equal reports whether both buffers hold identical samples
func (b *ImageBuffer) Equal(o *ImageBuffer) bool {
	if !b.SameSize(o) {
		return false
	}
	for c := range b.Planes {
		for i, v := range b.Planes[c] {
			if o.Planes[c][i] != v {
				return false
			}
		}
	}
	return true
}

// IsMono reports whether all three planes hold the same samples
func (b *ImageBuffer) IsMono() bool {
	r := b.Planes[Red]
	for _, c := range []Channel{Green, Blue} {
		for i, v := range b.Planes[c] {
			if r[i] != v {
				return false
			}
		}
	}
	return true
}

// Float32Plane converts one plane into a new float working plane
func (b *ImageBuffer) Float32Plane(c Channel) []float32 {
	src := b.Planes[c]
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out
}

// SetFromFloat32 writes a float plane back, rounding and clamping every sample
func (b *ImageBuffer) SetFromFloat32(c Channel, px []float32) {
	dst := b.Planes[c]
	for i := range dst {
		dst[i] = Clamp16(float64(px[i]))
	}
}

// MinMax returns the smallest and largest sample of a plane
func (b *ImageBuffer) MinMax(c Channel) (uint16, uint16) {
	plane := b.Planes[c]
	if len(plane) == 0 {
		return 0, 0
	}
	lo, hi := plane[0], plane[0]
	for _, v := range plane[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Mean returns the average sample value of a plane
func (b *ImageBuffer) Mean(c Channel) float64 {
	plane := b.Planes[c]
	if len(plane) == 0 {
		return 0
	}
	var sum float64
	for _, v := range plane {
		sum += float64(v)
	}
	return sum / float64(len(plane))
}

// Clamp16 rounds to the nearest integer and saturates into [0, MaxValue]
func Clamp16(v float64) uint16 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= MaxValue {
		return MaxValue
	}
	return uint16(math.Round(v))
}

// ImageData manages the original and processed buffers with thread safety
type ImageData struct {
	mu        sync.RWMutex
	original  *ImageBuffer
	processed *ImageBuffer
	filepath  string
	mono      bool
}

// NewImageData creates an empty holder
func NewImageData() *ImageData {
	return &ImageData{}
}

// SetOriginal stores a copy of buf as both original and processed image
func (img *ImageData) SetOriginal(buf *ImageBuffer, filepath string) error {
	if buf == nil {
		return fmt.Errorf("cannot set empty image")
	}
	if err := buf.Validate(); err != nil {
		return err
	}

	img.mu.Lock()
	defer img.mu.Unlock()

	img.original = buf.Clone()
	img.processed = buf.Clone()
	img.filepath = filepath
	img.mono = buf.IsMono()
	return nil
}

// SetProcessed replaces the processed image
func (img *ImageData) SetProcessed(buf *ImageBuffer) error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.original == nil {
		return fmt.Errorf("no original image loaded")
	}
	if !img.original.SameSize(buf) {
		return fmt.Errorf("processed image: %w", ErrSizeMismatch)
	}
	img.processed = buf.Clone()
	return nil
}

// GetOriginal returns a copy of the original image
func (img *ImageData) GetOriginal() *ImageBuffer {
	img.mu.RLock()
	defer img.mu.RUnlock()

	if img.original == nil {
		return nil
	}
	return img.original.Clone()
}

// GetProcessed returns a copy of the processed image
func (img *ImageData) GetProcessed() *ImageBuffer {
	img.mu.RLock()
	defer img.mu.RUnlock()

	if img.processed == nil {
		return nil
	}
	return img.processed.Clone()
}

// HasImage returns true if an image is loaded
func (img *ImageData) HasImage() bool {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.original != nil
}

// IsMono reports whether the loaded source was single channel
func (img *ImageData) IsMono() bool {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.mono
}

// GetFilepath returns the current file path
func (img *ImageData) GetFilepath() string {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.filepath
}

// ResetToOriginal resets the processed image to the original
func (img *ImageData) ResetToOriginal() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.original == nil {
		return fmt.Errorf("no original image available")
	}
	img.processed = img.original.Clone()
	return nil
}

// Clear drops all image data
func (img *ImageData) Clear() {
	img.mu.Lock()
	defer img.mu.Unlock()

	img.original = nil
	img.processed = nil
	img.filepath = ""
	img.mono = false
}
