// Synthetic Airy-disk point spread function
package psf

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"astro-restoration/internal/core"
	"astro-restoration/internal/kernels"
)

// DefaultSize is the edge length of generated and normalised PSFs
const DefaultSize = 64

// Wavelengths in nanometres used for the red, green and blue planes
var Wavelengths = [core.NumChannels]float64{630, 532, 465}

var ErrInvalidParams = errors.New("invalid psf parameters")

// Params describes a synthetic PSF
type Params struct {
	AiryDiskRadius       float64
	SeeingIndex          float64 // 0 is perfect seeing, 1 the worst
	DiffractionIntensity float64 // lifts the diffraction rings
	Size                 int
}

func (p Params) validate() error {
	switch {
	case p.Size < 4:
		return fmt.Errorf("size %d: %w", p.Size, ErrInvalidParams)
	case p.AiryDiskRadius < 0:
		return fmt.Errorf("airy disk radius %v: %w", p.AiryDiskRadius, ErrInvalidParams)
	case p.SeeingIndex < 0 || p.SeeingIndex > 1:
		return fmt.Errorf("seeing index %v: %w", p.SeeingIndex, ErrInvalidParams)
	case p.DiffractionIntensity < 0:
		return fmt.Errorf("diffraction intensity %v: %w", p.DiffractionIntensity, ErrInvalidParams)
	}
	return nil
}

// Generate renders one Airy pattern per wavelength into a 3-plane buffer
func Generate(p Params) (*core.ImageBuffer, error) {
	if p.Size == 0 {
		p.Size = DefaultSize
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	buf, err := core.NewImageBuffer(p.Size, p.Size)
	if err != nil {
		return nil, err
	}
	seeing := p.SeeingIndex / 4

	var g errgroup.Group
	for _, c := range core.Channels {
		c := c
		g.Go(func() error {
			plane := channelIntensity(Wavelengths[c], p.AiryDiskRadius, seeing, p.DiffractionIntensity, p.Size)
			toUint16(plane, buf.Planes[c])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buf, nil
}

// channelIntensity computes the peak-normalised pattern, lifts the rings
// with log(1 + v·intensity) and blurs by the seeing radius
func channelIntensity(wavelength, airyRadius, seeing, diffraction float64, size int) []float32 {
	disk := kernels.AiryDisk(size, wavelength, airyRadius)
	plane := make([]float32, len(disk))
	for i, v := range disk {
		if diffraction > 0 {
			v = math.Log(1 + v*diffraction)
		}
		plane[i] = float32(v)
	}
	radius := seeing / 2 * airyRadius
	return kernels.GaussianBlurAccuracy(plane, size, size, radius, kernels.DefaultAccuracy)
}

// toUint16 stretches min..max of a float plane onto 0..65535
func toUint16(src []float32, dst []uint16) {
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v := range src {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := float64(hi - lo)
	for i, v := range src {
		if span <= 0 {
			dst[i] = 0
			continue
		}
		dst[i] = core.Clamp16(float64(v-lo) / span * core.MaxValue)
	}
}
