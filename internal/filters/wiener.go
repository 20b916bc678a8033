package filters

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	"astro-restoration/internal/deconv"
	"astro-restoration/internal/workerpool"
)

// ErrNoPSF is returned by the deconvolution stage before any PSF is set
var ErrNoPSF = errors.New("no psf loaded")

// WienerFilter is the WIENER_DECONV stage. Every channel is deconvolved with
// its own PSF plane and rescaled so its mean matches the input mean.
type WienerFilter struct {
	logger logrus.FieldLogger
	pool   *workerpool.Pool
	opts   deconv.Options

	mu  sync.RWMutex
	psf *core.ImageBuffer
}

// NewWienerFilter creates the stage. The PSF must be set before Apply.
func NewWienerFilter(pool *workerpool.Pool, logger logrus.FieldLogger) *WienerFilter {
	return &WienerFilter{logger: logger, pool: pool, opts: deconv.DefaultOptions()}
}

// SetPSF replaces the point spread function used by later applications
func (f *WienerFilter) SetPSF(psf *core.ImageBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.psf = psf
}

// PSF returns the current point spread function
func (f *WienerFilter) PSF() *core.ImageBuffer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.psf
}

func (f *WienerFilter) IsApplied(p *config.Profile) bool { return p.ApplyWienerDeconvolution }
func (f *WienerFilter) IsSlow() bool                      { return true }

func (f *WienerFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	psf := f.PSF()
	if psf == nil {
		return false, ErrNoPSF
	}
	if psf.Width > buf.Width || psf.Height > buf.Height {
		return false, fmt.Errorf("psf %dx%d on image %dx%d: %w", psf.Width, psf.Height, buf.Width, buf.Height, deconv.ErrPSFTooLarge)
	}
	if err := checkCancelled(ctx); err != nil {
		return false, err
	}
	repetitions := max(p.WienerRepetitions, 1)
	d := deconv.NewDeconvolver(f.opts, f.pool, f.logger)

	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		iterations := p.WienerIterationsFor(c)
		if iterations <= 0 {
			return nil
		}
		psfPlane := toFloat64(psf.Planes[c])
		for rep := 0; rep < repetitions; rep++ {
			meanIn := buf.Mean(c)
			out, err := d.Deconvolve(
				deconv.Plane{Data: toFloat64(buf.Planes[c]), Rows: buf.Height, Cols: buf.Width},
				deconv.Plane{Data: psfPlane, Rows: psf.Height, Cols: psf.Width},
				iterations,
			)
			if err != nil {
				return fmt.Errorf("%s channel: %w", c, err)
			}
			rescaleToMean(buf.Planes[c], out, meanIn)
		}
		f.logger.WithFields(logrus.Fields{
			"channel":     c.String(),
			"iterations":  iterations,
			"repetitions": repetitions,
		}).Debug("WIENER_DECONV: channel done")
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func toFloat64(plane []uint16) []float64 {
	out := make([]float64, len(plane))
	for i, v := range plane {
		out[i] = float64(v)
	}
	return out
}

// rescaleToMean rounds the deconvolved plane to 16 bits, then scales it so
// its mean equals meanIn
func rescaleToMean(dst []uint16, src []float64, meanIn float64) {
	var sum float64
	for i, v := range src {
		dst[i] = core.Clamp16(v)
		sum += float64(dst[i])
	}
	meanOut := sum / float64(len(dst))
	if meanOut == 0 {
		return
	}
	scale := meanIn / meanOut
	for i, v := range dst {
		dst[i] = truncate16(float64(v) * scale)
	}
}
