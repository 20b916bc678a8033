// OpenCV-backed pipeline stages
package cvfilters

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	"astro-restoration/internal/filters"
)

const (
	claheClipLimit = 2.0
	claheTiles     = 8
)

// EqualizeLocallyFilter is the EQUALIZE_LOCALLY stage: CLAHE on every plane,
// blended over the input by strength percent.
type EqualizeLocallyFilter struct {
	logger    logrus.FieldLogger
	clipLimit float64
	tiles     image.Point
}

func NewEqualizeLocallyFilter(logger logrus.FieldLogger) *EqualizeLocallyFilter {
	return &EqualizeLocallyFilter{
		logger:    logger,
		clipLimit: claheClipLimit,
		tiles:     image.Point{X: claheTiles, Y: claheTiles},
	}
}

func (f *EqualizeLocallyFilter) IsApplied(p *config.Profile) bool {
	return p.EqualizeLocalHistogramsStrength > 0
}

func (f *EqualizeLocallyFilter) IsSlow() bool { return true }

func (f *EqualizeLocallyFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	if !f.IsApplied(p) {
		return false, nil
	}
	share := min(float64(p.EqualizeLocalHistogramsStrength), 100) / 100

	channels := core.Channels[:]
	if isMono {
		channels = channels[:1]
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range channels {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", filters.ErrCancelled, err)
			}
			return f.equalizePlane(buf, c, share)
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	if isMono {
		copy(buf.Planes[core.Green], buf.Planes[core.Red])
		copy(buf.Planes[core.Blue], buf.Planes[core.Red])
	}

	f.logger.WithFields(logrus.Fields{
		"strength":   p.EqualizeLocalHistogramsStrength,
		"clip_limit": f.clipLimit,
	}).Debug("EQUALIZE_LOCALLY: applied")
	return true, nil
}

func (f *EqualizeLocallyFilter) equalizePlane(buf *core.ImageBuffer, c core.Channel, share float64) error {
	src := gocv.NewMatWithSize(buf.Height, buf.Width, gocv.MatTypeCV16UC1)
	defer src.Close()
	data, err := src.DataPtrUint16()
	if err != nil {
		return fmt.Errorf("equalize %s: %w", c, err)
	}
	copy(data, buf.Planes[c])

	dst := gocv.NewMat()
	defer dst.Close()
	clahe := gocv.NewCLAHEWithParams(f.clipLimit, f.tiles)
	defer clahe.Close()
	clahe.Apply(src, &dst)

	out, err := dst.DataPtrUint16()
	if err != nil {
		return fmt.Errorf("equalize %s: %w", c, err)
	}
	plane := buf.Planes[c]
	for i, v := range out {
		plane[i] = core.Clamp16(share*float64(v) + (1-share)*float64(plane[i]))
	}
	return nil
}
