package psf

import (
	"image"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/core"
)

// Normalize fits a user supplied PSF to size×size. A PSF larger in both
// dimensions is centre-cropped, one smaller in both is centred on a zero
// canvas. Anything else is returned unchanged.
func Normalize(buf *core.ImageBuffer, size int, logger logrus.FieldLogger) (*core.ImageBuffer, error) {
	fields := logrus.Fields{"width": buf.Width, "height": buf.Height, "size": size}
	switch {
	case buf.Width > size && buf.Height > size:
		logger.WithFields(fields).Warn("PSF: custom psf too large, cropping")
		x := (buf.Width - size) / 2
		y := (buf.Height - size) / 2
		return buf.Extract(image.Rect(x, y, x+size, y+size))
	case buf.Width < size && buf.Height < size:
		logger.WithFields(fields).Warn("PSF: custom psf too small, expanding")
		out, err := core.NewImageBuffer(size, size)
		if err != nil {
			return nil, err
		}
		if err := out.Paste(buf, image.Pt((size-buf.Width)/2, (size-buf.Height)/2)); err != nil {
			return nil, err
		}
		return out, nil
	}
	return buf.Clone(), nil
}
