// 16-bit image loading, saving and preview encoding
package io

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"astro-restoration/internal/core"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrReadFailed        = errors.New("failed to read image")
	ErrWriteFailed       = errors.New("failed to write image")
)

// 8-bit samples are widened by 257 so 255 maps to 65535
const widen8 = 257

var supportedFormats = []string{".tif", ".tiff", ".png", ".jpg", ".jpeg", ".bmp"}

// eightBitFormats cannot carry 16-bit samples
var eightBitFormats = []string{".jpg", ".jpeg", ".bmp"}

// ImageLoader handles image file operations
type ImageLoader struct {
	logger logrus.FieldLogger
}

func NewImageLoader(logger logrus.FieldLogger) *ImageLoader {
	return &ImageLoader{
		logger: logger,
	}
}

// IsSupported reports whether the extension of path can be read and written
func IsSupported(path string) bool {
	return slices.Contains(supportedFormats, strings.ToLower(filepath.Ext(path)))
}

// SupportedFormats lists the accepted file extensions
func SupportedFormats() []string {
	return slices.Clone(supportedFormats)
}

// Load reads a file into a three-plane buffer. The second result reports a
// single-channel source, whose samples are replicated into every plane.
func (il *ImageLoader) Load(path string) (*core.ImageBuffer, bool, error) {
	il.logger.WithField("filepath", path).Debug("IO: loading image")

	if !IsSupported(path) {
		return nil, false, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	mat := gocv.IMRead(path, gocv.IMReadAnyDepth|gocv.IMReadAnyColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, false, fmt.Errorf("%s: %w", path, ErrReadFailed)
	}

	buf, mono, err := FromMat(mat)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    buf.Width,
		"height":   buf.Height,
		"channels": mat.Channels(),
		"mono":     mono,
	}).Info("IO: image loaded")
	return buf, mono, nil
}

// Save writes the buffer. Mono buffers are written as one channel from the
// green plane. 8-bit formats are narrowed by 257.
func (il *ImageLoader) Save(buf *core.ImageBuffer, path string, mono bool) error {
	il.logger.WithField("filepath", path).Debug("IO: saving image")

	if buf == nil || buf.Len() == 0 {
		return fmt.Errorf("cannot save empty image: %w", ErrWriteFailed)
	}
	if !IsSupported(path) {
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	mat, err := ToMat(buf, mono)
	if err != nil {
		return err
	}
	defer mat.Close()

	if slices.Contains(eightBitFormats, strings.ToLower(filepath.Ext(path))) {
		narrow := gocv.NewMat()
		defer narrow.Close()
		mat.ConvertToWithParams(&narrow, gocv.MatTypeCV8U, 1.0/widen8, 0)
		if !gocv.IMWrite(path, narrow) {
			return fmt.Errorf("%s: %w", path, ErrWriteFailed)
		}
	} else if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("%s: %w", path, ErrWriteFailed)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    buf.Width,
		"height":   buf.Height,
		"mono":     mono,
	}).Info("IO: image saved")
	return nil
}

// EncodePreview renders the buffer as an 8-bit PNG in memory
func EncodePreview(buf *core.ImageBuffer) ([]byte, error) {
	mat, err := ToMat(buf, buf.IsMono())
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	narrow := gocv.NewMat()
	defer narrow.Close()
	mat.ConvertToWithParams(&narrow, gocv.MatTypeCV8U, 1.0/widen8, 0)

	encoded, err := gocv.IMEncode(gocv.PNGFileExt, narrow)
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	defer encoded.Close()
	return slices.Clone(encoded.GetBytes()), nil
}

// FromMat copies a BGR, BGRA or single-channel Mat of 8 or 16 bits into a
// new buffer.
func FromMat(mat gocv.Mat) (*core.ImageBuffer, bool, error) {
	src := mat
	switch mat.Channels() {
	case 1, 3:
	case 4:
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(mat, &bgr, gocv.ColorBGRAToBGR)
		src = bgr
	default:
		return nil, false, fmt.Errorf("%d channels: %w", mat.Channels(), ErrUnsupportedFormat)
	}

	switch depth := src.Type() & 7; depth {
	case gocv.MatTypeCV16U:
	case gocv.MatTypeCV8U:
		wide := gocv.NewMat()
		defer wide.Close()
		src.ConvertToWithParams(&wide, gocv.MatTypeCV16U, widen8, 0)
		src = wide
	default:
		return nil, false, fmt.Errorf("sample depth %d: %w", depth, ErrUnsupportedFormat)
	}

	if !src.IsContinuous() {
		cont := src.Clone()
		defer cont.Close()
		src = cont
	}
	data, err := src.DataPtrUint16()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	w, h := src.Cols(), src.Rows()
	if src.Channels() == 1 {
		buf, err := core.NewMonoBuffer(w, h, data)
		return buf, true, err
	}

	buf, err := core.NewImageBuffer(w, h)
	if err != nil {
		return nil, false, err
	}
	r, g, b := buf.Planes[core.Red], buf.Planes[core.Green], buf.Planes[core.Blue]
	for i := range r {
		b[i] = data[3*i]
		g[i] = data[3*i+1]
		r[i] = data[3*i+2]
	}
	return buf, false, nil
}

// ToMat copies the buffer into a new 16-bit Mat, BGR or single-channel
// from the green plane when mono. The caller closes it.
func ToMat(buf *core.ImageBuffer, mono bool) (gocv.Mat, error) {
	if err := buf.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	if mono {
		mat := gocv.NewMatWithSize(buf.Height, buf.Width, gocv.MatTypeCV16UC1)
		data, err := mat.DataPtrUint16()
		if err != nil {
			mat.Close()
			return gocv.NewMat(), fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		copy(data, buf.Planes[core.Green])
		return mat, nil
	}

	mat := gocv.NewMatWithSize(buf.Height, buf.Width, gocv.MatTypeCV16UC3)
	data, err := mat.DataPtrUint16()
	if err != nil {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	r, g, b := buf.Planes[core.Red], buf.Planes[core.Green], buf.Planes[core.Blue]
	for i := range r {
		data[3*i] = b[i]
		data[3*i+1] = g[i]
		data[3*i+2] = r[i]
	}
	return mat, nil
}
