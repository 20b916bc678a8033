package filters

import (
	"context"
	"encoding/binary"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

// RotateFilter is the ROTATE stage: bilinear rotation around the image
// centre, uncovered corners become zero.
type RotateFilter struct{}

func NewRotateFilter() *RotateFilter { return &RotateFilter{} }

func (f *RotateFilter) IsApplied(p *config.Profile) bool { return p.RotationAngle != 0 }
func (f *RotateFilter) IsSlow() bool                      { return false }

// rotationMatrix maps source to destination coordinates for a rotation of
// degrees around (cx, cy)
func rotationMatrix(degrees, cx, cy float64) f64.Aff3 {
	sin, cos := math.Sincos(degrees * math.Pi / 180)
	return f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
}

func planeToGray16(plane []uint16, width, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for i, v := range plane {
		binary.BigEndian.PutUint16(img.Pix[2*i:], v)
	}
	return img
}

func gray16ToPlane(img *image.Gray16, plane []uint16) {
	for i := range plane {
		plane[i] = binary.BigEndian.Uint16(img.Pix[2*i:])
	}
}

// RotatePlane rotates one plane in place
func RotatePlane(plane []uint16, width, height int, degrees float64) {
	src := planeToGray16(plane, width, height)
	dst := image.NewGray16(src.Bounds())
	m := rotationMatrix(degrees, float64(width)/2, float64(height)/2)
	xdraw.BiLinear.Transform(dst, m, src, src.Bounds(), xdraw.Src, nil)
	gray16ToPlane(dst, plane)
}

func (f *RotateFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
		RotatePlane(buf.Planes[c], buf.Width, buf.Height, p.RotationAngle)
		return nil
	})
	return err == nil, err
}
