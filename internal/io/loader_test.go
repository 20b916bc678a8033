package io

import (
	"bytes"
	stdio "io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astro-restoration/internal/core"
)

func testLoader() *ImageLoader {
	logger := logrus.New()
	logger.SetOutput(stdio.Discard)
	return NewImageLoader(logger)
}

func colourBuffer(t *testing.T) *core.ImageBuffer {
	t.Helper()
	buf, err := core.NewImageBuffer(6, 4)
	require.NoError(t, err)
	for i := 0; i < buf.Len(); i++ {
		buf.Planes[core.Red][i] = uint16(1000 * i)
		buf.Planes[core.Green][i] = uint16(60000 - 700*i)
		buf.Planes[core.Blue][i] = uint16(12345 + i)
	}
	return buf
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a/b/c.TIF"))
	assert.True(t, IsSupported("x.png"))
	assert.False(t, IsSupported("x.fits"))
	assert.False(t, IsSupported("noext"))
	assert.Contains(t, SupportedFormats(), ".tiff")
}

func TestRoundTrip16Bit(t *testing.T) {
	l := testLoader()
	src := colourBuffer(t)

	for _, name := range []string{"out.tif", "out.png"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, l.Save(src, path, false))

			got, mono, err := l.Load(path)
			require.NoError(t, err)
			assert.False(t, mono)
			assert.True(t, src.Equal(got))
		})
	}
}

func TestRoundTripMono(t *testing.T) {
	l := testLoader()
	plane := make([]uint16, 5*5)
	for i := range plane {
		plane[i] = uint16(2000 * i)
	}
	src, err := core.NewMonoBuffer(5, 5, plane)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mono.tif")
	require.NoError(t, l.Save(src, path, true))

	got, mono, err := l.Load(path)
	require.NoError(t, err)
	assert.True(t, mono)
	assert.True(t, src.Equal(got))
}

func TestEightBitFormatsNarrow(t *testing.T) {
	l := testLoader()
	src, err := core.NewImageBuffer(3, 3)
	require.NoError(t, err)
	for c := range src.Planes {
		for i := range src.Planes[c] {
			src.Planes[c][i] = 65535
		}
	}

	path := filepath.Join(t.TempDir(), "white.bmp")
	require.NoError(t, l.Save(src, path, false))

	got, _, err := l.Load(path)
	require.NoError(t, err)
	// 255 widens back to the full scale
	assert.True(t, src.Equal(got))
}

func TestUnsupportedFormat(t *testing.T) {
	l := testLoader()
	_, _, err := l.Load("image.fits")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	err = l.Save(colourBuffer(t), filepath.Join(t.TempDir(), "x.fits"), false)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = l.Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, ErrReadFailed)
}

func TestEncodePreview(t *testing.T) {
	data, err := EncodePreview(colourBuffer(t))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))
}

func TestMatConversion(t *testing.T) {
	src := colourBuffer(t)
	mat, err := ToMat(src, false)
	require.NoError(t, err)
	defer mat.Close()
	assert.Equal(t, 3, mat.Channels())
	assert.Equal(t, src.Width, mat.Cols())

	back, mono, err := FromMat(mat)
	require.NoError(t, err)
	assert.False(t, mono)
	assert.True(t, src.Equal(back))
}
