package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageBuffer(t *testing.T) {
	buf, err := NewImageBuffer(4, 3)
	require.NoError(t, err)
	assert.Equal(t, 12, buf.Len())
	for _, c := range Channels {
		assert.Len(t, buf.Plane(c), 12)
	}

	_, err = NewImageBuffer(0, 3)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
	_, err = NewImageBuffer(maxDimension+1, 1)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestMonoAndRGBBuffers(t *testing.T) {
	plane := []uint16{1, 2, 3, 4}
	mono, err := NewMonoBuffer(2, 2, plane)
	require.NoError(t, err)
	assert.True(t, mono.IsMono())
	plane[0] = 99
	assert.Equal(t, uint16(1), mono.Planes[Red][0], "mono planes are copies")

	_, err = NewMonoBuffer(2, 2, []uint16{1})
	assert.ErrorIs(t, err, ErrSizeMismatch)

	rgb, err := NewRGBBuffer(2, 1, []uint16{1, 2}, []uint16{1, 2}, []uint16{1, 3})
	require.NoError(t, err)
	assert.False(t, rgb.IsMono())

	_, err = NewRGBBuffer(2, 1, []uint16{1, 2}, []uint16{1}, []uint16{1, 3})
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestCloneCopyEqual(t *testing.T) {
	a, err := NewRGBBuffer(2, 1, []uint16{1, 2}, []uint16{3, 4}, []uint16{5, 6})
	require.NoError(t, err)

	b := a.Clone()
	assert.True(t, a.Equal(b))
	b.Planes[Blue][1] = 7
	assert.False(t, a.Equal(b))
	assert.Equal(t, uint16(6), a.Planes[Blue][1])

	require.NoError(t, b.CopyFrom(a))
	assert.True(t, a.Equal(b))

	other, err := NewImageBuffer(1, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, other.CopyFrom(a), ErrSizeMismatch)
	assert.False(t, a.Equal(other))
	assert.False(t, a.SameSize(nil))
}

func TestFloatRoundTripAndStats(t *testing.T) {
	buf, err := NewMonoBuffer(3, 1, []uint16{0, 100, 65535})
	require.NoError(t, err)

	px := buf.Float32Plane(Green)
	assert.Equal(t, []float32{0, 100, 65535}, px)

	buf.SetFromFloat32(Green, []float32{-5, 100.6, 70000})
	assert.Equal(t, []uint16{0, 101, 65535}, buf.Planes[Green])

	lo, hi := buf.MinMax(Red)
	assert.Equal(t, uint16(0), lo)
	assert.Equal(t, uint16(65535), hi)
	assert.InDelta(t, (100.0+65535)/3, buf.Mean(Red), 1e-9)
}

func TestClamp16(t *testing.T) {
	assert.Equal(t, uint16(0), Clamp16(math.NaN()))
	assert.Equal(t, uint16(0), Clamp16(-1))
	assert.Equal(t, uint16(2), Clamp16(1.5))
	assert.Equal(t, uint16(MaxValue), Clamp16(1e9))
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "red", Red.String())
	assert.Equal(t, "blue", Blue.String())
	assert.Equal(t, "channel(7)", Channel(7).String())
}

func TestImageData(t *testing.T) {
	data := NewImageData()
	assert.False(t, data.HasImage())
	assert.Nil(t, data.GetOriginal())
	assert.Error(t, data.SetOriginal(nil, ""))
	assert.Error(t, data.ResetToOriginal())

	buf, err := NewMonoBuffer(2, 2, []uint16{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, data.SetOriginal(buf, "moon.tif"))
	assert.True(t, data.HasImage())
	assert.True(t, data.IsMono())
	assert.Equal(t, "moon.tif", data.GetFilepath())

	processed := buf.Clone()
	processed.Planes[Red][0] = 500
	require.NoError(t, data.SetProcessed(processed))
	assert.Equal(t, uint16(500), data.GetProcessed().Planes[Red][0])
	assert.Equal(t, uint16(1), data.GetOriginal().Planes[Red][0])

	small, err := NewImageBuffer(1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, data.SetProcessed(small), ErrSizeMismatch)

	require.NoError(t, data.ResetToOriginal())
	assert.True(t, data.GetProcessed().Equal(buf))

	data.Clear()
	assert.False(t, data.HasImage())
	assert.False(t, data.IsMono())
}
