package core

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexedBuffer(t *testing.T, w, h int) *ImageBuffer {
	t.Helper()
	buf, err := NewImageBuffer(w, h)
	require.NoError(t, err)
	for c := range buf.Planes {
		for i := range buf.Planes[c] {
			buf.Planes[c][i] = uint16(100*c + i)
		}
	}
	return buf
}

func TestValidateROI(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)
	assert.NoError(t, ValidateROI(image.Rect(2, 2, 5, 5), bounds))
	assert.NoError(t, ValidateROI(bounds, bounds))
	assert.ErrorIs(t, ValidateROI(image.Rect(3, 3, 3, 8), bounds), ErrInvalidROI)
	assert.ErrorIs(t, ValidateROI(image.Rect(8, 8, 12, 9), bounds), ErrInvalidROI)
}

func TestExtractPaste(t *testing.T) {
	buf := indexedBuffer(t, 5, 4)
	sub, err := buf.Extract(image.Rect(1, 1, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, sub.Width)
	assert.Equal(t, 2, sub.Height)
	// row 1 starts at index 5
	assert.Equal(t, []uint16{6, 7, 8, 11, 12, 13}, sub.Planes[Red])
	assert.Equal(t, uint16(106), sub.Planes[Green][0])

	for i := range sub.Planes[Blue] {
		sub.Planes[Blue][i] = 9
	}
	require.NoError(t, buf.Paste(sub, image.Pt(1, 1)))
	assert.Equal(t, uint16(9), buf.Planes[Blue][6])
	assert.Equal(t, uint16(9), buf.Planes[Blue][13])
	assert.Equal(t, uint16(205), buf.Planes[Blue][5])

	assert.ErrorIs(t, buf.Paste(sub, image.Pt(3, 3)), ErrInvalidROI)
	_, err = buf.Extract(image.Rect(0, 0, 6, 1))
	assert.ErrorIs(t, err, ErrInvalidROI)
}

func TestRegionManager(t *testing.T) {
	rm := NewRegionManager(100, 50)
	bounds := image.Rect(0, 0, 400, 300)
	assert.False(t, rm.HasActiveSelection())

	_, err := rm.CreateSelection(image.Rect(0, 0, 101, 10), bounds)
	assert.ErrorIs(t, err, ErrInvalidROI)
	_, err = rm.CreateSelection(image.Rect(390, 0, 420, 10), bounds)
	assert.ErrorIs(t, err, ErrInvalidROI)

	first, err := rm.CreateSelection(image.Rect(10, 10, 60, 40), bounds)
	require.NoError(t, err)
	second, err := rm.CreateCenteredSelection(bounds)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	r, ok := rm.ActiveBounds()
	require.True(t, ok)
	assert.Equal(t, image.Rect(150, 125, 250, 175), r)

	assert.True(t, rm.SetActiveSelection(first))
	assert.Equal(t, first, rm.GetActiveSelection().ID)
	assert.False(t, rm.SetActiveSelection("nope"))

	assert.True(t, rm.RemoveSelection(first))
	assert.False(t, rm.HasActiveSelection())
	assert.Nil(t, rm.GetActiveSelection())
	assert.False(t, rm.RemoveSelection(first))

	rm.ClearAll()
	_, ok = rm.ActiveBounds()
	assert.False(t, ok)
}

func TestRegionManagerDefaults(t *testing.T) {
	rm := NewRegionManager(0, 0)
	_, err := rm.CreateSelection(image.Rect(0, 0, DefaultMaxROIWidth, DefaultMaxROIHeight), image.Rect(0, 0, 2000, 2000))
	assert.NoError(t, err)
}
