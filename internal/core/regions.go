// ROI (Region of Interest) selection and sub-buffer extraction
package core

import (
	"errors"
	"fmt"
	"image"
	"sync"
)

const (
	// DefaultMaxROIWidth and DefaultMaxROIHeight bound interactive selections.
	DefaultMaxROIWidth  = 1024
	DefaultMaxROIHeight = 768
)

var ErrInvalidROI = errors.New("invalid region of interest")

// Selection is a rectangular region of interest
type Selection struct {
	ID     string
	Bounds image.Rectangle
	Active bool
}

// RegionManager keeps the rectangular selections of one image
type RegionManager struct {
	mu         sync.RWMutex
	selections map[string]*Selection
	active     string
	nextID     int
	maxWidth   int
	maxHeight  int
}

// NewRegionManager creates a region manager with the given selection limits.
// Non-positive limits fall back to the defaults.
func NewRegionManager(maxWidth, maxHeight int) *RegionManager {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxROIWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultMaxROIHeight
	}
	return &RegionManager{
		selections: make(map[string]*Selection),
		nextID:     1,
		maxWidth:   maxWidth,
		maxHeight:  maxHeight,
	}
}

// CreateSelection validates rect against the image bounds and makes it active
func (rm *RegionManager) CreateSelection(rect, imageBounds image.Rectangle) (string, error) {
	rect = rect.Canon()
	if err := ValidateROI(rect, imageBounds); err != nil {
		return "", err
	}
	if rect.Dx() > rm.maxWidth || rect.Dy() > rm.maxHeight {
		return "", fmt.Errorf("selection %dx%d exceeds %dx%d: %w",
			rect.Dx(), rect.Dy(), rm.maxWidth, rm.maxHeight, ErrInvalidROI)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	id := fmt.Sprintf("rect_%d", rm.nextID)
	rm.nextID++

	for _, sel := range rm.selections {
		sel.Active = false
	}
	rm.selections[id] = &Selection{ID: id, Bounds: rect, Active: true}
	rm.active = id

	return id, nil
}

// CreateCenteredSelection selects the largest allowed rectangle around the image centre
func (rm *RegionManager) CreateCenteredSelection(imageBounds image.Rectangle) (string, error) {
	w := min(rm.maxWidth, imageBounds.Dx())
	h := min(rm.maxHeight, imageBounds.Dy())
	x := imageBounds.Min.X + (imageBounds.Dx()-w)/2
	y := imageBounds.Min.Y + (imageBounds.Dy()-h)/2
	return rm.CreateSelection(image.Rect(x, y, x+w, y+h), imageBounds)
}

// GetActiveSelection returns a copy of the active selection or nil
func (rm *RegionManager) GetActiveSelection() *Selection {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	sel, ok := rm.selections[rm.active]
	if !ok {
		return nil
	}
	cp := *sel
	return &cp
}

// ActiveBounds returns the active rectangle and whether one exists
func (rm *RegionManager) ActiveBounds() (image.Rectangle, bool) {
	sel := rm.GetActiveSelection()
	if sel == nil {
		return image.Rectangle{}, false
	}
	return sel.Bounds, true
}

// SetActiveSelection sets the active selection
func (rm *RegionManager) SetActiveSelection(id string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	selection, exists := rm.selections[id]
	if !exists {
		return false
	}
	for _, sel := range rm.selections {
		sel.Active = false
	}
	selection.Active = true
	rm.active = id
	return true
}

// RemoveSelection removes a selection
func (rm *RegionManager) RemoveSelection(id string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.selections[id]; !exists {
		return false
	}
	delete(rm.selections, id)
	if rm.active == id {
		rm.active = ""
	}
	return true
}

// ClearAll removes all selections
func (rm *RegionManager) ClearAll() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.selections = make(map[string]*Selection)
	rm.active = ""
}

// HasActiveSelection returns true if there's an active selection
func (rm *RegionManager) HasActiveSelection() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.active != ""
}

// ValidateROI checks that rect is non-empty and fully inside bounds
func ValidateROI(rect, bounds image.Rectangle) error {
	if rect.Empty() {
		return fmt.Errorf("empty rectangle %v: %w", rect, ErrInvalidROI)
	}
	if !rect.In(bounds) {
		return fmt.Errorf("rectangle %v outside image %v: %w", rect, bounds, ErrInvalidROI)
	}
	return nil
}

// Bounds returns the full image rectangle
func (b *ImageBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// Extract copies the samples inside rect into a new buffer
func (b *ImageBuffer) Extract(rect image.Rectangle) (*ImageBuffer, error) {
	if err := ValidateROI(rect, b.Bounds()); err != nil {
		return nil, err
	}
	out, err := NewImageBuffer(rect.Dx(), rect.Dy())
	if err != nil {
		return nil, err
	}
	for c := range b.Planes {
		src, dst := b.Planes[c], out.Planes[c]
		for y := 0; y < out.Height; y++ {
			from := (rect.Min.Y+y)*b.Width + rect.Min.X
			copy(dst[y*out.Width:(y+1)*out.Width], src[from:from+out.Width])
		}
	}
	return out, nil
}

// Paste writes sub into the buffer with its top-left corner at at
func (b *ImageBuffer) Paste(sub *ImageBuffer, at image.Point) error {
	rect := image.Rectangle{Min: at, Max: at.Add(image.Pt(sub.Width, sub.Height))}
	if err := ValidateROI(rect, b.Bounds()); err != nil {
		return err
	}
	for c := range b.Planes {
		src, dst := sub.Planes[c], b.Planes[c]
		for y := 0; y < sub.Height; y++ {
			to := (at.Y+y)*b.Width + at.X
			copy(dst[to:to+sub.Width], src[y*sub.Width:(y+1)*sub.Width])
		}
	}
	return nil
}
