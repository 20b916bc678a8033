package core

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession(t *testing.T) {
	s := NewSession(nil)
	assert.NotNil(t, s.Regions())
	assert.Equal(t, StatusIdle, s.Status())

	s.ActivateProfile("jup")
	s.SetStatus(StatusWorking)
	s.SetProgress(150)
	assert.Equal(t, 100, s.Progress())
	s.SetProgress(-3)
	assert.Zero(t, s.Progress())

	s.SetTotalFiles(3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.FileProcessed()
		}()
	}
	wg.Wait()
	done, total := s.FileCounts()
	assert.Equal(t, 3, done)
	assert.Equal(t, 3, total)
	assert.Equal(t, "jup", s.ActiveProfile())

	_, err := s.Regions().CreateSelection(image.Rect(0, 0, 10, 10), image.Rect(0, 0, 20, 20))
	assert.NoError(t, err)
	assert.True(t, s.Regions().HasActiveSelection())

	s.Reset()
	assert.False(t, s.Regions().HasActiveSelection())
	assert.Equal(t, StatusIdle, s.Status())
	assert.Empty(t, s.ActiveProfile())
	done, total = s.FileCounts()
	assert.Zero(t, done)
	assert.Zero(t, total)
}
