package core

import (
	"sync"
)

// Status describes what the processing core is currently doing
type Status string

const (
	StatusIdle    Status = "Idle"
	StatusWorking Status = "Working"
)

// Session carries the per-run processing state shared between the pipeline,
// the batch worker and whatever front end drives them.
type Session struct {
	mu             sync.RWMutex
	status         Status
	activeProfile  string
	progress       int
	filesProcessed int
	totalFiles     int
	regions        *RegionManager
}

// NewSession creates an idle session with its own region manager
func NewSession(regions *RegionManager) *Session {
	if regions == nil {
		regions = NewRegionManager(0, 0)
	}
	return &Session{status: StatusIdle, regions: regions}
}

// Regions returns the ROI manager of the session
func (s *Session) Regions() *RegionManager {
	return s.regions
}

func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ActivateProfile marks a profile as the one the worker should apply
func (s *Session) ActivateProfile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeProfile = name
}

// ActiveProfile returns the active profile name, empty when none
func (s *Session) ActiveProfile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeProfile
}

// SetProgress stores a percentage, clamped to [0, 100]
func (s *Session) SetProgress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = max(0, min(100, percent))
}

func (s *Session) Progress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// SetTotalFiles starts a new batch count
func (s *Session) SetTotalFiles(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFiles = total
	s.filesProcessed = 0
}

// FileProcessed increments the processed counter and returns it
func (s *Session) FileProcessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filesProcessed++
	return s.filesProcessed
}

// FileCounts returns processed and total file counts
func (s *Session) FileCounts() (processed, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filesProcessed, s.totalFiles
}

// Reset returns the session to idle. Counters, the active profile and every
// ROI selection are cleared.
func (s *Session) Reset() {
	s.regions.ClearAll()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusIdle
	s.activeProfile = ""
	s.progress = 0
	s.filesProcessed = 0
	s.totalFiles = 0
}
