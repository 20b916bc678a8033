// Package pipeline runs the restoration filters in their fixed order over a
// caller owned buffer. Results of stages that changed the buffer are cached so
// a request for a late stage restarts from the nearest valid snapshot instead
// of recomputing every earlier stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	"astro-restoration/internal/filters"
	"astro-restoration/internal/psf"
	"astro-restoration/internal/workerpool"
)

var (
	// ErrBusy is returned when Apply is called while another Apply runs
	ErrBusy           = errors.New("pipeline busy")
	// ErrInvalidRequest is returned for a request the pipeline cannot run
	ErrInvalidRequest = errors.New("invalid pipeline request")
)

// ProgressFunc receives a percentage in [0, 100]
type ProgressFunc func(percent int)

// PreviewEncoder renders a buffer into displayable bytes
type PreviewEncoder func(buf *core.ImageBuffer) ([]byte, error)

// PSFHolder is implemented by the deconvolution stage
type PSFHolder interface {
	SetPSF(buf *core.ImageBuffer)
	PSF() *core.ImageBuffer
}

// Request is one Apply call. An empty ROI means the whole buffer, an empty
// Stages list means every stage.
type Request struct {
	Buffer   *core.ImageBuffer
	Profile  *config.Profile
	ROI      image.Rectangle
	Stages   []Stage
	IsMono   bool
	Progress ProgressFunc
}

// Artifacts are the side results of Apply
type Artifacts struct {
	PSF        *core.ImageBuffer // set when StagePSF was requested
	PSFPreview []byte            // encoded PSF, needs Options.EncodePreview
	Ran        []Stage
	CacheHit   bool
	Restored   Stage // valid when CacheHit
}

// Options configures New. Zero values fall back to defaults.
type Options struct {
	Settings      *config.Settings
	Pool          *workerpool.Pool
	Logger        logrus.FieldLogger
	Debugger      *Debugger
	EncodePreview PreviewEncoder
	// Filters replaces or adds stage implementations. A stage with no
	// implementation is skipped.
	Filters map[Stage]filters.Filter
}

type entry struct {
	stage  Stage
	filter filters.Filter
}

// Pipeline is single-writer: concurrent Apply calls fail with ErrBusy
type Pipeline struct {
	mu       sync.Mutex
	logger   logrus.FieldLogger
	settings *config.Settings
	stages   []entry
	cache    *StageCache
	psf      PSFHolder
	debugger *Debugger
	encode   PreviewEncoder
}

// DefaultFilters returns the built-in stage implementations.
// EQUALIZE_LOCALLY is provided by the OpenCV-backed stages and is absent here.
func DefaultFilters(pool *workerpool.Pool, logger logrus.FieldLogger) map[Stage]filters.Filter {
	return map[Stage]filters.Filter{
		StageClippingSuppression: filters.NewClippingSuppressionFilter(),
		StageWienerDeconv:        filters.NewWienerFilter(pool, logger),
		StageSharpen:             filters.NewSharpenFilter(logger),
		StageRotate:              filters.NewRotateFilter(),
		StageSigmaDenoise1:       filters.NewSigmaDenoise1Filter(logger),
		StageIansNR:              filters.NewIansNoiseReductionFilter(logger),
		StageBilateralDenoise:    filters.NewBilateralFilter(logger),
		StageROFDenoise:          filters.NewROFFilter(logger),
		StageSigmaDenoise2:       filters.NewSigmaDenoise2Filter(logger),
		StageSavitzkyGolay:       filters.NewSavitzkyGolayFilter(logger),
		StageLocalContrast:       filters.NewLocalContrastFilter(logger),
		StageGamma:               filters.NewGammaFilter(),
		StageColorNormalize:      filters.NewColorNormalizeFilter(logger),
		StageRGBBalance:          filters.NewRGBBalanceFilter(),
		StageSaturation:          filters.NewSaturationFilter(),
		StageDispersion:          filters.NewDispersionFilter(),
		StageHistogramStretch:    filters.NewHistogramStretchFilter(),
	}
}

// New builds the stage list once. It is fixed for the pipeline's lifetime.
func New(opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	settings := opts.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}
	cache, err := NewStageCache(settings.Cache.Compress)
	if err != nil {
		return nil, err
	}

	impls := DefaultFilters(opts.Pool, logger)
	for s, f := range opts.Filters {
		impls[s] = f
	}
	p := &Pipeline{
		logger:   logger,
		settings: settings,
		cache:    cache,
		debugger: opts.Debugger,
		encode:   opts.EncodePreview,
	}
	for _, s := range Order() {
		f := impls[s]
		p.stages = append(p.stages, entry{stage: s, filter: f})
		if holder, ok := f.(PSFHolder); ok && s == StageWienerDeconv {
			p.psf = holder
		}
	}
	logger.WithFields(logrus.Fields{
		"stages":         len(p.stages),
		"cache_compress": settings.Cache.Compress,
	}).Debug("PIPELINE: created")
	return p, nil
}

// Close releases the cache codecs
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Close()
}

// Reset clears the stage cache
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Clear()
	p.logger.Debug("PIPELINE: cache cleared")
}

// CachedStages lists the stages holding a snapshot, in pipeline order
func (p *Pipeline) CachedStages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Stage
	for _, e := range p.stages {
		if p.cache.Has(e.stage) {
			out = append(out, e.stage)
		}
	}
	return out
}

// SetPSF installs the PSF used by WIENER_DECONV
func (p *Pipeline) SetPSF(buf *core.ImageBuffer) error {
	if p.psf == nil {
		return fmt.Errorf("%s has no psf input: %w", StageWienerDeconv, ErrInvalidRequest)
	}
	p.psf.SetPSF(buf)
	return nil
}

// GeneratePSF renders the profile's synthetic PSF at the configured size and
// installs it. Mono sources use the green wavelength for every plane.
func (p *Pipeline) GeneratePSF(profile *config.Profile, isMono bool) (*core.ImageBuffer, error) {
	buf, err := psf.Generate(psf.Params{
		AiryDiskRadius:       profile.PSF.AiryDiskRadius,
		SeeingIndex:          profile.PSF.SeeingIndex,
		DiffractionIntensity: profile.PSF.DiffractionIntensity,
		Size:                 p.settings.PSFSize,
	})
	if err != nil {
		return nil, err
	}
	if isMono {
		copy(buf.Planes[core.Red], buf.Planes[core.Green])
		copy(buf.Planes[core.Blue], buf.Planes[core.Green])
	}
	if err := p.SetPSF(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r Request) validate() error {
	if r.Buffer == nil || r.Profile == nil {
		return fmt.Errorf("buffer and profile are required: %w", ErrInvalidRequest)
	}
	if err := r.Buffer.Validate(); err != nil {
		return err
	}
	if !r.ROI.Empty() {
		if err := core.ValidateROI(r.ROI, r.Buffer.Bounds()); err != nil {
			return err
		}
	}
	for _, s := range r.Stages {
		if (s < 0 || s >= numStages) && s != StagePSF {
			return fmt.Errorf("stage %d: %w", int(s), ErrUnknownStage)
		}
	}
	return nil
}

// Apply runs the requested stages over req.Buffer in place
func (p *Pipeline) Apply(ctx context.Context, req Request) (Artifacts, error) {
	if !p.mu.TryLock() {
		return Artifacts{}, ErrBusy
	}
	defer p.mu.Unlock()

	if err := req.validate(); err != nil {
		return Artifacts{}, err
	}
	start := time.Now()
	progress := newProgressTracker(req.Progress)
	progress.report(0)

	var art Artifacts
	requested := make(map[Stage]bool, len(req.Stages)+1)
	for _, s := range req.Stages {
		requested[s] = true
	}
	if requested[StagePSF] {
		delete(requested, StagePSF)
		buf, err := p.GeneratePSF(req.Profile, req.IsMono)
		if err != nil {
			return Artifacts{}, fmt.Errorf("%s: %w", StagePSF, err)
		}
		art.PSF = buf
		if p.encode != nil {
			if art.PSFPreview, err = p.encode(buf); err != nil {
				return Artifacts{}, fmt.Errorf("%s preview: %w", StagePSF, err)
			}
		}
		requested[StageWienerDeconv] = true
	}

	work := req.Buffer
	roiActive := !req.ROI.Empty() && req.ROI != req.Buffer.Bounds()
	if roiActive {
		var err error
		if work, err = req.Buffer.Extract(req.ROI); err != nil {
			return Artifacts{}, err
		}
	}
	if !p.cache.Matches(work.Width, work.Height) {
		p.logger.WithFields(logrus.Fields{
			"width":  work.Width,
			"height": work.Height,
		}).Info("PIPELINE: working geometry changed, clearing cache")
		p.cache.Clear()
	}

	candidate, hasCandidate := p.candidate(req.Profile, requested)
	p.debugger.startRun(req.Stages, candidate, hasCandidate, work.Width, work.Height)

	// without a snapshot to restart from, every stage runs from the head
	downstreamTouched := !hasCandidate
	n := len(p.stages)
	for i, e := range p.stages {
		target := 100 * (i + 1) / n
		switch {
		case hasCandidate && e.stage < candidate:
			p.debugger.stage(e.stage, OutcomeSkipped, 0, nil)
		case hasCandidate && e.stage == candidate:
			if err := p.cache.Restore(e.stage, work); err != nil {
				p.debugger.finishRun(false)
				return art, fmt.Errorf("%s: %w", e.stage, err)
			}
			p.logger.WithField("stage", e.stage.String()).Info("PIPELINE: applying from cache")
			art.CacheHit, art.Restored = true, e.stage
			downstreamTouched = true
			p.debugger.stage(e.stage, OutcomeRestored, 0, nil)
		case requested[e.stage] || downstreamTouched || len(requested) == 0:
			invoked, err := p.runStage(ctx, e, work, req, progress, target)
			if err != nil {
				p.debugger.finishRun(false)
				return art, err
			}
			if invoked {
				art.Ran = append(art.Ran, e.stage)
			}
			downstreamTouched = true
		default:
			p.debugger.stage(e.stage, OutcomeSkipped, 0, nil)
		}
		progress.report(target)
	}

	if roiActive {
		if err := req.Buffer.Paste(work, req.ROI.Min); err != nil {
			p.debugger.finishRun(false)
			return art, err
		}
	}
	p.debugger.finishRun(true)
	p.logger.WithFields(logrus.Fields{
		"ran":       len(art.Ran),
		"cache_hit": art.CacheHit,
		"duration":  time.Since(start),
	}).Debug("PIPELINE: done")
	return art, nil
}

// candidate finds the most downstream stage strictly before the first
// requested stage that holds a snapshot and is enabled by the profile
func (p *Pipeline) candidate(profile *config.Profile, requested map[Stage]bool) (Stage, bool) {
	if len(requested) == 0 {
		return 0, false
	}
	first := len(p.stages)
	for i, e := range p.stages {
		if requested[e.stage] {
			first = i
			break
		}
	}
	for i := first - 1; i >= 0; i-- {
		e := p.stages[i]
		if e.filter != nil && p.cache.Has(e.stage) && e.filter.IsApplied(profile) {
			return e.stage, true
		}
	}
	return 0, false
}

// runStage reports whether the filter was invoked. Disabled and missing
// stages lose their cache entry.
func (p *Pipeline) runStage(ctx context.Context, e entry, work *core.ImageBuffer, req Request, progress *progressTracker, target int) (bool, error) {
	if e.filter == nil {
		p.cache.Drop(e.stage)
		p.debugger.stage(e.stage, OutcomeMissing, 0, nil)
		return false, nil
	}
	if !e.filter.IsApplied(req.Profile) {
		p.cache.Drop(e.stage)
		p.debugger.stage(e.stage, OutcomeUnchanged, 0, nil)
		return false, nil
	}

	var before *core.ImageBuffer
	if p.debugger.measuring() {
		before = work.Clone()
	}
	start := time.Now()
	var stop func()
	if e.filter.IsSlow() {
		stop = progress.trickle(p.settings.Progress.Trickle.Duration, target)
	}
	changed, err := e.filter.Apply(ctx, work, req.Profile, req.IsMono)
	if stop != nil {
		stop()
	}
	duration := time.Since(start)
	if err != nil {
		p.debugger.stage(e.stage, OutcomeFailed, duration, err)
		return true, fmt.Errorf("%s: %w", e.stage, err)
	}

	if !changed {
		p.cache.Drop(e.stage)
		p.debugger.stage(e.stage, OutcomeUnchanged, duration, nil)
		return true, nil
	}
	if err := p.cache.Put(e.stage, work); err != nil {
		err = fmt.Errorf("%s cache: %w", e.stage, err)
		p.debugger.stage(e.stage, OutcomeFailed, duration, err)
		return true, err
	}
	p.debugger.stage(e.stage, OutcomeChanged, duration, nil)
	p.debugger.measure(e.stage, before, work)
	return true, nil
}

func sizeString(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// progressTracker only ever reports increasing values
type progressTracker struct {
	fn ProgressFunc

	mu    sync.Mutex
	shown int
}

func newProgressTracker(fn ProgressFunc) *progressTracker {
	return &progressTracker{fn: fn, shown: -1}
}

func (t *progressTracker) report(percent int) {
	if t.fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if percent <= t.shown {
		return
	}
	t.shown = percent
	t.fn(percent)
}

// trickle advances the shown value by one every interval while a slow stage
// runs, staying below limit. The returned func stops it.
func (t *progressTracker) trickle(interval time.Duration, limit int) func() {
	if t.fn == nil || interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.mu.Lock()
				next := t.shown + 1
				t.mu.Unlock()
				if next < limit {
					t.report(next)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
