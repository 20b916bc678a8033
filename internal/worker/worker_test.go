package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	"astro-restoration/internal/filters"
	"astro-restoration/internal/pipeline"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// memStore serves small buffers for any path and touches the output files
type memStore struct {
	mu     sync.Mutex
	failOn string
	saved  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]bool)}
}

func (s *memStore) Load(path string) (*core.ImageBuffer, bool, error) {
	if filepath.Base(path) == s.failOn {
		return nil, false, errors.New("corrupt file")
	}
	buf, err := core.NewImageBuffer(8, 8)
	if err != nil {
		return nil, false, err
	}
	for c := range buf.Planes {
		for i := range buf.Planes[c] {
			buf.Planes[c][i] = uint16(1000 * (i % 7))
		}
	}
	return buf, true, nil
}

func (s *memStore) Save(buf *core.ImageBuffer, path string, mono bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[path] = mono
	return os.WriteFile(path, nil, 0o644)
}

type recordingProcessor struct {
	session  *core.Session
	resets   int
	psfs     int
	requests []pipeline.Request
	statuses []core.Status
	profiles []string
}

func (p *recordingProcessor) Apply(ctx context.Context, req pipeline.Request) (pipeline.Artifacts, error) {
	p.requests = append(p.requests, req)
	p.statuses = append(p.statuses, p.session.Status())
	p.profiles = append(p.profiles, p.session.ActiveProfile())
	req.Progress(100)
	return pipeline.Artifacts{}, nil
}

func (p *recordingProcessor) GeneratePSF(profile *config.Profile, isMono bool) (*core.ImageBuffer, error) {
	p.psfs++
	return nil, nil
}

func (p *recordingProcessor) Reset() { p.resets++ }

func touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "jup_1_LSW.tif"), OutputPath(filepath.Join("a", "b", "jup_1.tif"), "_LSW", "tif"))
	assert.Equal(t, "moon_LSW.png", OutputPath("moon.tiff", "_LSW", ".png"))
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	touch(t,
		filepath.Join(dir, "x.tif"),
		filepath.Join(dir, "y.PNG"),
		filepath.Join(dir, "z.jpg"),
		filepath.Join(dir, "x_LSW.tif"),
		filepath.Join(dir, "sub", "w.tiff"),
	)
	w := New(newMemStore(), &recordingProcessor{}, nil, nil, quietLogger())

	files, err := w.Collect(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "sub", "w.tiff"),
		filepath.Join(dir, "x.tif"),
		filepath.Join(dir, "y.PNG"),
	}, files)
}

func TestRunProcessesAndSkipsOutputs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.tif"), filepath.Join(dir, "b.tif"), filepath.Join(dir, "c.tif"))

	session := core.NewSession(nil)
	store := newMemStore()
	store.failOn = "b.tif"
	proc := &recordingProcessor{session: session}
	w := New(store, proc, session, nil, quietLogger())

	profile := config.DefaultProfile()
	profile.Name = "jup"
	profile.ApplyWienerDeconvolution = true
	res, err := w.Run(context.Background(), dir, profile)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "a.tif"), filepath.Join(dir, "c.tif")}, res.Processed)
	assert.Equal(t, []string{filepath.Join(dir, "b.tif")}, res.Failed)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 2, proc.resets)
	assert.Equal(t, 2, proc.psfs)
	for _, req := range proc.requests {
		assert.True(t, req.IsMono)
		assert.Same(t, profile, req.Profile)
		assert.Empty(t, req.Stages)
	}
	assert.Equal(t, []core.Status{core.StatusWorking, core.StatusWorking}, proc.statuses)
	assert.Equal(t, []string{"jup", "jup"}, proc.profiles)
	assert.True(t, store.saved[filepath.Join(dir, "a_LSW.tif")])

	// the session is idle again
	assert.Equal(t, core.StatusIdle, session.Status())
	assert.Empty(t, session.ActiveProfile())
	done, total := session.FileCounts()
	assert.Zero(t, done)
	assert.Zero(t, total)

	// outputs are neither inputs nor redone
	store.failOn = ""
	res, err = w.Run(context.Background(), dir, profile)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.tif")}, res.Processed)
	assert.Len(t, res.Skipped, 2)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.tif"))
	proc := &recordingProcessor{session: core.NewSession(nil)}
	w := New(newMemStore(), proc, proc.session, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := w.Run(ctx, dir, config.DefaultProfile())
	assert.ErrorIs(t, err, filters.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Processed)
	assert.Empty(t, proc.requests)
}

func TestRunEmptyFolder(t *testing.T) {
	w := New(newMemStore(), &recordingProcessor{}, nil, nil, quietLogger())
	_, err := w.Run(context.Background(), t.TempDir(), config.DefaultProfile())
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestRunWithPipeline(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "moon.png"))

	settings := config.DefaultSettings()
	settings.Output.Format = "png"
	settings.PSFSize = 8
	p, err := pipeline.New(pipeline.Options{Settings: settings, Logger: quietLogger()})
	require.NoError(t, err)
	defer p.Close()

	store := newMemStore()
	w := New(store, p, nil, settings, quietLogger())

	profile := config.DefaultProfile()
	profile.ApplyWienerDeconvolution = true
	profile.WienerIterations = 2
	res, err := w.Run(context.Background(), dir, profile)
	require.NoError(t, err)
	assert.Len(t, res.Processed, 1)
	assert.Empty(t, res.Failed)
	assert.Contains(t, store.saved, filepath.Join(dir, "moon_LSW.png"))
}
