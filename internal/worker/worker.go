// Batch worker applying one profile to every image of a folder
package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	"astro-restoration/internal/filters"
	"astro-restoration/internal/pipeline"
)

// ErrNoFiles is returned when a folder holds no image to process
var ErrNoFiles = errors.New("no matching files")

// ImageStore reads and writes buffers
type ImageStore interface {
	Load(path string) (*core.ImageBuffer, bool, error)
	Save(buf *core.ImageBuffer, path string, mono bool) error
}

// Processor runs the filter stages over a buffer
type Processor interface {
	Apply(ctx context.Context, req pipeline.Request) (pipeline.Artifacts, error)
	GeneratePSF(profile *config.Profile, isMono bool) (*core.ImageBuffer, error)
	Reset()
}

// Result summarises one batch run
type Result struct {
	Processed []string
	Failed    []string
	Skipped   []string
}

// Worker walks a folder and writes one output per input, next to it
type Worker struct {
	store     ImageStore
	processor Processor
	session   *core.Session
	settings  *config.Settings
	logger    logrus.FieldLogger

	// Overwrite reprocesses inputs whose output already exists
	Overwrite bool
}

func New(store ImageStore, processor Processor, session *core.Session, settings *config.Settings, logger logrus.FieldLogger) *Worker {
	if session == nil {
		session = core.NewSession(nil)
	}
	if settings == nil {
		settings = config.DefaultSettings()
	}
	return &Worker{
		store:     store,
		processor: processor,
		session:   session,
		settings:  settings,
		logger:    logger,
	}
}

// OutputPath returns the sibling output name: <stem><postfix>.<format>
func OutputPath(input, postfix, format string) string {
	stem := strings.TrimSuffix(input, filepath.Ext(input))
	return stem + postfix + "." + strings.TrimPrefix(format, ".")
}

// Collect lists the inputs below dir in lexical order. Outputs of earlier
// runs and files with other extensions are left out.
func (w *Worker) Collect(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !w.eligible(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

func (w *Worker) eligible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.HasSuffix(stem, w.settings.Output.Postfix) {
		return false
	}
	return slices.ContainsFunc(w.settings.Output.Extensions, func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

// Run processes every eligible file of dir with the profile. A failing file
// is logged and counted, the run goes on. Cancellation is checked between
// files only.
func (w *Worker) Run(ctx context.Context, dir string, profile *config.Profile) (Result, error) {
	var res Result
	files, err := w.Collect(dir)
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, fmt.Errorf("%s: %w", dir, ErrNoFiles)
	}

	w.session.ActivateProfile(profile.Name)
	w.session.SetStatus(core.StatusWorking)
	w.session.SetTotalFiles(len(files))
	defer w.session.Reset()

	w.logger.WithFields(logrus.Fields{
		"dir":     dir,
		"files":   len(files),
		"profile": profile.Name,
	}).Info("WORKER: batch started")

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			w.logger.WithField("remaining", len(files)-len(res.Processed)-len(res.Failed)-len(res.Skipped)).
				Warn("WORKER: batch cancelled")
			return res, fmt.Errorf("%w: %w", filters.ErrCancelled, err)
		}

		out := OutputPath(path, w.settings.Output.Postfix, w.settings.Output.Format)
		if !w.Overwrite && fileExists(out) {
			res.Skipped = append(res.Skipped, path)
			w.session.FileProcessed()
			continue
		}

		if err := w.processFile(ctx, path, out, profile); err != nil {
			if errors.Is(err, filters.ErrCancelled) {
				return res, err
			}
			w.logger.WithError(err).WithField("file", path).Error("WORKER: file failed")
			res.Failed = append(res.Failed, path)
		} else {
			res.Processed = append(res.Processed, path)
		}
		done := w.session.FileProcessed()
		w.logger.WithFields(logrus.Fields{
			"file":  filepath.Base(path),
			"done":  done,
			"total": len(files),
		}).Debug("WORKER: file done")
	}

	w.logger.WithFields(logrus.Fields{
		"processed": len(res.Processed),
		"failed":    len(res.Failed),
		"skipped":   len(res.Skipped),
	}).Info("WORKER: batch finished")
	return res, nil
}

func (w *Worker) processFile(ctx context.Context, in, out string, profile *config.Profile) error {
	buf, mono, err := w.store.Load(in)
	if err != nil {
		return err
	}
	// the previous file's snapshots must never be restored into this one
	w.processor.Reset()
	w.session.SetProgress(0)
	// a custom PSF is installed once by the caller, a synthetic one follows
	// the mono flag of each file
	if profile.ApplyWienerDeconvolution && profile.PSF.Type != config.PSFCustom {
		if _, err := w.processor.GeneratePSF(profile, mono); err != nil {
			return err
		}
	}
	if _, err := w.processor.Apply(ctx, pipeline.Request{
		Buffer:   buf,
		Profile:  profile,
		IsMono:   mono,
		Progress: w.session.SetProgress,
	}); err != nil {
		return err
	}
	return w.store.Save(buf, out, mono)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
