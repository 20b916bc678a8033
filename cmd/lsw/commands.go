package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
	lswio "astro-restoration/internal/io"
	"astro-restoration/internal/metrics"
	"astro-restoration/internal/pipeline"
	"astro-restoration/internal/psf"
	"astro-restoration/internal/worker"
)

var errInvalidROIFlag = errors.New("roi must be x,y,w,h")

// parseROI reads "x,y,w,h". An empty value is the whole image.
func parseROI(value string) (image.Rectangle, error) {
	if strings.TrimSpace(value) == "" {
		return image.Rectangle{}, nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("%q: %w", value, errInvalidROIFlag)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("%q: %w", value, errInvalidROIFlag)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("%q: %w", value, errInvalidROIFlag)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

func (a *app) loadProfile(path string) (*config.Profile, error) {
	if path == "" {
		a.logger.Info("No profile given, using the default profile")
		return config.DefaultProfile(), nil
	}
	return config.LoadProfile(path)
}

// installPSF loads the custom PSF when the profile asks for one, otherwise
// renders the synthetic one. Nothing happens without Wiener deconvolution.
func (a *app) installPSF(e *engine, loader *lswio.ImageLoader, profile *config.Profile, customPath string, mono bool) error {
	if !profile.ApplyWienerDeconvolution {
		return nil
	}
	if customPath == "" && profile.PSF.Type == config.PSFCustom {
		customPath = profile.PSF.CustomPath
	}
	if customPath == "" {
		_, err := e.pipeline.GeneratePSF(profile, mono)
		return err
	}
	raw, _, err := loader.Load(customPath)
	if err != nil {
		return fmt.Errorf("load custom psf: %w", err)
	}
	buf, err := psf.Normalize(raw, a.settings.PSFSize, a.logger)
	if err != nil {
		return err
	}
	profile.PSF.Type = config.PSFCustom
	return e.pipeline.SetPSF(buf)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

const roiCenter = "center"

var errOutputWithProfiles = errors.New("--output needs a single --profile")

// selectRegions turns --roi values into selections and returns their ids in
// flag order. "center" selects the largest allowed centred rectangle and a
// rectangle given twice is only kept once.
func selectRegions(rm *core.RegionManager, values []string, bounds image.Rectangle, logger logrus.FieldLogger) ([]string, error) {
	var ids []string
	seen := make(map[image.Rectangle]string)
	for _, v := range values {
		var (
			id  string
			err error
		)
		if strings.EqualFold(strings.TrimSpace(v), roiCenter) {
			id, err = rm.CreateCenteredSelection(bounds)
		} else {
			rect, perr := parseROI(v)
			if perr != nil {
				return nil, perr
			}
			if rect.Empty() {
				continue
			}
			id, err = rm.CreateSelection(rect, bounds)
		}
		if err != nil {
			return nil, err
		}
		r, _ := rm.ActiveBounds()
		if prev, ok := seen[r]; ok {
			rm.RemoveSelection(id)
			rm.SetActiveSelection(prev)
			logger.WithField("roi", r.String()).Warn("Duplicate region ignored")
			continue
		}
		seen[r] = id
		ids = append(ids, id)
	}
	return ids, nil
}

// applyRegions runs the pipeline once per selection in order, or once over
// the whole image when nothing is selected
func applyRegions(ctx context.Context, p *pipeline.Pipeline, rm *core.RegionManager, ids []string, req pipeline.Request) (pipeline.Artifacts, error) {
	if !rm.HasActiveSelection() {
		return p.Apply(ctx, req)
	}
	var art pipeline.Artifacts
	for _, id := range ids {
		if !rm.SetActiveSelection(id) {
			continue
		}
		req.ROI, _ = rm.ActiveBounds()
		r, err := p.Apply(ctx, req)
		if err != nil {
			return art, fmt.Errorf("roi %v: %w", req.ROI, err)
		}
		art.Ran = append(art.Ran, r.Ran...)
		art.CacheHit = art.CacheHit || r.CacheHit
		if r.PSFPreview != nil {
			art.PSF, art.PSFPreview = r.PSF, r.PSFPreview
		}
	}
	return art, nil
}

// variantPostfix names the output of one profile when several are applied
func variantPostfix(postfix string, profile *config.Profile, index, count int) string {
	if count <= 1 {
		return postfix
	}
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = strconv.Itoa(index + 1)
	}
	return postfix + "_" + name
}

func (a *app) logReport(report metrics.QualityReport, fields logrus.Fields) {
	fields["quality_score"] = report.OverallScore
	fields["quality_level"] = report.Analysis.QualityLevel
	for name, value := range report.Metrics {
		fields[name] = value
	}
	for _, issue := range report.Analysis.Issues {
		a.logger.Warn(issue)
	}
	a.logger.WithFields(fields).Info("Quality report")
}

type processOptions struct {
	output      string
	stages      []pipeline.Stage
	psfPath     string
	previewPath string
	metrics     bool
	mono        bool
	regions     []string
	variants    int
}

// processVariant applies one profile to a fresh copy of the original
func (a *app) processVariant(ctx context.Context, e *engine, loader *lswio.ImageLoader, session *core.Session, data *core.ImageData, profilePath string, index int, opts processOptions) error {
	if !data.HasImage() {
		return errors.New("no image loaded")
	}
	profile, err := a.loadProfile(profilePath)
	if err != nil {
		return err
	}
	session.ActivateProfile(profile.Name)
	if err := a.installPSF(e, loader, profile, opts.psfPath, opts.mono); err != nil {
		return err
	}
	if err := data.ResetToOriginal(); err != nil {
		return err
	}
	work := data.GetProcessed()

	session.SetStatus(core.StatusWorking)
	art, err := applyRegions(ctx, e.pipeline, session.Regions(), opts.regions, pipeline.Request{
		Buffer:  work,
		Profile: profile,
		Stages:  opts.stages,
		IsMono:  opts.mono,
		Progress: func(percent int) {
			session.SetProgress(percent)
			a.logger.WithField("progress", percent).Debug("Processing")
		},
	})
	session.SetStatus(core.StatusIdle)
	if err != nil {
		return err
	}
	if err := data.SetProcessed(work); err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		postfix := variantPostfix(a.settings.Output.Postfix, profile, index, opts.variants)
		output = worker.OutputPath(data.GetFilepath(), postfix, a.settings.Output.Format)
	}
	if err := loader.Save(work, output, opts.mono); err != nil {
		return err
	}
	if opts.previewPath != "" && art.PSFPreview != nil {
		if err := os.WriteFile(opts.previewPath, art.PSFPreview, 0o644); err != nil {
			return fmt.Errorf("write psf preview: %w", err)
		}
	}

	fields := logrus.Fields{
		"output":    output,
		"profile":   profile.Name,
		"stages":    len(art.Ran),
		"cache_hit": art.CacheHit,
	}
	if opts.metrics {
		a.logReport(metrics.NewEvaluator().GenerateReport(data.GetOriginal(), data.GetProcessed()), fields)
		return nil
	}
	a.logger.WithFields(fields).Info("Image processed")
	return nil
}

func newProcessCommand(a *app) *cobra.Command {
	var (
		output, stagesFlag    string
		psfPath, previewPath  string
		profilePaths, roiList []string
		withMetrics           bool
	)
	cmd := &cobra.Command{
		Use:   "process <image>",
		Short: "Apply one or more profiles to one image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			if output != "" && len(profilePaths) > 1 {
				return errOutputWithProfiles
			}
			stages, err := pipeline.ParseStages(stagesFlag)
			if err != nil {
				return err
			}

			loader := lswio.NewImageLoader(a.logger)
			buf, mono, err := loader.Load(in)
			if err != nil {
				return err
			}
			data := core.NewImageData()
			if err := data.SetOriginal(buf, in); err != nil {
				return err
			}
			defer data.Clear()

			session := core.NewSession(core.NewRegionManager(a.settings.ROI.MaxWidth, a.settings.ROI.MaxHeight))
			defer session.Reset()
			ids, err := selectRegions(session.Regions(), roiList, buf.Bounds(), a.logger)
			if err != nil {
				return err
			}

			e, err := a.newEngine(withMetrics)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if len(profilePaths) == 0 {
				profilePaths = []string{""}
			}
			opts := processOptions{
				output:      output,
				stages:      stages,
				psfPath:     psfPath,
				previewPath: previewPath,
				metrics:     withMetrics,
				mono:        mono,
				regions:     ids,
				variants:    len(profilePaths),
			}
			for i, path := range profilePaths {
				if err := a.processVariant(ctx, e, loader, session, data, path, i, opts); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <input>"+config.DefaultOutputPostfix+".<format>)")
	cmd.Flags().StringArrayVar(&profilePaths, "profile", nil, "YAML profile, repeat to write one output per profile")
	cmd.Flags().StringArrayVar(&roiList, "roi", nil, "Region of interest x,y,w,h or \"center\", repeat for several regions")
	cmd.Flags().StringVar(&stagesFlag, "stages", "", "Comma separated stages to apply (default all)")
	cmd.Flags().StringVar(&psfPath, "psf", "", "Custom PSF image")
	cmd.Flags().StringVar(&previewPath, "psf-preview", "", "Write the generated PSF preview PNG when the PSF stage runs")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false,
		"Log quality metrics against the input ("+strings.Join(metrics.NewEvaluator().Names(), ", ")+"), per stage with --debug")
	return cmd
}

func newBatchCommand(a *app) *cobra.Command {
	var (
		profilePath, psfPath string
		overwrite            bool
	)
	cmd := &cobra.Command{
		Use:   "batch <folder>",
		Short: "Apply a profile to every image of a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := a.loadProfile(profilePath)
			if err != nil {
				return err
			}
			e, err := a.newEngine(false)
			if err != nil {
				return err
			}
			defer e.Close()

			loader := lswio.NewImageLoader(a.logger)
			if psfPath != "" || profile.PSF.Type == config.PSFCustom {
				// synthetic PSFs are rendered per file by the worker
				if err := a.installPSF(e, loader, profile, psfPath, false); err != nil {
					return err
				}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			w := worker.New(loader, e.pipeline, nil, a.settings, a.logger)
			w.Overwrite = overwrite
			res, err := w.Run(ctx, args[0], profile)
			if err != nil {
				return err
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d of %d files failed", len(res.Failed), len(res.Failed)+len(res.Processed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "YAML profile")
	cmd.Flags().StringVar(&psfPath, "psf", "", "Custom PSF image")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Reprocess files whose output exists")
	return cmd
}

func newPSFCommand(a *app) *cobra.Command {
	params := psf.Params{}
	var (
		output string
		mono   bool
	)
	cmd := &cobra.Command{
		Use:   "psf",
		Short: "Render a synthetic Airy disk PSF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if params.Size == 0 {
				params.Size = a.settings.PSFSize
			}
			buf, err := psf.Generate(params)
			if err != nil {
				return err
			}
			if mono {
				copy(buf.Planes[core.Red], buf.Planes[core.Green])
				copy(buf.Planes[core.Blue], buf.Planes[core.Green])
			}
			if err := lswio.NewImageLoader(a.logger).Save(buf, output, mono); err != nil {
				return err
			}
			a.logger.WithFields(logrus.Fields{
				"output": output,
				"size":   params.Size,
			}).Info("PSF written")
			return nil
		},
	}
	defaults := config.DefaultProfile().PSF
	cmd.Flags().Float64Var(&params.AiryDiskRadius, "radius", defaults.AiryDiskRadius, "Airy disk radius")
	cmd.Flags().Float64Var(&params.SeeingIndex, "seeing", defaults.SeeingIndex, "Seeing index, 0 is perfect")
	cmd.Flags().Float64Var(&params.DiffractionIntensity, "diffraction", defaults.DiffractionIntensity, "Diffraction ring intensity")
	cmd.Flags().IntVar(&params.Size, "size", 0, "PSF size in pixels (default from settings)")
	cmd.Flags().BoolVar(&mono, "mono", false, "Use the green wavelength for every plane")
	cmd.Flags().StringVarP(&output, "output", "o", "psf.png", "Output file")
	return cmd
}

func newProfileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage processing profiles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init <file>",
		Short: "Write the default profile as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := config.SaveProfile(args[0], config.DefaultProfile()); err != nil {
				return err
			}
			a.logger.WithField("file", args[0]).Info("Profile written")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a YAML profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.LoadProfile(args[0])
			if err != nil {
				return err
			}
			a.logger.WithField("name", p.Name).Info("Profile is valid")
			return nil
		},
	})
	return cmd
}

func newMetricsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [original processed]",
		Short: "List the quality metrics, or compare a processed image with its original",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("want no argument or two images, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := metrics.NewEvaluator()
			if len(args) == 0 {
				info := ev.Info()
				out := cmd.OutOrStdout()
				for _, name := range ev.Names() {
					mi := info[name]
					better := "lower"
					if mi.HigherBetter {
						better = "higher"
					}
					fmt.Fprintf(out, "%-15s %-22s %g..%g, %s is better: %s\n",
						name, mi.Name, mi.Range[0], mi.Range[1], better, mi.Description)
				}
				return nil
			}

			loader := lswio.NewImageLoader(a.logger)
			original, _, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			processed, _, err := loader.Load(args[1])
			if err != nil {
				return err
			}
			if !original.SameSize(processed) {
				return fmt.Errorf("%s and %s: %w", args[0], args[1], metrics.ErrIncomparable)
			}
			a.logReport(ev.GenerateReport(original, processed), logrus.Fields{
				"original":  args[0],
				"processed": args[1],
			})
			return nil
		},
	}
}
