// Command lsw restores planetary, lunar and solar captures from the command line
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"astro-restoration/internal/config"
	"astro-restoration/internal/cvfilters"
	"astro-restoration/internal/filters"
	lswio "astro-restoration/internal/io"
	"astro-restoration/internal/metrics"
	"astro-restoration/internal/pipeline"
	"astro-restoration/internal/workerpool"
)

const (
	AppName    = "lsw"
	AppVersion = "1.0.0"
)

// app carries what every subcommand needs once the global flags are parsed
type app struct {
	debug        bool
	settingsPath string

	settings *config.Settings
	logger   *logrus.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Restore and enhance astronomical still captures",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug mode with verbose logging")
	root.PersistentFlags().StringVar(&a.settingsPath, "settings", "", "TOML settings file")

	root.AddCommand(
		newProcessCommand(a),
		newBatchCommand(a),
		newPSFCommand(a),
		newProfileCommand(a),
		newMetricsCommand(a),
	)
	return root
}

func (a *app) init() error {
	settings, err := config.LoadSettings(a.settingsPath)
	if err != nil {
		return err
	}
	a.settings = settings
	a.logger = initLogger(a.debug, settings.LogLevel)
	a.logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": a.debug,
		"workers":    settings.Workers,
	}).Debug("Starting lsw")
	return nil
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool, level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
		return logger
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger
}

// engine bundles a pipeline with the pool and debugger it was built with
type engine struct {
	pool     *workerpool.Pool
	pipeline *pipeline.Pipeline
	debugger *pipeline.Debugger
}

// newEngine builds the pipeline. In debug mode stageMetrics scores every
// stage against its input.
func (a *app) newEngine(stageMetrics bool) (*engine, error) {
	pool := workerpool.New(a.settings.Workers)
	var debugger *pipeline.Debugger
	if a.debug {
		debugger = pipeline.NewDebugger(a.logger, 0)
		if stageMetrics {
			debugger.WithStageMetrics(metrics.NewEvaluator())
		}
	}
	p, err := pipeline.New(pipeline.Options{
		Settings:      a.settings,
		Pool:          pool,
		Logger:        a.logger,
		Debugger:      debugger,
		EncodePreview: lswio.EncodePreview,
		Filters: map[pipeline.Stage]filters.Filter{
			pipeline.StageEqualizeLocally: cvfilters.NewEqualizeLocallyFilter(a.logger),
		},
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return &engine{pool: pool, pipeline: p, debugger: debugger}, nil
}

func (e *engine) Close() {
	if e.debugger != nil {
		e.debugger.LogStatus()
	}
	e.pipeline.Close()
	e.pool.Close()
}
