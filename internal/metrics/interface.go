// Quality metrics comparing an input buffer with its restored version
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"astro-restoration/internal/core"
)

var ErrIncomparable = errors.New("buffers cannot be compared")

// Metric compares two buffers of the same size
type Metric interface {
	// Calculate computes the metric value
	Calculate(original, processed *core.ImageBuffer) (float64, error)

	// Name returns the display name
	Name() string

	// Description returns a one line explanation
	Description() string

	// Range returns the value range (min, max) used for normalisation
	Range() (float64, float64)

	// IsHigherBetter returns true if higher values indicate better quality
	IsHigherBetter() bool
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
}

// NewEvaluator creates an evaluator with every built-in metric registered
func NewEvaluator() *Evaluator {
	e := &Evaluator{
		metrics: make(map[string]Metric),
	}
	e.RegisterDefaultMetrics()
	return e
}

// RegisterDefaultMetrics registers all default metrics
func (e *Evaluator) RegisterDefaultMetrics() {
	e.Register("psnr", NewPSNR())
	e.Register("ssim", NewSSIM())
	e.Register("mse", NewMSE())
	e.Register("mae", NewMAE())
	e.Register("contrast_ratio", NewContrastRatio())
	e.Register("sharpness", NewSharpness())
}

// Register adds or replaces a metric
func (e *Evaluator) Register(name string, metric Metric) {
	e.metrics[name] = metric
}

// Names returns the registered metric keys, sorted
func (e *Evaluator) Names() []string {
	names := make([]string, 0, len(e.metrics))
	for name := range e.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calculate calculates a specific metric
func (e *Evaluator) Calculate(name string, original, processed *core.ImageBuffer) (float64, error) {
	metric, exists := e.metrics[name]
	if !exists {
		return 0, fmt.Errorf("metric not found: %s", name)
	}
	return metric.Calculate(original, processed)
}

// CalculateAll calculates all registered metrics, skipping those that fail
func (e *Evaluator) CalculateAll(original, processed *core.ImageBuffer) map[string]float64 {
	results := make(map[string]float64)
	for name, metric := range e.metrics {
		if value, err := metric.Calculate(original, processed); err == nil {
			results[name] = value
		}
	}
	return results
}

// EvaluateStep calculates the metrics relevant for one pipeline stage
func (e *Evaluator) EvaluateStep(before, after *core.ImageBuffer, stage string) map[string]float64 {
	out := make(map[string]float64)
	if psnr, err := e.Calculate("psnr", before, after); err == nil {
		out["psnr"] = psnr
	}

	switch stage {
	case "SHARPEN", "WIENER_DECONV", "LOCAL_CONTRAST":
		if sharpness, err := e.Calculate("sharpness", before, after); err == nil {
			out["sharpness"] = sharpness
		}
	case "SIGMA_DENOISE_1", "SIGMA_DENOISE_2", "IANS_NR", "BILATERAL_DENOISE", "ROF_DENOISE", "SAVITZKY_GOLAY":
		if ssim, err := e.Calculate("ssim", before, after); err == nil {
			out["ssim"] = ssim
		}
		if contrast, err := e.Calculate("contrast_ratio", before, after); err == nil {
			out["contrast_preservation"] = contrast
		}
	}
	return out
}

// MetricInfo provides metadata about a metric
type MetricInfo struct {
	Name         string
	Description  string
	Range        [2]float64 // [min, max]
	HigherBetter bool
}

// Info returns metadata for every registered metric
func (e *Evaluator) Info() map[string]MetricInfo {
	info := make(map[string]MetricInfo)
	for name, metric := range e.metrics {
		lo, hi := metric.Range()
		info[name] = MetricInfo{
			Name:         metric.Name(),
			Description:  metric.Description(),
			Range:        [2]float64{lo, hi},
			HigherBetter: metric.IsHigherBetter(),
		}
	}
	return info
}

// QualityReport contains a full comparison
type QualityReport struct {
	OverallScore float64            `json:"overall_score"`
	Metrics      map[string]float64 `json:"metrics"`
	Analysis     QualityAnalysis    `json:"analysis"`
	Timestamp    string             `json:"timestamp"`
}

// QualityAnalysis interprets the metrics
type QualityAnalysis struct {
	QualityLevel string   `json:"quality_level"` // "excellent", "good", "fair", "poor"
	Issues       []string `json:"issues"`
}

// GenerateReport calculates everything and scores it
func (e *Evaluator) GenerateReport(original, processed *core.ImageBuffer) QualityReport {
	values := e.CalculateAll(original, processed)
	return QualityReport{
		OverallScore: e.overallScore(values),
		Metrics:      values,
		Analysis:     e.analyze(values),
		Timestamp:    time.Now().Format("2006-01-02 15:04:05"),
	}
}

// overallScore is a weighted average of the normalised metrics, in percent
func (e *Evaluator) overallScore(values map[string]float64) float64 {
	weights := map[string]float64{
		"psnr":           0.3,
		"ssim":           0.3,
		"contrast_ratio": 0.2,
		"sharpness":      0.2,
	}

	totalWeight := 0.0
	weightedSum := 0.0
	for name, weight := range weights {
		if value, exists := values[name]; exists {
			weightedSum += e.normalize(name, value) * weight
			totalWeight += weight
		}
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight * 100
}

// normalize maps a value into 0..1, inverted when lower is better
func (e *Evaluator) normalize(name string, value float64) float64 {
	metric, exists := e.metrics[name]
	if !exists {
		return 0
	}
	lo, hi := metric.Range()
	if hi == lo {
		return 1
	}
	value = max(lo, min(hi, value))
	normalized := (value - lo) / (hi - lo)
	if !metric.IsHigherBetter() {
		normalized = 1 - normalized
	}
	return normalized
}

func (e *Evaluator) analyze(values map[string]float64) QualityAnalysis {
	analysis := QualityAnalysis{Issues: make([]string, 0)}

	score := e.overallScore(values)
	switch {
	case score >= 90:
		analysis.QualityLevel = "excellent"
	case score >= 75:
		analysis.QualityLevel = "good"
	case score >= 60:
		analysis.QualityLevel = "fair"
	default:
		analysis.QualityLevel = "poor"
	}

	if psnr, exists := values["psnr"]; exists && psnr < 30 {
		analysis.Issues = append(analysis.Issues, "low PSNR, the restoration changed the image heavily")
	}
	if ssim, exists := values["ssim"]; exists && ssim < 0.7 {
		analysis.Issues = append(analysis.Issues, "low SSIM, structure was not preserved")
	}
	if sharpness, exists := values["sharpness"]; exists && sharpness > 4 {
		analysis.Issues = append(analysis.Issues, "sharpness grew more than fourfold, expect ringing or amplified noise")
	}
	return analysis
}
