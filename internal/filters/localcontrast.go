package filters

import (
	"context"

	"github.com/sirupsen/logrus"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

// Unsharp radii of the three local contrast scales
const (
	LocalContrastFineRadius   = 1.0
	LocalContrastMediumRadius = 4.0
	LocalContrastLargeRadius  = 16.0
)

// LocalContrastFilter is the LOCAL_CONTRAST stage: one unsharp pass per
// enabled scale with amount level/100.
type LocalContrastFilter struct {
	logger logrus.FieldLogger
}

func NewLocalContrastFilter(logger logrus.FieldLogger) *LocalContrastFilter {
	return &LocalContrastFilter{logger: logger}
}

func (f *LocalContrastFilter) IsApplied(p *config.Profile) bool {
	return p.LocalContrastFine > 0 || p.LocalContrastMedium > 0 || p.LocalContrastLarge > 0
}

func (f *LocalContrastFilter) IsSlow() bool { return false }

func localContrastPasses(p *config.Profile) []UnsharpParams {
	var passes []UnsharpParams
	for _, s := range []struct {
		level  int
		radius float64
	}{
		{p.LocalContrastFine, LocalContrastFineRadius},
		{p.LocalContrastMedium, LocalContrastMediumRadius},
		{p.LocalContrastLarge, LocalContrastLargeRadius},
	} {
		if s.level <= 0 {
			continue
		}
		passes = append(passes, UnsharpParams{
			Radius:     s.radius,
			Amount:     min(float64(s.level), 99) / 100,
			Iterations: 1,
		})
	}
	return passes
}

func (f *LocalContrastFilter) Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error) {
	passes := localContrastPasses(p)
	if len(passes) == 0 {
		return false, nil
	}
	f.logger.WithFields(logrus.Fields{
		"mode":   p.LocalContrastMode,
		"passes": len(passes),
	}).Debug("LOCAL_CONTRAST: applying")

	if isMono || p.LocalContrastMode == config.ModeRGB {
		err := forEachChannel(ctx, buf, isMono, func(ctx context.Context, c core.Channel) error {
			px := buf.Float32Plane(c)
			for _, pass := range passes {
				if err := checkCancelled(ctx); err != nil {
					return err
				}
				UnsharpMask(px, buf.Width, buf.Height, pass)
			}
			buf.SetFromFloat32(c, px)
			return nil
		})
		return err == nil, err
	}

	all := [core.NumChannels]bool{true, true, true}
	for _, pass := range passes {
		if err := checkCancelled(ctx); err != nil {
			return false, err
		}
		SharpenLuminance(buf, pass, all, true)
	}
	return true, nil
}
