// Filter contract shared by every pipeline stage
package filters

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"astro-restoration/internal/config"
	"astro-restoration/internal/core"
)

// ErrCancelled is returned when a filter observes a cancelled context.
// The buffer is left in an undefined state and must be discarded.
var ErrCancelled = errors.New("filter cancelled")

// Filter mutates a 3-plane buffer in place
type Filter interface {
	// Apply runs the filter and reports whether the buffer changed
	Apply(ctx context.Context, buf *core.ImageBuffer, p *config.Profile, isMono bool) (bool, error)
	// IsApplied reports whether the profile enables the filter
	IsApplied(p *config.Profile) bool
	// IsSlow marks filters that get a synthetic progress trickle
	IsSlow() bool
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	default:
		return nil
	}
}

// forEachChannel runs fn on the three planes in parallel. Mono buffers only
// process red and copy the result into green and blue.
func forEachChannel(ctx context.Context, buf *core.ImageBuffer, isMono bool, fn func(ctx context.Context, c core.Channel) error) error {
	if isMono {
		if err := fn(ctx, core.Red); err != nil {
			return err
		}
		replicateRed(buf)
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range core.Channels {
		c := c
		g.Go(func() error {
			return fn(gctx, c)
		})
	}
	return g.Wait()
}

func replicateRed(buf *core.ImageBuffer) {
	copy(buf.Planes[core.Green], buf.Planes[core.Red])
	copy(buf.Planes[core.Blue], buf.Planes[core.Red])
}
