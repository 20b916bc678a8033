package pipeline

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"astro-restoration/internal/core"
)

// snapshot holds either the raw planes or their zstd frame
type snapshot struct {
	raw    *core.ImageBuffer
	packed []byte
}

// StageCache maps a stage to the buffer it produced the last time it changed
// something. All entries share one geometry. Not safe for concurrent use;
// the pipeline serialises access.
type StageCache struct {
	entries       map[Stage]snapshot
	width, height int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewStageCache creates an empty cache. With compress set, snapshots are
// kept as zstd frames of the little-endian planes.
func NewStageCache(compress bool) (*StageCache, error) {
	c := &StageCache{entries: make(map[Stage]snapshot)}
	if !compress {
		return c, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("stage cache encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("stage cache decoder: %w", err)
	}
	c.enc, c.dec = enc, dec
	return c, nil
}

// Close releases the zstd codecs
func (c *StageCache) Close() {
	if c.enc != nil {
		c.enc.Close()
	}
	if c.dec != nil {
		c.dec.Close()
	}
}

func (c *StageCache) Len() int { return len(c.entries) }

func (c *StageCache) Has(s Stage) bool {
	_, ok := c.entries[s]
	return ok
}

// Matches reports whether the cache is empty or holds width×height entries
func (c *StageCache) Matches(width, height int) bool {
	return len(c.entries) == 0 || (c.width == width && c.height == height)
}

// Put stores a copy of buf for the stage, replacing any older entry
func (c *StageCache) Put(s Stage, buf *core.ImageBuffer) error {
	if !c.Matches(buf.Width, buf.Height) {
		return fmt.Errorf("cache holds %dx%d, got %dx%d: %w", c.width, c.height, buf.Width, buf.Height, core.ErrSizeMismatch)
	}
	c.width, c.height = buf.Width, buf.Height
	if c.enc == nil {
		c.entries[s] = snapshot{raw: buf.Clone()}
		return nil
	}
	c.entries[s] = snapshot{packed: c.enc.EncodeAll(packPlanes(buf), nil)}
	return nil
}

// Restore overwrites dst with the stage's snapshot
func (c *StageCache) Restore(s Stage, dst *core.ImageBuffer) error {
	snap, ok := c.entries[s]
	if !ok {
		return fmt.Errorf("no cache entry for %s", s)
	}
	if snap.raw != nil {
		return dst.CopyFrom(snap.raw)
	}
	if dst.Width != c.width || dst.Height != c.height {
		return fmt.Errorf("restore %s into %dx%d: %w", s, dst.Width, dst.Height, core.ErrSizeMismatch)
	}
	data, err := c.dec.DecodeAll(snap.packed, make([]byte, 0, 2*core.NumChannels*dst.Len()))
	if err != nil {
		return fmt.Errorf("decode %s snapshot: %w", s, err)
	}
	return unpackPlanes(data, dst)
}

// Drop removes the stage's entry if any
func (c *StageCache) Drop(s Stage) {
	delete(c.entries, s)
}

// Clear removes every entry and forgets the geometry
func (c *StageCache) Clear() {
	clear(c.entries)
	c.width, c.height = 0, 0
}

func packPlanes(buf *core.ImageBuffer) []byte {
	n := buf.Len()
	out := make([]byte, 2*core.NumChannels*n)
	for c, plane := range buf.Planes {
		base := 2 * c * n
		for i, v := range plane {
			binary.LittleEndian.PutUint16(out[base+2*i:], v)
		}
	}
	return out
}

func unpackPlanes(data []byte, dst *core.ImageBuffer) error {
	n := dst.Len()
	if len(data) != 2*core.NumChannels*n {
		return fmt.Errorf("snapshot holds %d bytes, want %d: %w", len(data), 2*core.NumChannels*n, core.ErrSizeMismatch)
	}
	for c, plane := range dst.Planes {
		base := 2 * c * n
		for i := range plane {
			plane[i] = binary.LittleEndian.Uint16(data[base+2*i:])
		}
	}
	return nil
}
