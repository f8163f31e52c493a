package carousel

import (
	"context"
	"image"
	"time"
)

// Rasterizer is the capture primitive: it serializes a render tree into a bitmap.
type Rasterizer interface {
	Rasterize(ctx context.Context, tree *Tree, opts RasterOptions) (image.Image, error)
}

// DefaultWarmupDelay is waited between the discarded warm-up capture and the
// real one.
const DefaultWarmupDelay = 150 * time.Millisecond

// Capturer snapshots export trees into bitmaps of an exact size.
//
// Every capture is two passes. The first one primes the rasterizer: fonts get
// their faces built and background images get decoded. Its result is thrown
// away. After WarmupDelay the second pass produces the bitmap. Dropping the
// first pass brings back first-export output with missing glyphs or images.
type Capturer struct {
	raster      Rasterizer
	WarmupDelay time.Duration
}

// NewCapturer creates a capturer over raster.
func NewCapturer(raster Rasterizer) *Capturer {
	return &Capturer{raster: raster, WarmupDelay: DefaultWarmupDelay}
}

// Capture rasterizes tree at width×height with a pinned 1:1 pixel ratio and
// auto-scaling disabled. Failures come back as *CaptureError. There is no retry
// beyond the warm-up pass.
func (c *Capturer) Capture(ctx context.Context, tree *Tree, width, height int) (image.Image, error) {
	index := -1
	if tree != nil {
		index = tree.Index
	}
	opts := RasterOptions{Width: width, Height: height, PixelRatio: 1, AutoScale: false}

	if _, err := c.raster.Rasterize(ctx, tree, opts); err != nil {
		Logger().Debug("warm-up capture failed", "slide", index+1, "err", err)
	}
	pause(c.WarmupDelay)

	img, err := c.raster.Rasterize(ctx, tree, opts)
	if err != nil {
		return nil, &CaptureError{Index: index, Err: err}
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		return nil, &CaptureError{Index: index, Err: ErrDimensionMismatch}
	}
	return img, nil
}
