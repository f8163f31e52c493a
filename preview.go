package carousel

import (
	"context"
	"image"
	"sync"
)

// Preview is the interactive, proportionally scaled rendering of a slide. The
// host reports its container width through Resize whenever it changes.
type Preview struct {
	renderer *Renderer

	mu             sync.RWMutex
	containerWidth float64
}

// NewPreview creates a preview for a container of the given width.
func (r *Renderer) NewPreview(containerWidth float64) *Preview {
	return &Preview{renderer: r, containerWidth: containerWidth}
}

// Resize records a new container width.
func (p *Preview) Resize(containerWidth float64) {
	p.mu.Lock()
	p.containerWidth = containerWidth
	p.mu.Unlock()
}

// Scale returns the current preview scale, never above 1.
func (p *Preview) Scale() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PreviewScale(p.containerWidth)
}

// Locked reports whether the loading overlay is engaged for s: the font gate
// has not cleared yet, or a family s uses is still loading.
func (p *Preview) Locked(s Slide) bool {
	return !p.renderer.FontsReady(s)
}

// Tree returns the slide's render tree. It is the same full-resolution layout
// the export surface holds; only the scale applied when painting differs.
func (p *Preview) Tree(index int, s Slide) *Tree {
	p.renderer.mu.Lock()
	defer p.renderer.mu.Unlock()
	return Layout(index, s, p.renderer.fonts)
}

// Paint paints the slide at the current scale. While Locked, the painted
// preview is covered by a full-surface loading overlay.
func (p *Preview) Paint(ctx context.Context, index int, s Slide) *image.RGBA {
	img, _ := p.Render(ctx, index, s)
	return img
}

// Render is Paint that also reports whether the loading overlay was drawn.
func (p *Preview) Render(ctx context.Context, index int, s Slide) (*image.RGBA, bool) {
	scale := p.Scale()
	if scale <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0)), false
	}
	locked := p.Locked(s)
	img := p.renderer.Paint(ctx, index, s, scale)
	if locked {
		p.renderer.painter.paintMu.Lock()
		p.renderer.painter.paintLoading(img, scale)
		p.renderer.painter.paintMu.Unlock()
	}
	return img, locked
}
