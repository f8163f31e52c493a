package carousel

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// Renderer lays slides out and paints them. It owns the export surface: one
// full-resolution tree per slide, rebuilt by Mount and read by the capture
// engine through Surface.
type Renderer struct {
	mu      sync.Mutex // serializes layout and painting; faces are not goroutine-safe
	fonts   *FontCache
	painter *Painter
	images  *ImageCache
	surface Surface
	settled atomic.Bool
}

// NewRenderer creates a renderer drawing with fc. The client is used for
// best-effort resolution of remote images that were not embedded.
func NewRenderer(fc *FontCache, client *http.Client) *Renderer {
	if fc == nil {
		fc = NewFontCache()
	}
	return &Renderer{
		fonts:   fc,
		painter: NewPainter(fc, client),
		images:  NewImageCache(),
	}
}

// Fonts returns the renderer's font cache.
func (r *Renderer) Fonts() *FontCache { return r.fonts }

// Images returns the session cache of embedded background images.
func (r *Renderer) Images() *ImageCache { return r.images }

// Painter returns the rasterizer painting this renderer's trees.
func (r *Renderer) Painter() *Painter { return r.painter }

// Surface returns a read-only view of the export surface.
func (r *Renderer) Surface() SurfaceView { return &r.surface }

// LoadFonts runs the font readiness gate for slides: every distinct family is
// requested, then it waits for the cache to settle. Previews stay locked until
// the first call returns.
func (r *Renderer) LoadFonts(ctx context.Context, slides []Slide) error {
	families := slideFamilies(slides)
	r.fonts.Require(ctx, families...)
	if err := r.fonts.Settled(ctx); err != nil {
		return fmt.Errorf("wait for fonts: %w", err)
	}
	r.settled.Store(true)
	Logger().Debug("fonts settled", "families", families)
	return nil
}

// RequestFonts starts the font gate for slides without waiting for it. The
// loads run detached from any request; FontsReady reports when they are done.
func (r *Renderer) RequestFonts(slides []Slide) {
	r.fonts.Require(context.Background(), slideFamilies(slides)...)
	go func() {
		if err := r.fonts.Settled(context.Background()); err == nil {
			r.settled.Store(true)
		}
	}()
}

// FontsSettled reports whether the font gate has cleared at least once and no
// load is in flight.
func (r *Renderer) FontsSettled() bool {
	return r.settled.Load() && !r.fonts.Pending()
}

// FontsReady reports whether every family s draws with is final, so a preview
// of s will not change once pending loads complete.
func (r *Renderer) FontsReady(s Slide) bool {
	return r.settled.Load() && r.fonts.Ready(slideFamilies([]Slide{s})...)
}

// Mount lays out the export tree of every slide of doc into the surface.
// Background images use their embedded form when the readiness pipeline
// produced one, and the live reference otherwise.
func (r *Renderer) Mount(doc *Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes := make([]*Tree, len(doc.Slides))
	for i, s := range doc.Slides {
		s.BgImage = r.images.Resolve(i, s.BgImage)
		nodes[i] = Layout(i, s, r.fonts)
	}
	r.surface.mount(nodes)
	Logger().Debug("export surface mounted", "slides", len(nodes))
}

// Paint lays out and paints one slide at scale. Unresolvable images are
// skipped instead of failing.
func (r *Renderer) Paint(ctx context.Context, index int, s Slide, scale float64) *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.BgImage = r.images.Resolve(index, s.BgImage)
	t := Layout(index, s, r.fonts)
	w, h := previewSize(scale)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// Lenient painting never returns an error.
	_ = r.painter.paint(ctx, t, dst, scale, false)
	return dst
}

// RasterOptions configures one capture.
type RasterOptions struct {
	Width  int
	Height int
	// PixelRatio multiplies the tree's coordinates. Captures pin it to 1 so the
	// output size never depends on the device.
	PixelRatio float64
	// AutoScale fits the tree to Width×Height. Captures disable it.
	AutoScale bool
}

// Painter rasterizes render trees. The decoded background image of each slide
// index is kept hot between calls and replaced when the slide's reference
// changes, so at most one image per slide stays in memory.
type Painter struct {
	fonts  *FontCache
	client *http.Client

	paintMu sync.Mutex // faces are shared with the font cache and not goroutine-safe

	mu      sync.Mutex
	decoded map[int]decodedImage
}

type decodedImage struct {
	ref string
	img image.Image
}

// NewPainter creates a painter drawing text with fc.
func NewPainter(fc *FontCache, client *http.Client) *Painter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Painter{fonts: fc, client: client, decoded: make(map[int]decodedImage)}
}

// Rasterize paints tree into a new Width×Height bitmap. Any image that cannot
// be read fails the whole capture with ErrTaintedSurface.
func (p *Painter) Rasterize(ctx context.Context, tree *Tree, opts RasterOptions) (image.Image, error) {
	if tree == nil {
		return nil, ErrNotMounted
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid capture size %dx%d", opts.Width, opts.Height)
	}
	scale := opts.PixelRatio
	if scale <= 0 {
		scale = 1
	}
	if opts.AutoScale {
		scale = math.Min(float64(opts.Width)/float64(tree.Width), float64(opts.Height)/float64(tree.Height))
	}
	dst := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	if err := p.paint(ctx, tree, dst, scale, true); err != nil {
		return nil, err
	}
	return dst, nil
}

func (p *Painter) paint(ctx context.Context, t *Tree, dst *image.RGBA, scale float64, strict bool) error {
	p.paintMu.Lock()
	defer p.paintMu.Unlock()
	for _, l := range t.Layers {
		rect := scaleRect(l.Bounds, scale)
		switch l.Kind {
		case LayerBackground, LayerOverlay, LayerBox:
			if l.Opacity <= 0 {
				continue
			}
			op := draw.Over
			if l.Kind == LayerBackground {
				op = draw.Src
			}
			draw.Draw(dst, rect, &image.Uniform{l.Color.WithOpacity(l.Opacity)}, image.Point{}, op)
		case LayerImage:
			src, err := p.image(ctx, t.Index, l.Image)
			if err != nil {
				if strict {
					return fmt.Errorf("%w: %v", ErrTaintedSurface, err)
				}
				Logger().Warn("skip background image", "slide", t.Index+1, "err", err)
				continue
			}
			p.drawCover(dst, rect, src, l.Zoom)
		case LayerPrimaryText, LayerSecondaryText:
			p.drawLines(dst, l, scale)
		}
	}
	return nil
}

// drawCover scales src to cover rect, zooms it around the center and crops.
func (p *Painter) drawCover(dst *image.RGBA, rect image.Rectangle, src image.Image, zoom float64) {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return
	}
	if zoom < 1 {
		zoom = 1
	}
	zw := int(math.Ceil(float64(w) * zoom))
	zh := int(math.Ceil(float64(h) * zoom))
	var fitted image.Image = imaging.Fill(src, zw, zh, imaging.Center, imaging.Lanczos)
	if zw != w || zh != h {
		fitted = imaging.CropCenter(fitted, w, h)
	}
	draw.Draw(dst, rect, fitted, fitted.Bounds().Min, draw.Over)
}

func (p *Painter) drawLines(dst *image.RGBA, l Layer, scale float64) {
	if len(l.Lines) == 0 {
		return
	}
	face := p.fonts.Face(l.Style.Family, l.Style.Size*scale, l.Style.Bold, l.Style.Italic)
	src := &image.Uniform{l.Color.WithOpacity(l.Opacity)}
	for _, line := range l.Lines {
		d := &font.Drawer{
			Dst:  dst,
			Src:  src,
			Face: face,
			Dot:  fixed.Point26_6{X: toFixed(line.X * scale), Y: toFixed(line.Baseline * scale)},
		}
		d.DrawString(line.Text)
	}
}

// image returns the decoded image for ref, from cache when slide index last
// painted the same reference.
func (p *Painter) image(ctx context.Context, index int, ref string) (image.Image, error) {
	p.mu.Lock()
	hit, ok := p.decoded[index]
	p.mu.Unlock()
	if ok && hit.ref == ref {
		return hit.img, nil
	}

	data, err := p.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	p.mu.Lock()
	p.decoded[index] = decodedImage{ref: ref, img: img}
	p.mu.Unlock()
	return img, nil
}

func (p *Painter) load(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		_, data, err := decodeDataURI(ref)
		return data, err
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return fetch(ctx, p.client, ref, maxImageSize)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(u.Path)
	default:
		return os.ReadFile(ref)
	}
}

// decodeDataURI splits a base64 data URI into its media type and payload.
func decodeDataURI(ref string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return "", nil, errors.New("malformed data URI")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("data URI payload: %w", err)
		}
		return mediaType, []byte(s), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data URI payload: %w", err)
	}
	return mediaType, data, nil
}

// loadingVeil is the full-surface overlay shown while fonts are loading.
var loadingVeil = color.NRGBA{R: 12, G: 12, B: 20, A: 210}

// paintLoading covers dst with the loading overlay and a centered label.
func (p *Painter) paintLoading(dst *image.RGBA, scale float64) {
	draw.Draw(dst, dst.Bounds(), &image.Uniform{loadingVeil}, image.Point{}, draw.Over)
	face := p.fonts.Face(fallbackFamily, math.Max(28*scale, 8), true, false)
	drawStringCentered(dst, "Loading fonts…", face, color.White, dst.Bounds())
}

func drawStringCentered(dst draw.Image, text string, face font.Face, c color.Color, rect image.Rectangle) {
	textW := font.MeasureString(face, text).Ceil()
	lineH := face.Metrics().Height.Ceil()
	x := rect.Min.X + (rect.Dx()-textW)/2
	y := rect.Min.Y + (rect.Dy()+lineH)/2

	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{c},
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func scaleRect(r Rect, scale float64) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X*scale)),
		int(math.Round(r.Y*scale)),
		int(math.Round((r.X+r.W)*scale)),
		int(math.Round((r.Y+r.H)*scale)),
	)
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

// cachedImages returns the number of decoded images held.
func (p *Painter) cachedImages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.decoded)
}
