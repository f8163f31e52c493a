package carousel

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// pngDataURI returns a data URI of a w×h PNG filled with c.
func pngDataURI(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, w, h, c))
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPaint_PreviewSize(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	img := r.Paint(context.Background(), 0, NewSlide("Hello", ""), 0.5)
	if img.Bounds().Dx() != 540 || img.Bounds().Dy() != 675 {
		t.Errorf("expected 540x675, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestPaint_Background(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	s := NewSlide("", "")
	s.BackgroundColor = "#003366"
	s.OverlayOpacity = 0
	img := r.Paint(context.Background(), 0, s, 1)

	c := img.RGBAAt(10, 10)
	if c.R != 0x00 || c.G != 0x33 || c.B != 0x66 {
		t.Errorf("unexpected background color: R=%d G=%d B=%d", c.R, c.G, c.B)
	}
}

func TestPaint_OverlayDarkens(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	s := NewSlide("", "")
	s.BackgroundColor = "#FFFFFF"
	s.OverlayColor = "#000000"
	s.OverlayOpacity = 0.5
	c := r.Paint(context.Background(), 0, s, 1).RGBAAt(5, 5)
	if c.R < 120 || c.R > 135 {
		t.Errorf("expected half-darkened white, got R=%d", c.R)
	}
}

func TestPaint_TextDrawn(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	s := NewSlide("WWWWWW", "")
	s.BackgroundColor = "#000000"
	s.OverlayOpacity = 0
	s.TextColor = "#FFFFFF"
	img := r.Paint(context.Background(), 0, s, 1)

	l, _ := Layout(0, s, r.Fonts()).Layer(LayerPrimaryText)
	lit := 0
	b := scaleRect(l.Bounds, 1)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y).R > 128 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("expected text pixels inside the primary text bounds")
	}
}

func TestPaint_BackgroundImage(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	s := NewSlide("", "")
	s.BgImage = pngDataURI(t, 40, 50, color.RGBA{R: 255, A: 255})
	s.OverlayOpacity = 0
	c := r.Paint(context.Background(), 0, s, 0.25).RGBAAt(10, 10)
	if c.R != 255 || c.G != 0 {
		t.Errorf("expected red cover image, got %+v", c)
	}
}

func TestRasterize_StrictOnUnreadableImage(t *testing.T) {
	fc := testFonts()
	r := NewRenderer(fc, nil)
	s := NewSlide("", "")
	s.BgImage = "/nonexistent/background.png"

	// Preview painting skips the image.
	_ = r.Paint(context.Background(), 0, s, 0.25)

	_, err := r.Painter().Rasterize(context.Background(), Layout(0, s, fc), RasterOptions{Width: ExportWidth, Height: ExportHeight, PixelRatio: 1})
	if !errors.Is(err, ErrTaintedSurface) {
		t.Errorf("expected ErrTaintedSurface, got %v", err)
	}
}

func TestRasterize_ExactSize(t *testing.T) {
	fc := testFonts()
	p := NewPainter(fc, nil)
	img, err := p.Rasterize(context.Background(), Layout(3, NewSlide("Size", "check"), fc), RasterOptions{Width: ExportWidth, Height: ExportHeight, PixelRatio: 1})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if img.Bounds().Dx() != ExportWidth || img.Bounds().Dy() != ExportHeight {
		t.Errorf("expected %dx%d, got %v", ExportWidth, ExportHeight, img.Bounds())
	}
	if _, err := p.Rasterize(context.Background(), nil, RasterOptions{Width: 1, Height: 1}); !errors.Is(err, ErrNotMounted) {
		t.Errorf("expected ErrNotMounted for nil tree, got %v", err)
	}
}

func TestSurface_ReadOnlyNodes(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	if _, err := r.Surface().Node(0); !errors.Is(err, ErrSlideIndex) {
		t.Errorf("expected ErrSlideIndex before mount, got %v", err)
	}
	doc := NewDocument("surface")
	doc.AddSlide(NewSlide("second", ""))
	r.Mount(doc)
	if r.Surface().Len() != 2 {
		t.Fatalf("expected 2 mounted nodes, got %d", r.Surface().Len())
	}
	n, err := r.Surface().Node(1)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	n.Layers = nil
	again, _ := r.Surface().Node(1)
	if len(again.Layers) == 0 {
		t.Error("mutating a returned node must not affect the surface")
	}
	if again.Index != 1 {
		t.Errorf("expected index 1, got %d", again.Index)
	}
}

func TestPreview_LockedUntilFontsSettle(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	s := NewSlide("Locked", "")
	s.BackgroundColor = "#FFFFFF"
	s.OverlayOpacity = 0
	p := r.NewPreview(216)
	if !p.Locked(s) {
		t.Fatal("preview must be locked before the font gate cleared")
	}
	locked := p.Paint(context.Background(), 0, s).RGBAAt(1, 1)

	if err := r.LoadFonts(context.Background(), []Slide{s}); err != nil {
		t.Fatalf("LoadFonts: %v", err)
	}
	if p.Locked(s) {
		t.Fatal("preview must unlock once fonts settled")
	}
	open := p.Paint(context.Background(), 0, s).RGBAAt(1, 1)
	if locked.R >= open.R {
		t.Errorf("expected the loading overlay to darken the preview: locked=%v open=%v", locked, open)
	}
	if p.Scale() != 0.2 {
		t.Errorf("expected scale 0.2, got %v", p.Scale())
	}
	p.Resize(0)
	if img := p.Paint(context.Background(), 0, s); !img.Bounds().Empty() {
		t.Errorf("expected empty image for zero width, got %v", img.Bounds())
	}
}

func TestPreview_LocksForNewlySourcedFamily(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write(goregular.TTF)
	}))
	defer ts.Close()
	defer unblock()

	fc := testFonts()
	fc.SetHTTPClient(ts.Client())
	fc.AddSource("Lora", ts.URL+"/lora.ttf")
	r := NewRenderer(fc, nil)

	inter := NewSlide("Switch", "")
	if err := r.LoadFonts(context.Background(), []Slide{inter}); err != nil {
		t.Fatalf("LoadFonts: %v", err)
	}
	p := r.NewPreview(540)
	if p.Locked(inter) {
		t.Fatal("preview of a loaded family must be unlocked")
	}

	lora := inter
	lora.FontFamily = "Lora"
	if !p.Locked(lora) {
		t.Fatal("a sourced family that was never loaded must lock the preview")
	}
	r.RequestFonts([]Slide{lora})
	if _, locked := p.Render(context.Background(), 0, lora); !locked {
		t.Fatal("preview must stay locked while the family loads")
	}
	if p.Locked(inter) {
		t.Error("a slide without the loading family must stay unlocked")
	}

	unblock()
	if err := fc.Settled(context.Background()); err != nil {
		t.Fatalf("Settled: %v", err)
	}
	if !fc.Has("Lora") {
		t.Fatal("expected Lora loaded from its source")
	}
	if _, locked := p.Render(context.Background(), 0, lora); locked {
		t.Error("preview must unlock once the family loaded")
	}
}

func TestFontCache_ReadyAfterFailedSource(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	fc := testFonts()
	fc.SetHTTPClient(ts.Client())
	fc.AddSource("Gone", ts.URL+"/gone.ttf")
	if fc.Ready("Gone") {
		t.Fatal("an unrequested source must not be ready")
	}
	fc.Require(context.Background(), "Gone")
	if err := fc.Settled(context.Background()); err != nil {
		t.Fatalf("Settled: %v", err)
	}
	if !fc.Ready("Gone") {
		t.Error("a failed load must release the gate and use the fallback")
	}
	fc.AddSource("Gone", ts.URL+"/other.ttf")
	if fc.Ready("Gone") {
		t.Error("a new source must be requested again")
	}
}

func TestPainter_ImageCachePerSlide(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	s := NewSlide("Cache", "")
	for _, c := range []color.Color{color.RGBA{255, 0, 0, 255}, color.RGBA{0, 255, 0, 255}, color.RGBA{0, 0, 255, 255}} {
		s.BgImage = pngDataURI(t, 8, 10, c)
		r.Paint(context.Background(), 0, s, 0.1)
	}
	if n := r.Painter().cachedImages(); n != 1 {
		t.Errorf("expected one cached image after background edits, got %d", n)
	}
	r.Paint(context.Background(), 1, s, 0.1)
	if n := r.Painter().cachedImages(); n != 2 {
		t.Errorf("expected one cached image per slide, got %d", n)
	}
}

func TestFontCache_Fallback(t *testing.T) {
	fc := testFonts()
	if face := fc.GetFace("nonexistent-font-xyz-12345", 12, false, false); face != nil {
		t.Error("expected nil for nonexistent font")
	}
	if face := fc.Face("nonexistent-font-xyz-12345", 12, false, false); face == nil {
		t.Error("Face must fall back to the embedded family")
	}
	if fc.Has("nonexistent-font-xyz-12345") {
		t.Error("Has must be false for a fallback family")
	}
}

func TestFontCache_LoadFontData(t *testing.T) {
	fc := testFonts()
	if err := fc.LoadFontData("test", []byte("not a font")); err == nil {
		t.Error("expected error for invalid font data")
	}
	if err := fc.LoadFontData("Brand Sans", goregular.TTF); err != nil {
		t.Fatalf("LoadFontData: %v", err)
	}
	if !fc.Has("brand sans") {
		t.Error("expected family registered case-insensitively")
	}
	w := font.MeasureString(fc.MeasureFace("Brand Sans", 32, false, false), "Hello")
	if w <= 0 {
		t.Error("expected positive text width")
	}
}

func TestFontCache_SystemFonts(t *testing.T) {
	fc := NewFontCache()
	face := fc.GetFace("arial", 12, false, false)
	if face == nil {
		t.Skip("Arial not found on this system, skipping")
	}
	if w := font.MeasureString(face, "Hello"); w <= 0 {
		t.Error("expected positive text width from TrueType face")
	}
}
