package carousel

import (
	"math"
	"strings"
	"testing"
)

func testFonts() *FontCache {
	return NewFontCacheDirs()
}

func layerKinds(t *Tree) []LayerKind {
	var kinds []LayerKind
	for _, l := range t.Layers {
		kinds = append(kinds, l.Kind)
	}
	return kinds
}

func TestLayout_LayerOrder(t *testing.T) {
	s := NewSlide("Primary", "Secondary")
	s.BgImage = "data:image/png;base64,AAAA"
	tree := Layout(0, s, testFonts())

	want := []LayerKind{LayerBackground, LayerImage, LayerOverlay, LayerBox, LayerPrimaryText, LayerSecondaryText}
	got := layerKinds(tree)
	if len(got) != len(want) {
		t.Fatalf("expected %d layers, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("layer %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if tree.Width != ExportWidth || tree.Height != ExportHeight {
		t.Errorf("expected %dx%d tree, got %dx%d", ExportWidth, ExportHeight, tree.Width, tree.Height)
	}
}

func TestLayout_UseOnlyMainDropsSecondaryLayer(t *testing.T) {
	s := NewSlide("Primary", "Secondary")
	s.UseOnlyMain = true
	tree := Layout(0, s, testFonts())
	if tree.HasLayer(LayerSecondaryText) {
		t.Error("secondary layer must be absent when useOnlyMain is set")
	}
	if tree.HasLayer(LayerImage) {
		t.Error("image layer must be absent without a background image")
	}
	if !tree.HasLayer(LayerOverlay) {
		t.Error("overlay layer must always be present")
	}
}

func TestLayout_SecondaryUppercase(t *testing.T) {
	s := NewSlide("Primary", "straße and more")
	s.SecondaryUppercase = true
	tree := Layout(0, s, testFonts())
	l, ok := tree.Layer(LayerSecondaryText)
	if !ok {
		t.Fatal("missing secondary layer")
	}
	var joined []string
	for _, line := range l.Lines {
		joined = append(joined, line.Text)
	}
	if got := strings.Join(joined, " "); got != "STRASSE AND MORE" {
		t.Errorf("unexpected uppercase text %q", got)
	}
}

func TestLayout_WrapsWithinBox(t *testing.T) {
	s := NewSlide(strings.Repeat("carousel ", 40), "")
	tree := Layout(0, s, testFonts())
	box, _ := tree.Layer(LayerBox)
	text, _ := tree.Layer(LayerPrimaryText)
	if len(text.Lines) < 2 {
		t.Fatalf("expected wrapped lines, got %d", len(text.Lines))
	}
	for i, line := range text.Lines {
		if line.X < box.Bounds.X-0.5 || line.X+line.Width > box.Bounds.X+box.Bounds.W+0.5 {
			t.Errorf("line %d overflows the box: x=%.1f w=%.1f box=%+v", i, line.X, line.Width, box.Bounds)
		}
	}
}

func TestLayout_Positions(t *testing.T) {
	fc := testFonts()
	tests := []struct {
		pos   Position
		check func(b Rect) bool
	}{
		{PositionTop, func(b Rect) bool { return b.Y == safeMargin }},
		{PositionBottom, func(b Rect) bool { return math.Abs(b.Y+b.H-(ExportHeight-safeMargin)) < 0.01 }},
		{PositionCenter, func(b Rect) bool { return math.Abs(b.Y+b.H/2-ExportHeight/2) < 0.01 }},
		{PositionLeft, func(b Rect) bool { return b.X == safeMargin && b.W < ExportWidth-2*safeMargin }},
		{PositionRight, func(b Rect) bool { return math.Abs(b.X+b.W-(ExportWidth-safeMargin)) < 0.01 }},
	}
	for _, tt := range tests {
		s := NewSlide("Short", "Sub")
		s.Position = tt.pos
		box, _ := Layout(0, s, fc).Layer(LayerBox)
		if !tt.check(box.Bounds) {
			t.Errorf("position %s: unexpected box %+v", tt.pos, box.Bounds)
		}
	}
}

func TestLayout_SidePositionForcesAlignment(t *testing.T) {
	s := NewSlide("Short", "Sub")
	s.Position = PositionRight
	s.TextAlign = AlignLeft
	l, _ := Layout(0, s, testFonts()).Layer(LayerPrimaryText)
	if l.Style.Align != AlignRight {
		t.Errorf("expected right alignment, got %s", l.Style.Align)
	}
}

func TestPreviewScale(t *testing.T) {
	tests := []struct {
		width float64
		want  float64
	}{
		{540, 0.5},
		{1080, 1},
		{2000, 1},
		{270, 0.25},
		{0, 0},
		{-10, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := PreviewScale(tt.width); got != tt.want {
			t.Errorf("PreviewScale(%v) = %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestPreviewTreeMatchesExportTree(t *testing.T) {
	r := NewRenderer(testFonts(), nil)
	doc := NewDocument("same")
	doc.Slides[0] = NewSlide(strings.Repeat("wrap me please ", 12), "and the second block")
	r.Mount(doc)

	exported, err := r.Surface().Node(0)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	preview := r.NewPreview(320).Tree(0, doc.Slides[0])
	pl, _ := preview.Layer(LayerPrimaryText)
	el, _ := exported.Layer(LayerPrimaryText)
	if len(pl.Lines) != len(el.Lines) {
		t.Fatalf("preview wraps into %d lines, export into %d", len(pl.Lines), len(el.Lines))
	}
	for i := range pl.Lines {
		if pl.Lines[i].Text != el.Lines[i].Text {
			t.Errorf("line %d differs: %q vs %q", i, pl.Lines[i].Text, el.Lines[i].Text)
		}
	}
}

func TestResolveBold(t *testing.T) {
	if !resolveBold("Bebas Neue", false) {
		t.Error("bold-only family must render bold")
	}
	if !resolveBold("Some Black", false) {
		t.Error("family named black must render bold")
	}
	if resolveBold("Inter", false) {
		t.Error("Inter without flag must not render bold")
	}
	if !resolveBold("Inter", true) {
		t.Error("flag must force bold")
	}
}
