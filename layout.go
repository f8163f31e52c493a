package carousel

import (
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LayerKind identifies one layer of a slide render tree.
type LayerKind int

// Layers are always stacked in this order.
const (
	LayerBackground LayerKind = iota
	LayerImage
	LayerOverlay
	LayerBox
	LayerPrimaryText
	LayerSecondaryText
)

func (k LayerKind) String() string {
	switch k {
	case LayerBackground:
		return "background"
	case LayerImage:
		return "image"
	case LayerOverlay:
		return "overlay"
	case LayerBox:
		return "box"
	case LayerPrimaryText:
		return "primary-text"
	case LayerSecondaryText:
		return "secondary-text"
	}
	return "unknown"
}

// Rect is an axis-aligned rectangle in export pixels.
type Rect struct {
	X, Y, W, H float64
}

// TextStyle is the resolved typography of one text block.
type TextStyle struct {
	Family     string
	Size       float64
	Bold       bool
	Italic     bool
	Color      Color
	LineHeight float64
	Align      Alignment
}

// TextLine is one wrapped line, positioned in export pixels.
type TextLine struct {
	Text     string
	X        float64
	Baseline float64
	Width    float64
}

// Layer is one painted element of a slide.
type Layer struct {
	Kind    LayerKind
	Bounds  Rect
	Color   Color
	Opacity float64

	// LayerImage
	Image string
	Zoom  float64

	// Text layers
	Style TextStyle
	Lines []TextLine
}

// Tree is the laid-out form of one slide at full export resolution. The export
// surface paints it at scale 1; previews paint the very same tree scaled down,
// so wrapping and weights never differ between the two.
type Tree struct {
	Index  int
	Width  int
	Height int
	Layers []Layer
}

// Layer returns the first layer of the given kind.
func (t *Tree) Layer(kind LayerKind) (Layer, bool) {
	for _, l := range t.Layers {
		if l.Kind == kind {
			return l, true
		}
	}
	return Layer{}, false
}

// HasLayer reports whether the tree contains a layer of kind.
func (t *Tree) HasLayer(kind LayerKind) bool {
	_, ok := t.Layer(kind)
	return ok
}

// textBlock is a text layer before it is placed inside the box.
type textBlock struct {
	kind  LayerKind
	style TextStyle
	lines []string
	face  font.Face
}

func (b *textBlock) lineHeight() float64 {
	return b.style.Size * b.style.LineHeight
}

func (b *textBlock) height() float64 {
	return float64(len(b.lines)) * b.lineHeight()
}

func (b *textBlock) maxWidth() float64 {
	w := 0.0
	for _, l := range b.lines {
		w = math.Max(w, measure(b.face, l))
	}
	return w
}

// Layout lays a slide out at export resolution. Index is recorded on the tree.
func Layout(index int, s Slide, fc *FontCache) *Tree {
	t := &Tree{Index: index, Width: ExportWidth, Height: ExportHeight}
	full := Rect{W: ExportWidth, H: ExportHeight}

	t.Layers = append(t.Layers, Layer{Kind: LayerBackground, Bounds: full, Color: s.BackgroundColor, Opacity: 1})
	if s.BgImage != "" {
		t.Layers = append(t.Layers, Layer{Kind: LayerImage, Bounds: full, Image: s.BgImage, Zoom: s.BgZoom, Opacity: 1})
	}
	t.Layers = append(t.Layers, Layer{Kind: LayerOverlay, Bounds: full, Color: s.OverlayColor, Opacity: s.OverlayOpacity})

	primaryAlign, secondaryAlign := s.TextAlign, s.SecondaryTextAlign
	switch s.Position {
	case PositionLeft:
		primaryAlign, secondaryAlign = AlignLeft, AlignLeft
	case PositionRight:
		primaryAlign, secondaryAlign = AlignRight, AlignRight
	}

	innerW := float64(ExportWidth - 2*safeMargin)
	boxW := innerW
	side := s.Position == PositionLeft || s.Position == PositionRight
	if side {
		boxW = innerW * sideBoxRatio
	}
	pad := math.Min(s.BoxPadding, boxW/4)
	textW := boxW - 2*pad

	blocks := []*textBlock{newTextBlock(LayerPrimaryText, TextStyle{
		Family:     s.FontFamily,
		Size:       s.FontSize,
		Bold:       resolveBold(s.FontFamily, s.IsBold),
		Italic:     s.IsItalic,
		Color:      s.TextColor,
		LineHeight: s.LineHeight,
		Align:      primaryAlign,
	}, s.Text, textW, fc)}
	if s.ShowsSecondary() {
		text := s.SecondaryText
		if s.SecondaryUppercase {
			text = cases.Upper(language.Und).String(text)
		}
		blocks = append(blocks, newTextBlock(LayerSecondaryText, TextStyle{
			Family:     s.SecondaryFontFamily,
			Size:       s.SecondaryFontSize,
			Bold:       resolveBold(s.SecondaryFontFamily, s.SecondaryIsBold),
			Italic:     s.SecondaryIsItalic,
			Color:      s.SecondaryTextColor,
			LineHeight: s.SecondaryLineHeight,
			Align:      secondaryAlign,
		}, text, textW, fc))
	}

	contentH := 0.0
	for i, b := range blocks {
		if i > 0 {
			contentH += blockGap
		}
		contentH += b.height()
	}
	if side {
		used := 0.0
		for _, b := range blocks {
			used = math.Max(used, b.maxWidth())
		}
		boxW = math.Min(boxW, math.Ceil(used)+2*pad)
		textW = boxW - 2*pad
	}
	boxH := contentH + 2*pad

	box := Rect{X: safeMargin, W: boxW, H: boxH}
	switch s.Position {
	case PositionTop:
		box.Y = safeMargin
	case PositionBottom:
		box.Y = ExportHeight - safeMargin - boxH
	default:
		box.Y = (ExportHeight - boxH) / 2
	}
	if s.Position == PositionRight {
		box.X = ExportWidth - safeMargin - boxW
	}
	t.Layers = append(t.Layers, Layer{Kind: LayerBox, Bounds: box, Color: s.BoxBgColor, Opacity: s.BoxOpacity})

	y := box.Y + pad
	for i, b := range blocks {
		if i > 0 {
			y += blockGap
		}
		t.Layers = append(t.Layers, b.place(box.X+pad, y, textW))
		y += b.height()
	}
	return t
}

func newTextBlock(kind LayerKind, style TextStyle, text string, maxW float64, fc *FontCache) *textBlock {
	face := fc.MeasureFace(style.Family, style.Size, style.Bold, style.Italic)
	return &textBlock{kind: kind, style: style, face: face, lines: wrapText(face, text, maxW)}
}

// place positions the block's lines with the top of the first line at y.
func (b *textBlock) place(x, y, width float64) Layer {
	m := b.face.Metrics()
	ascent := fromFixed(m.Ascent)
	glyphH := ascent + fromFixed(m.Descent)
	lh := b.lineHeight()

	l := Layer{
		Kind:    b.kind,
		Bounds:  Rect{X: x, Y: y, W: width, H: b.height()},
		Color:   b.style.Color,
		Opacity: 1,
		Style:   b.style,
	}
	for i, text := range b.lines {
		w := measure(b.face, text)
		lx := x
		switch b.style.Align {
		case AlignCenter:
			lx = x + (width-w)/2
		case AlignRight:
			lx = x + width - w
		}
		top := y + float64(i)*lh
		l.Lines = append(l.Lines, TextLine{
			Text:     text,
			X:        lx,
			Baseline: top + (lh-glyphH)/2 + ascent,
			Width:    w,
		})
	}
	return l
}

// wrapText breaks text into lines no wider than maxW. Explicit newlines are kept;
// a single word wider than maxW is broken between runes.
func wrapText(face font.Face, text string, maxW float64) []string {
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			if text != "" {
				lines = append(lines, "")
			}
			continue
		}
		cur := ""
		for _, w := range words {
			next := w
			if cur != "" {
				next = cur + " " + w
			}
			if measure(face, next) <= maxW || maxW <= 0 {
				cur = next
				continue
			}
			if cur != "" {
				lines = append(lines, cur)
			}
			cur = w
			for utf8.RuneCountInString(cur) > 1 && measure(face, cur) > maxW {
				head, rest := splitRunes(face, cur, maxW)
				lines = append(lines, head)
				cur = rest
			}
		}
		lines = append(lines, cur)
	}
	return lines
}

// splitRunes returns the longest prefix of s fitting maxW (at least one rune) and the rest.
func splitRunes(face font.Face, s string, maxW float64) (string, string) {
	runes := []rune(s)
	n := 1
	for n < len(runes) && measure(face, string(runes[:n+1])) <= maxW {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

func measure(face font.Face, s string) float64 {
	return fromFixed(font.MeasureString(face, s))
}

func fromFixed(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
