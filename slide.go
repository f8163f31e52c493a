package carousel

import (
	"encoding/json"
	"fmt"
)

// CurrentTemplateVersion marks slides produced by the current default set.
// Records carrying an older (or no) marker get the legacy font-size clamp on load.
const CurrentTemplateVersion = 2

// Legacy clamp thresholds. Older defaults allowed font sizes that overflow the box
// at export resolution.
const (
	legacyMaxFontSize          = 35
	legacySafeFontSize         = 32
	legacyMaxSecondaryFontSize = 25
	legacySafeSecondaryFont    = 20
)

// Slide is one page of a carousel: content plus its complete visual style.
type Slide struct {
	// Content
	Text          string `json:"text"`
	SecondaryText string `json:"secondaryText"`
	UseOnlyMain   bool   `json:"useOnlyMain"`

	// Primary typography
	FontFamily string    `json:"fontFamily"`
	FontSize   float64   `json:"fontSize"`
	TextAlign  Alignment `json:"textAlign"`
	IsBold     bool      `json:"isBold"`
	IsItalic   bool      `json:"isItalic"`
	LineHeight float64   `json:"lineHeight"`
	TextColor  Color     `json:"textColor"`

	// Secondary typography
	SecondaryFontFamily string    `json:"secondaryFontFamily"`
	SecondaryFontSize   float64   `json:"secondaryFontSize"`
	SecondaryTextAlign  Alignment `json:"secondaryTextAlign"`
	SecondaryIsBold     bool      `json:"secondaryIsBold"`
	SecondaryIsItalic   bool      `json:"secondaryIsItalic"`
	SecondaryLineHeight float64   `json:"secondaryLineHeight"`
	SecondaryTextColor  Color     `json:"secondaryTextColor"`
	SecondaryUppercase  bool      `json:"secondaryUppercase"`

	// Background
	BackgroundColor Color   `json:"backgroundColor"`
	BgImage         string  `json:"bgImage"`
	BgZoom          float64 `json:"bgZoom"`

	// Overlay, painted above the background and below the text.
	OverlayColor   Color   `json:"overlayColor"`
	OverlayOpacity float64 `json:"overlayOpacity"`

	// Content box
	BoxBgColor Color    `json:"boxBgColor"`
	BoxOpacity float64  `json:"boxOpacity"`
	BoxPadding float64  `json:"boxPadding"`
	Position   Position `json:"position"`

	TemplateVersion int `json:"templateVersion"`
}

// DefaultSlide returns a slide carrying the current default style and no content.
func DefaultSlide() Slide {
	return Slide{
		FontFamily: "Inter",
		FontSize:   32,
		TextAlign:  AlignCenter,
		IsBold:     true,
		LineHeight: 1.2,
		TextColor:  ColorWhite,

		SecondaryFontFamily: "Inter",
		SecondaryFontSize:   20,
		SecondaryTextAlign:  AlignCenter,
		SecondaryLineHeight: 1.4,
		SecondaryTextColor:  "#E5E5E5",

		BackgroundColor: "#1A1A2E",
		BgZoom:          1,

		OverlayColor:   ColorBlack,
		OverlayOpacity: 0.35,

		BoxBgColor: ColorBlack,
		BoxOpacity: 0,
		BoxPadding: 32,
		Position:   PositionCenter,

		TemplateVersion: CurrentTemplateVersion,
	}
}

// NewSlide seeds a slide from generated content. Style always comes from the
// defaults, never from the generator.
func NewSlide(primary, secondary string) Slide {
	s := DefaultSlide()
	s.Text = primary
	s.SecondaryText = secondary
	return s
}

// Hydrate decodes a stored slide record over the current defaults so that every
// missing attribute is filled. Records from an older template generation have
// their oversized font sizes clamped; current records are left as designed.
func Hydrate(raw []byte) (Slide, error) {
	s := DefaultSlide()
	s.TemplateVersion = 0
	if err := json.Unmarshal(raw, &s); err != nil {
		return Slide{}, fmt.Errorf("hydrate slide: %w", err)
	}
	return finishHydrate(s), nil
}

// finishHydrate applies the legacy clamp and normalizes out-of-range values.
func finishHydrate(s Slide) Slide {
	if s.TemplateVersion < CurrentTemplateVersion {
		if s.FontSize > legacyMaxFontSize {
			s.FontSize = legacySafeFontSize
		}
		if s.SecondaryFontSize > legacyMaxSecondaryFontSize {
			s.SecondaryFontSize = legacySafeSecondaryFont
		}
	}
	s.normalize()
	s.TemplateVersion = CurrentTemplateVersion
	return s
}

// normalize replaces values no renderer can use with the defaults.
func (s *Slide) normalize() {
	d := DefaultSlide()
	if s.FontFamily == "" {
		s.FontFamily = d.FontFamily
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if !s.TextAlign.valid() {
		s.TextAlign = d.TextAlign
	}
	if s.LineHeight <= 0 {
		s.LineHeight = d.LineHeight
	}
	if !s.TextColor.Valid() {
		s.TextColor = d.TextColor
	}
	if s.SecondaryFontFamily == "" {
		s.SecondaryFontFamily = d.SecondaryFontFamily
	}
	if s.SecondaryFontSize <= 0 {
		s.SecondaryFontSize = d.SecondaryFontSize
	}
	if !s.SecondaryTextAlign.valid() {
		s.SecondaryTextAlign = d.SecondaryTextAlign
	}
	if s.SecondaryLineHeight <= 0 {
		s.SecondaryLineHeight = d.SecondaryLineHeight
	}
	if !s.SecondaryTextColor.Valid() {
		s.SecondaryTextColor = d.SecondaryTextColor
	}
	if !s.BackgroundColor.Valid() {
		s.BackgroundColor = d.BackgroundColor
	}
	if s.BgZoom <= 0 {
		s.BgZoom = d.BgZoom
	}
	if !s.OverlayColor.Valid() {
		s.OverlayColor = d.OverlayColor
	}
	s.OverlayOpacity = clamp01(s.OverlayOpacity)
	if !s.BoxBgColor.Valid() {
		s.BoxBgColor = d.BoxBgColor
	}
	s.BoxOpacity = clamp01(s.BoxOpacity)
	if s.BoxPadding < 0 {
		s.BoxPadding = 0
	}
	if !s.Position.valid() {
		s.Position = d.Position
	}
}

// ShowsSecondary reports whether the secondary text block is rendered at all.
func (s Slide) ShowsSecondary() bool {
	return !s.UseOnlyMain && s.SecondaryText != ""
}
