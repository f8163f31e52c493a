package carousel

import (
	"fmt"

	"github.com/jinzhu/copier"
)

// Preset is a named snapshot of a slide's style. It carries no content, no
// per-slide background image and no template marker, so applying it can never
// touch those.
type Preset struct {
	Name string `json:"name"`

	FontFamily string    `json:"fontFamily"`
	FontSize   float64   `json:"fontSize"`
	TextAlign  Alignment `json:"textAlign"`
	IsBold     bool      `json:"isBold"`
	IsItalic   bool      `json:"isItalic"`
	LineHeight float64   `json:"lineHeight"`
	TextColor  Color     `json:"textColor"`

	SecondaryFontFamily string    `json:"secondaryFontFamily"`
	SecondaryFontSize   float64   `json:"secondaryFontSize"`
	SecondaryTextAlign  Alignment `json:"secondaryTextAlign"`
	SecondaryIsBold     bool      `json:"secondaryIsBold"`
	SecondaryIsItalic   bool      `json:"secondaryIsItalic"`
	SecondaryLineHeight float64   `json:"secondaryLineHeight"`
	SecondaryTextColor  Color     `json:"secondaryTextColor"`
	SecondaryUppercase  bool      `json:"secondaryUppercase"`

	BackgroundColor Color   `json:"backgroundColor"`
	BgZoom          float64 `json:"bgZoom"`

	OverlayColor   Color   `json:"overlayColor"`
	OverlayOpacity float64 `json:"overlayOpacity"`

	BoxBgColor Color    `json:"boxBgColor"`
	BoxOpacity float64  `json:"boxOpacity"`
	BoxPadding float64  `json:"boxPadding"`
	Position   Position `json:"position"`
}

// CapturePreset copies the style fields of s into a new preset.
func CapturePreset(name string, s Slide) (Preset, error) {
	var p Preset
	if err := copier.Copy(&p, &s); err != nil {
		return Preset{}, fmt.Errorf("capture preset %q: %w", name, err)
	}
	p.Name = name
	return p, nil
}

// ApplyPreset returns s with the preset's style merged on top. Text, secondary
// text and background image always come from s.
func ApplyPreset(s Slide, p Preset) Slide {
	out := s
	if err := copier.Copy(&out, &p); err != nil {
		Logger().Warn("apply preset", "preset", p.Name, "err", err)
		return s
	}
	out.Text = s.Text
	out.SecondaryText = s.SecondaryText
	out.BgImage = s.BgImage
	out.UseOnlyMain = s.UseOnlyMain
	out.TemplateVersion = s.TemplateVersion
	out.normalize()
	return out
}
