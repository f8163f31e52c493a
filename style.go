package carousel

import (
	"image/color"
	"strings"
)

// Color is a CSS-style hex color string such as "#1A1A2E", "#FFF" or "#1A1A2E80".
type Color string

// Predefined colors.
const (
	ColorBlack Color = "#000000"
	ColorWhite Color = "#FFFFFF"
)

// NRGBA parses the color. Accepts 3, 6 or 8 hex digits with an optional leading "#".
// Unparseable values fall back to opaque black.
func (c Color) NRGBA() color.NRGBA {
	s := strings.TrimPrefix(strings.TrimSpace(string(c)), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) == 6 {
		s += "FF"
	}
	if !isValidHex(s, 8) {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{
		R: parseHexByte(s, 0),
		G: parseHexByte(s, 2),
		B: parseHexByte(s, 4),
		A: parseHexByte(s, 6),
	}
}

// Valid reports whether the color parses without falling back.
func (c Color) Valid() bool {
	s := strings.TrimPrefix(strings.TrimSpace(string(c)), "#")
	switch len(s) {
	case 3, 6, 8:
		return isValidHex(s, len(s))
	}
	return false
}

// WithOpacity returns the parsed color with its alpha multiplied by opacity (0–1).
func (c Color) WithOpacity(opacity float64) color.NRGBA {
	n := c.NRGBA()
	n.A = uint8(float64(n.A) * clamp01(opacity))
	return n
}

func isValidHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if hexVal(s[i]) < 0 {
			return false
		}
	}
	return true
}

// parseHexByte parses two hex characters at offset into a uint8.
// Returns 0 on any error (out of range, invalid chars).
func parseHexByte(s string, offset int) uint8 {
	if offset+2 > len(s) {
		return 0
	}
	h := hexVal(s[offset])
	l := hexVal(s[offset+1])
	if h < 0 || l < 0 {
		return 0
	}
	return uint8(h<<4 | l)
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Alignment represents horizontal text alignment.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

func (a Alignment) valid() bool {
	switch a {
	case AlignLeft, AlignCenter, AlignRight:
		return true
	}
	return false
}

// Position anchors the content box on the slide. It drives both the placement of
// the box and, for Left and Right, the text alignment inside it.
type Position string

const (
	PositionTop    Position = "top"
	PositionCenter Position = "center"
	PositionBottom Position = "bottom"
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
)

func (p Position) valid() bool {
	switch p {
	case PositionTop, PositionCenter, PositionBottom, PositionLeft, PositionRight:
		return true
	}
	return false
}
