package carousel

import "strings"

// FontFamily describes a family the editor offers.
type FontFamily struct {
	ID      string `json:"id"`
	Display string `json:"display"`
	// BoldOnly families ship a single heavy weight; they always render bold.
	BoldOnly bool `json:"boldOnly,omitempty"`
}

// Catalog is the set of families offered by the editor. Families outside the
// catalog still render through the font cache.
var Catalog = []FontFamily{
	{ID: "Inter", Display: "Inter"},
	{ID: "Montserrat", Display: "Montserrat"},
	{ID: "Poppins", Display: "Poppins"},
	{ID: "Roboto", Display: "Roboto"},
	{ID: "Lora", Display: "Lora"},
	{ID: "Playfair Display", Display: "Playfair Display"},
	{ID: "Oswald", Display: "Oswald"},
	{ID: "Bebas Neue", Display: "Bebas Neue", BoldOnly: true},
	{ID: "Anton", Display: "Anton", BoldOnly: true},
	{ID: "Archivo Black", Display: "Archivo Black", BoldOnly: true},
	{ID: "Montserrat Black", Display: "Montserrat Black", BoldOnly: true},
}

// LookupFamily returns the catalog entry for id, case-insensitively.
func LookupFamily(id string) (FontFamily, bool) {
	for _, f := range Catalog {
		if strings.EqualFold(f.ID, id) {
			return f, true
		}
	}
	return FontFamily{}, false
}

// boldWords mark a family name as a heavy-only cut.
var boldWords = []string{"bold", "black", "heavy"}

// resolveBold derives the weight used for a text block. A block is bold when its
// flag is set or when the family only exists in a heavy weight.
func resolveBold(family string, flag bool) bool {
	if flag {
		return true
	}
	names := []string{family}
	if f, ok := LookupFamily(family); ok {
		if f.BoldOnly {
			return true
		}
		names = append(names, f.Display)
	}
	for _, n := range names {
		lower := strings.ToLower(n)
		for _, w := range boldWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// slideFamilies returns the distinct font families referenced by slides, in
// first-seen order. A secondary family only counts when its block is rendered.
func slideFamilies(slides []Slide) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		k := strings.ToLower(f)
		if f == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, f)
	}
	for _, s := range slides {
		add(s.FontFamily)
		if s.ShowsSecondary() {
			add(s.SecondaryFontFamily)
		}
	}
	return out
}
