// Package carousel composes multi-slide visual documents from styled text and
// background blocks, previews them at interactive scale and exports them as
// fixed-resolution PNG images.
//
// A Document is hydrated, laid out by a Renderer into full-resolution export
// trees, made ready by the Readiness pipeline (fonts loaded, remote images
// embedded), captured slide by slide by a Capturer and handed to the user by
// Deliver through the best channel the Platform offers.
//
// See the Version variable for the current library version.
package carousel

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Document is an ordered sequence of slides plus the metadata used by the
// generation collaborator. Slides are addressed by index.
type Document struct {
	ID        string  `json:"id"`
	Mode      string  `json:"mode,omitempty"`
	Topic     string  `json:"topic"`
	Objective string  `json:"objective,omitempty"`
	Emotion   string  `json:"emotion,omitempty"`
	Slides    []Slide `json:"slides"`
}

// NewDocument creates a document with a fresh id and one default slide.
func NewDocument(topic string) *Document {
	return &Document{
		ID:     uuid.NewString(),
		Topic:  topic,
		Slides: []Slide{DefaultSlide()},
	}
}

// HydrateDocument decodes a stored document and hydrates every slide so that
// no partial record ever reaches the renderer.
func HydrateDocument(raw []byte) (*Document, error) {
	var rec struct {
		Document
		Slides []json.RawMessage `json:"slides"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("hydrate document: %w", err)
	}
	doc := rec.Document
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Slides = make([]Slide, 0, len(rec.Slides))
	for i, r := range rec.Slides {
		s, err := Hydrate(r)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", i+1, err)
		}
		doc.Slides = append(doc.Slides, s)
	}
	if len(doc.Slides) == 0 {
		doc.Slides = append(doc.Slides, DefaultSlide())
	}
	return &doc, nil
}

// Len returns the number of slides.
func (d *Document) Len() int {
	return len(d.Slides)
}

// Slide returns a copy of the slide at index.
func (d *Document) Slide(index int) (Slide, error) {
	if index < 0 || index >= len(d.Slides) {
		return Slide{}, ErrSlideIndex
	}
	return d.Slides[index], nil
}

// AddSlide appends a slide and returns its index.
func (d *Document) AddSlide(s Slide) int {
	d.Slides = append(d.Slides, s)
	return len(d.Slides) - 1
}

// RemoveSlide removes a slide by index. The last remaining slide cannot be removed.
func (d *Document) RemoveSlide(index int) error {
	if index < 0 || index >= len(d.Slides) {
		return ErrSlideIndex
	}
	if len(d.Slides) <= 1 {
		return ErrLastSlide
	}
	d.Slides = append(d.Slides[:index], d.Slides[index+1:]...)
	return nil
}

// MoveSlide moves a slide from one index to another.
func (d *Document) MoveSlide(fromIndex, toIndex int) error {
	if fromIndex < 0 || fromIndex >= len(d.Slides) {
		return fmt.Errorf("fromIndex: %w", ErrSlideIndex)
	}
	if toIndex < 0 || toIndex >= len(d.Slides) {
		return fmt.Errorf("toIndex: %w", ErrSlideIndex)
	}
	if fromIndex == toIndex {
		return nil
	}
	s := d.Slides[fromIndex]
	d.Slides = append(d.Slides[:fromIndex], d.Slides[fromIndex+1:]...)
	d.Slides = append(d.Slides, Slide{})
	copy(d.Slides[toIndex+1:], d.Slides[toIndex:])
	d.Slides[toIndex] = s
	return nil
}

// UpdateField sets one attribute of the slide at index, addressed by its JSON
// name (e.g. "fontSize", "bgImage"). The value must have the attribute's JSON type.
func (d *Document) UpdateField(index int, field string, value any) error {
	if index < 0 || index >= len(d.Slides) {
		return ErrSlideIndex
	}
	if field == "templateVersion" {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	cur := d.Slides[index]
	data, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if _, ok := fields[field]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	patch, err := json.Marshal(map[string]json.RawMessage{field: v})
	if err != nil {
		return err
	}
	next := cur
	if err := json.Unmarshal(patch, &next); err != nil {
		return fmt.Errorf("set %s: %w", field, err)
	}
	next.normalize()
	d.Slides[index] = next
	return nil
}

// ApplyStyleToAll copies the style of the slide at sourceIndex onto every slide,
// keeping each slide's own content and background image.
func (d *Document) ApplyStyleToAll(sourceIndex int) error {
	src, err := d.Slide(sourceIndex)
	if err != nil {
		return err
	}
	p, err := CapturePreset("", src)
	if err != nil {
		return err
	}
	d.ApplyPresetToAll(p)
	return nil
}

// ApplyPresetToAll applies p to every slide.
func (d *Document) ApplyPresetToAll(p Preset) {
	for i := range d.Slides {
		d.Slides[i] = ApplyPreset(d.Slides[i], p)
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	c.Slides = append([]Slide(nil), d.Slides...)
	return &c
}
