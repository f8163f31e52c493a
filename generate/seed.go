package generate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	carousel "github.com/VantageDataChat/GoCarousel"
)

// Brief is the user input a carousel is generated from.
type Brief struct {
	Mode      string `json:"mode"`
	Topic     string `json:"topic"`
	Objective string `json:"objective"`
	Emotion   string `json:"emotion"`
	Count     int    `json:"count"`
}

// Pair is the text of one generated slide.
type Pair struct {
	PrimaryText   string `json:"primaryText"`
	SecondaryText string `json:"secondaryText"`
}

const (
	defaultCount = 6
	maxCount     = 20
)

const systemPrompt = `You write social media carousels. Answer with a JSON array only.
Each element is an object with "primaryText" (a short headline, at most 12 words)
and "secondaryText" (one supporting sentence, may be empty).
The first slide hooks the reader, the last one is a call to action.`

// Seeder turns briefs into documents of default-styled slides.
type Seeder struct {
	LLM LLMClient
}

// NewSeeder creates a seeder over llm.
func NewSeeder(llm LLMClient) *Seeder {
	return &Seeder{LLM: llm}
}

// Seed asks the model for slide texts and returns a new document. The brief
// metadata is kept on the document.
func (s *Seeder) Seed(ctx context.Context, b Brief) (*carousel.Document, error) {
	if s.LLM == nil {
		return nil, ErrMissingCredential
	}
	if strings.TrimSpace(b.Topic) == "" {
		return nil, errors.New("brief topic is required")
	}
	count := b.Count
	switch {
	case count <= 0:
		count = defaultCount
	case count > maxCount:
		count = maxCount
	}

	raw, err := s.LLM.Complete(ctx, Prompt{System: systemPrompt, User: userPrompt(b, count)})
	if err != nil {
		return nil, fmt.Errorf("generate slides: %w", err)
	}
	pairs, err := ParsePairs(raw)
	if err != nil {
		return nil, err
	}
	if len(pairs) > count {
		pairs = pairs[:count]
	}

	doc := carousel.NewDocument(b.Topic)
	doc.Mode, doc.Objective, doc.Emotion = b.Mode, b.Objective, b.Emotion
	doc.Slides = doc.Slides[:0]
	for _, p := range pairs {
		doc.AddSlide(carousel.NewSlide(p.PrimaryText, p.SecondaryText))
	}
	carousel.Logger().Info("seeded document", "id", doc.ID, "slides", doc.Len())
	return doc, nil
}

func userPrompt(b Brief, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", b.Topic)
	if b.Mode != "" {
		fmt.Fprintf(&sb, "Format: %s\n", b.Mode)
	}
	if b.Objective != "" {
		fmt.Fprintf(&sb, "Objective: %s\n", b.Objective)
	}
	if b.Emotion != "" {
		fmt.Fprintf(&sb, "Tone: %s\n", b.Emotion)
	}
	fmt.Fprintf(&sb, "Slides: %d\n", count)
	return sb.String()
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParsePairs extracts slide pairs from a model answer. The array may be fenced
// in markdown or wrapped in an object under "slides". Pairs without primary
// text are dropped.
func ParsePairs(raw string) ([]Pair, error) {
	body := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(body); len(m) == 2 {
		body = strings.TrimSpace(m[1])
	}
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("model answer is not JSON: %.80q", body)
	}
	list := gjson.Parse(body)
	if !list.IsArray() {
		list = list.Get("slides")
	}
	if !list.IsArray() {
		return nil, errors.New("model answer has no slide array")
	}

	var pairs []Pair
	list.ForEach(func(_, v gjson.Result) bool {
		p := Pair{
			PrimaryText:   strings.TrimSpace(v.Get("primaryText").String()),
			SecondaryText: strings.TrimSpace(v.Get("secondaryText").String()),
		}
		if p.PrimaryText != "" {
			pairs = append(pairs, p)
		}
		return true
	})
	if len(pairs) == 0 {
		return nil, errors.New("model answer has no usable slides")
	}
	return pairs, nil
}
