package generate

import (
	"context"
	"encoding/json"
	"fmt"
)

// MockLLM answers without calling a model: it returns Slides pairs, or Count
// numbered placeholder pairs when Slides is empty. Useful offline and in tests.
type MockLLM struct {
	Count  int
	Slides []Pair
	// Prompts records every prompt received.
	Prompts []Prompt
}

func (m *MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	pairs := m.Slides
	if len(pairs) == 0 {
		n := m.Count
		if n <= 0 {
			n = 3
		}
		for i := 1; i <= n; i++ {
			pairs = append(pairs, Pair{
				PrimaryText:   fmt.Sprintf("Slide %d", i),
				SecondaryText: fmt.Sprintf("Supporting line %d", i),
			})
		}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
