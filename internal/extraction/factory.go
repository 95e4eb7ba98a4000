package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/flowrunner/internal/receipt"
)

// Extractor kinds accepted by New.
const (
	KindPlaceholder = "placeholder"
	KindGemini      = "gemini"
)

// Settings selects and configures an extractor.
type Settings struct {
	Kind         string
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration // <= 0 leaves calls unbounded
}

// New builds the extractor named by s.Kind, wrapped in WithTimeout when a
// timeout is set.
func New(ctx context.Context, s Settings) (Extractor, error) {
	var ext Extractor
	switch s.Kind {
	case "", KindPlaceholder:
		ext = NewPlaceholder()
	case KindGemini:
		g, err := NewGemini(ctx, s.GeminiAPIKey, s.GeminiModel)
		if err != nil {
			return nil, err
		}
		ext = g
	default:
		return nil, fmt.Errorf("%w: unknown extractor %q", receipt.ErrConfiguration, s.Kind)
	}

	if s.Timeout > 0 {
		ext = WithTimeout(ext, s.Timeout)
	}
	return ext, nil
}
