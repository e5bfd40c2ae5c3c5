package prompt

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// estimateCharsPerToken is the fallback ratio for models without an exact
// tokenizer. Reasonable default for most models.
const estimateCharsPerToken = 4

// TokenCounter counts prompt tokens. OpenAI-family models get exact tiktoken
// counts; everything else falls back to a characters-per-token estimate.
type TokenCounter struct {
	cacheMu sync.RWMutex
	// codecCache caches tokenizer codecs by encoding name
	codecCache map[tokenizer.Encoding]tokenizer.Codec
}

// NewTokenCounter creates a token counter with an empty codec cache.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// Count returns the token count of text under the given model. estimated is
// true when no exact tokenizer exists and a character ratio was used instead.
func (c *TokenCounter) Count(model, text string) (n int, estimated bool) {
	if supportsExactCount(model) {
		if codec, err := c.getCodec(model); err == nil {
			if ids, _, err := codec.Encode(text); err == nil {
				return len(ids), false
			}
		}
	}
	return len(text) / estimateCharsPerToken, true
}

func supportsExactCount(model string) bool {
	model = strings.ToLower(model)
	for _, p := range []string{"gpt-", "o1", "o3", "o4", "text-embedding", "text-davinci"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// getCodec returns the tokenizer codec for a model, trying the model-specific
// codec first and falling back to the encoding family.
func (c *TokenCounter) getCodec(model string) (tokenizer.Codec, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(model)))
	if err == nil {
		return codec, nil
	}

	encoding := modelToEncoding(model)

	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	codec, err = tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, nil
}

// modelToEncoding maps model names to encoding names for fallback.
//
// Encoding reference:
// - O200kBase: GPT-4o, GPT-4.1, GPT-5, o-series and newer models
// - Cl100kBase: GPT-4, GPT-3.5-turbo
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase

	case strings.HasPrefix(model, "gpt-4"),
		strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase

	default:
		// Default to O200k_base for unknown/future models
		return tokenizer.O200kBase
	}
}
