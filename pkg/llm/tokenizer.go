package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens using tiktoken BPE encodings, selected by an
// opaque tier key ("fast", "precise"). Encodings are loaded lazily and
// cached for the process lifetime.
//
// When an encoding cannot be loaded (offline environments), counting falls
// back to the ~4 characters per token heuristic so splitting still works.
type Tokenizer struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
	tiers    map[string]string
}

// NewTokenizer creates a tokenizer with the default tier mapping.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		encoders: make(map[string]*tiktoken.Tiktoken),
		tiers: map[string]string{
			"fast":    "cl100k_base",
			"precise": "o200k_base",
		},
	}
}

// Count returns the token count of text for the given tier. Unknown tiers
// use the "fast" encoding.
func (t *Tokenizer) Count(text, tier string) int {
	if text == "" {
		return 0
	}

	enc := t.encoder(tier)
	if enc == nil {
		return heuristicTokenCount(text)
	}

	return len(enc.Encode(text, nil, nil))
}

// encoder returns the cached encoding for a tier, loading it on first use.
func (t *Tokenizer) encoder(tier string) *tiktoken.Tiktoken {
	t.mu.Lock()
	defer t.mu.Unlock()

	name, ok := t.tiers[tier]
	if !ok {
		name = t.tiers["fast"]
	}

	if enc, ok := t.encoders[name]; ok {
		return enc
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		// Cache the miss so the fallback path stays cheap.
		t.encoders[name] = nil
		return nil
	}

	t.encoders[name] = enc
	return enc
}

// heuristicTokenCount approximates tokens as one per four characters.
func heuristicTokenCount(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
