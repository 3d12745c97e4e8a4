package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizerCount(t *testing.T) {
	tok := NewTokenizer()

	assert.Equal(t, 0, tok.Count("", "fast"))
	assert.Greater(t, tok.Count("uma frase curta em português", "fast"), 0)

	// Longer text always counts more tokens than shorter text, with the
	// real encoding or the fallback heuristic alike.
	short := tok.Count("palavra", "fast")
	long := tok.Count(strings.Repeat("palavra ", 200), "fast")
	assert.Greater(t, long, short)
}

func TestTokenizerUnknownTier(t *testing.T) {
	tok := NewTokenizer()

	// Unknown tiers fall back to the fast encoding rather than failing.
	text := "conteúdo de teste para contagem"
	assert.Equal(t, tok.Count(text, "fast"), tok.Count(text, "no-such-tier"))
}

func TestHeuristicTokenCount(t *testing.T) {
	assert.Equal(t, 1, heuristicTokenCount("ab"))
	assert.Equal(t, 1, heuristicTokenCount("abcd"))
	assert.Equal(t, 25, heuristicTokenCount(strings.Repeat("a", 100)))
}
