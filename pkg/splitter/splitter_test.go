package splitter

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acervo-ai/acervo/pkg/models"
)

// charCounter approximates tokens as one per four characters, which keeps
// test fixtures small and sizes predictable.
type charCounter struct{}

func (charCounter) TokenCount(text, tier string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// paragraphs builds a text of n paragraphs with roughly tokensEach tokens.
func paragraphs(n, tokensEach int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("Parágrafo %d. ", i))
		b.WriteString(strings.Repeat("palavra ", tokensEach/2))
	}
	return b.String()
}

func TestForContentType(t *testing.T) {
	counter := charCounter{}

	tests := []struct {
		ct   models.ContentType
		want string
	}{
		{models.ContentTypeLei, "*splitter.NormativeSplitter"},
		{models.ContentTypeDecreto, "*splitter.NormativeSplitter"},
		{models.ContentTypeInstrucaoNormativa, "*splitter.NormativeSplitter"},
		{models.ContentTypeWiki, "*splitter.WikiSplitter"},
		{models.ContentTypeLivro, "*splitter.GenericSplitter"},
		{models.ContentTypeOutros, "*splitter.GenericSplitter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.ct), func(t *testing.T) {
			s := ForContentType(tt.ct, counter)
			assert.Equal(t, tt.want, fmt.Sprintf("%T", s))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     models.ContentType
	}{
		{
			name:     "normative markers",
			markdown: "LEI Nº 14.133\n\nArt. 1º Esta Lei estabelece.\n\nArt. 2º Aplica-se.\n\nArt. 3º Não se aplica.",
			want:     models.ContentTypeLei,
		},
		{
			name:     "markdown headings",
			markdown: "# Visão Geral\n\ntexto\n\n## Instalação\n\nmais texto",
			want:     models.ContentTypeWiki,
		},
		{
			name:     "unstructured prose",
			markdown: "Apenas texto corrido sem qualquer estrutura reconhecível.",
			want:     models.ContentTypeOutros,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.markdown))
		})
	}
}

func TestNormativeSplitter(t *testing.T) {
	counter := charCounter{}
	s := &NormativeSplitter{counter: counter}

	t.Run("splits at capitulo markers", func(t *testing.T) {
		// Each capítulo is large enough that packing keeps them separate.
		body := paragraphs(1, ChapterIdealTokens)
		markdown := "CAPÍTULO I\nDisposições Preliminares\n\n" + body +
			"\n\nCAPÍTULO II\nDas Definições\n\n" + body

		chapters, err := s.Split("Lei de Teste", markdown)
		require.NoError(t, err)
		require.Len(t, chapters, 2)

		assert.Contains(t, chapters[0].Title, "CAPÍTULO I")
		assert.Contains(t, chapters[1].Title, "CAPÍTULO II")
		assert.Equal(t, 0, chapters[0].OrdemDoc)
		assert.Equal(t, 1, chapters[1].OrdemDoc)
		assert.Greater(t, chapters[0].TokensTotal, 0)
	})

	t.Run("small articles pack together", func(t *testing.T) {
		var b strings.Builder
		for i := 1; i <= 10; i++ {
			fmt.Fprintf(&b, "Art. %dº Pequena disposição legal número %d.\n\n", i, i)
		}

		chapters, err := s.Split("Lei Curta", b.String())
		require.NoError(t, err)
		assert.Len(t, chapters, 1)
		assert.Contains(t, chapters[0].Conteudo, "Art. 1º")
		assert.Contains(t, chapters[0].Conteudo, "Art. 10º")
	})

	t.Run("empty content fails", func(t *testing.T) {
		_, err := s.Split("Vazia", "")
		assert.Error(t, err)
	})
}

func TestWikiSplitter(t *testing.T) {
	counter := charCounter{}
	s := &WikiSplitter{counter: counter}

	body := paragraphs(1, ChapterIdealTokens)
	markdown := "# Introdução\n\n" + body + "\n\n## Configuração\n\n" + body

	chapters, err := s.Split("Wiki", markdown)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, "Introdução", chapters[0].Title)
	assert.Equal(t, "Configuração", chapters[1].Title)
}

func TestGenericSplitter(t *testing.T) {
	counter := charCounter{}
	s := &GenericSplitter{counter: counter}

	t.Run("uses headings when present", func(t *testing.T) {
		body := paragraphs(1, ChapterIdealTokens)
		markdown := "# Parte Um\n\n" + body + "\n\n# Parte Dois\n\n" + body

		chapters, err := s.Split("Doc", markdown)
		require.NoError(t, err)
		assert.Len(t, chapters, 2)
	})

	t.Run("falls back to size-based split", func(t *testing.T) {
		markdown := paragraphs(6, ChapterIdealTokens/2)

		chapters, err := s.Split("Doc", markdown)
		require.NoError(t, err)
		require.Greater(t, len(chapters), 1)

		for i, ch := range chapters {
			assert.Equal(t, i, ch.OrdemDoc)
			assert.Equal(t, "Doc", ch.Title)
			assert.LessOrEqual(t, ch.TokensTotal, ChapterMaxTokens)
		}
	})

	t.Run("small document yields one chapter", func(t *testing.T) {
		chapters, err := s.Split("Doc", "Um texto curto qualquer.")
		require.NoError(t, err)
		assert.Len(t, chapters, 1)
	})
}

func TestChunkSplitter(t *testing.T) {
	counter := charCounter{}
	s := NewChunkSplitter(counter)

	t.Run("splits at subheadings", func(t *testing.T) {
		body := paragraphs(1, ChunkIdealTokens)
		text := "## Seção A\n\n" + body + "\n\n### Seção B\n\n" + body

		chunks := s.SplitChapter(text)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0, chunks[0].Ordinal)
		assert.Equal(t, 1, chunks[1].Ordinal)
	})

	t.Run("size-based fallback respects max", func(t *testing.T) {
		text := paragraphs(8, ChunkIdealTokens)

		chunks := s.SplitChapter(text)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, counter.TokenCount(c.Texto, "fast"), ChunkMaxTokens)
		}
	})

	t.Run("oversize single paragraph is hard cut", func(t *testing.T) {
		text := strings.Repeat("a", ChunkMaxTokens*4*2+100)

		chunks := s.SplitChapter(text)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, counter.TokenCount(c.Texto, "fast"), ChunkMaxTokens)
		}
	})

	t.Run("hard cut keeps accented characters whole", func(t *testing.T) {
		// "aá" is three bytes, so naive cuts at the four-bytes-per-token
		// limit land inside the two-byte rune.
		text := strings.Repeat("aá", ChunkMaxTokens*3)

		chunks := s.SplitChapter(text)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c.Texto))
		}
	})
}

func TestRuneBoundary(t *testing.T) {
	s := "maçã"

	// Byte 3 is the continuation byte of "ç"; the cut backs off to 2.
	assert.Equal(t, 2, runeBoundary(s, 3))
	assert.Equal(t, 4, runeBoundary(s, 4))
}

func TestSplitBySizeNoContentLoss(t *testing.T) {
	counter := charCounter{}
	text := paragraphs(10, 600)

	pieces := splitBySize(text, ChunkIdealTokens, ChunkMaxTokens, counter)

	joined := strings.Join(pieces, "\n\n")
	for i := 0; i < 10; i++ {
		assert.Contains(t, joined, fmt.Sprintf("Parágrafo %d.", i))
	}
}
