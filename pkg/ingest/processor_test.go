package ingest

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acervo-ai/acervo/pkg/llm"
	"github.com/acervo-ai/acervo/pkg/models"
	"github.com/acervo-ai/acervo/pkg/splitter"
)

// newTestProcessor builds a processor without a database, enough for the
// pure derivation paths.
func newTestProcessor(t *testing.T) (*Processor, *ContextFactory, *llm.MockProvider) {
	t.Helper()

	factory, provider := newTestFactory(t)
	p := &Processor{
		pool:                     factory.pool,
		contexts:                 factory,
		tracker:                  NewStatusTracker(0),
		logger:                   hclog.NewNullLogger(),
		batchSize:                DefaultBatchSize,
		oversizeThresholdPercent: DefaultOversizeThresholdPercent,
		summaryThresholdTokens:   DefaultSummaryThresholdTokens,
		summaryMaxTokens:         DefaultSummaryMaxTokens,
		idealChunkSizeTokens:     DefaultIdealChunkSizeTokens,
	}
	return p, factory, provider
}

func TestBuildChapterEmbeddingsSmallChapter(t *testing.T) {
	p, factory, provider := newTestProcessor(t)

	llmCtx, err := factory.LLMContext("", &models.Library{})
	require.NoError(t, err)

	doc := &models.Documento{ID: 1, LibraryID: 2}
	ch := &models.Chapter{ID: 3, DocumentoID: 1, Conteudo: "Texto curto do capítulo.", TokensTotal: 120}

	enr, err := p.enrichChapter(context.Background(), llmCtx, ch, ProcessOptions{})
	require.NoError(t, err)
	assert.Zero(t, provider.CompletionCalls)

	rows := p.buildChapterEmbeddings(doc, ch, splitter.NewChunkSplitter(p.pool), enr, ProcessOptions{})

	// A chapter at or under the ideal size yields exactly one trecho
	// carrying its full text.
	require.Len(t, rows, 1)
	assert.Equal(t, models.TipoTrecho, rows[0].TipoEmbedding)
	assert.Equal(t, ch.Conteudo, rows[0].Texto)
	assert.Equal(t, 0, rows[0].OrderChapter)
	require.NotNil(t, rows[0].ChapterID)
	assert.Equal(t, ch.ID, *rows[0].ChapterID)
}

func TestBuildChapterEmbeddingsSummaryThreshold(t *testing.T) {
	p, factory, provider := newTestProcessor(t)
	provider.WithCompletion("resumo do capítulo")

	llmCtx, err := factory.LLMContext("", &models.Library{})
	require.NoError(t, err)

	doc := &models.Documento{ID: 1, LibraryID: 2}
	content := strings.Repeat("O pregão eletrônico é a modalidade preferencial.\n\n", 40)

	tests := []struct {
		name        string
		tokensTotal int
		wantResumo  bool
	}{
		{"at threshold stays plain", 2500, false},
		{"one over gets a summary", 2501, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &models.Chapter{ID: 3, DocumentoID: 1, Conteudo: content, TokensTotal: tt.tokensTotal}

			enr, err := p.enrichChapter(context.Background(), llmCtx, ch, ProcessOptions{})
			require.NoError(t, err)

			rows := p.buildChapterEmbeddings(doc, ch, splitter.NewChunkSplitter(p.pool), enr, ProcessOptions{})
			require.NotEmpty(t, rows)

			var resumos, trechos int
			for _, r := range rows {
				switch r.TipoEmbedding {
				case models.TipoResumo:
					resumos++
					assert.Equal(t, "resumo do capítulo", r.Texto)
					assert.Equal(t, models.ResumoOrderChapter, r.OrderChapter)
				case models.TipoTrecho:
					trechos++
				}
			}

			assert.Greater(t, trechos, 0)
			if tt.wantResumo {
				assert.Equal(t, 1, resumos)
			} else {
				assert.Zero(t, resumos)
			}
		})
	}
}

func TestBuildChapterEmbeddingsIncludeQA(t *testing.T) {
	p, factory, provider := newTestProcessor(t)
	provider.WithCompletion("Pergunta: o quê?\nResposta: isto.")

	llmCtx, err := factory.LLMContext("", &models.Library{})
	require.NoError(t, err)

	doc := &models.Documento{ID: 1, LibraryID: 2}
	ch := &models.Chapter{ID: 3, DocumentoID: 1, Conteudo: "Texto curto.", TokensTotal: 50}

	opts := ProcessOptions{IncludeQA: true}
	enr, err := p.enrichChapter(context.Background(), llmCtx, ch, opts)
	require.NoError(t, err)

	rows := p.buildChapterEmbeddings(doc, ch, splitter.NewChunkSplitter(p.pool), enr, opts)

	require.Len(t, rows, 2)
	assert.Equal(t, models.TipoTrecho, rows[0].TipoEmbedding)
	assert.Equal(t, models.TipoPerguntasRespostas, rows[1].TipoEmbedding)
	assert.Contains(t, rows[1].Texto, "Pergunta:")
}

func TestChapterCompletionsRunBeforeAssembly(t *testing.T) {
	p, factory, provider := newTestProcessor(t)
	provider.WithCompletion("resumo do capítulo")

	llmCtx, err := factory.LLMContext("", &models.Library{})
	require.NoError(t, err)

	doc := &models.Documento{ID: 1, LibraryID: 2}
	content := strings.Repeat("O pregão eletrônico é a modalidade preferencial.\n\n", 40)
	ch := &models.Chapter{ID: 3, DocumentoID: 1, Conteudo: content, TokensTotal: 3000}

	opts := ProcessOptions{IncludeQA: true}
	enr, err := p.enrichChapter(context.Background(), llmCtx, ch, opts)
	require.NoError(t, err)
	require.NotEmpty(t, enr.summary)
	require.NotEmpty(t, enr.qa)

	// Every completion happens during enrichment; row assembly, which runs
	// inside the persistence transaction, makes no provider calls.
	calls := provider.CompletionCalls
	rows := p.buildChapterEmbeddings(doc, ch, splitter.NewChunkSplitter(p.pool), enr, opts)
	require.NotEmpty(t, rows)
	assert.Equal(t, calls, provider.CompletionCalls)
}

func TestFitToContextPassThrough(t *testing.T) {
	p, factory, provider := newTestProcessor(t)

	llmCtx, err := factory.LLMContext("", &models.Library{})
	require.NoError(t, err)
	embCtx, err := factory.EmbeddingContext("", &models.Library{})
	require.NoError(t, err)

	e := &models.DocEmbedding{ID: 1, Texto: "cabe no contexto sem ajuste"}
	out, err := p.fitToContext(context.Background(), e, llmCtx, embCtx)
	require.NoError(t, err)
	assert.Equal(t, e.Texto, out)
	assert.Zero(t, provider.CompletionCalls)
}

func TestFitToContextTruncatesSlightOverflow(t *testing.T) {
	p, factory, provider := newTestProcessor(t)

	llmCtx, err := factory.LLMContext("", &models.Library{})
	require.NoError(t, err)
	embCtx, err := factory.EmbeddingContext("", &models.Library{})
	require.NoError(t, err)

	text := strings.Repeat("licitação pública municipal ", 400)
	tokens := embCtx.TokenCount(text, "fast")
	require.Greater(t, tokens, 100)

	// One token over the cap keeps the overflow under the condensation
	// threshold, so the text is truncated instead of summarized.
	embCtx.ContextLength = tokens - 1

	row := &models.DocEmbedding{ID: 1, Texto: text}
	out, err := p.fitToContext(context.Background(), row, llmCtx, embCtx)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), embCtx.ContextLength*4)
	assert.True(t, strings.HasPrefix(text, out))
	assert.True(t, utf8.ValidString(out))
	assert.Zero(t, provider.CompletionCalls, "slight overflow must not call the LLM")
}

func TestTruncateTextKeepsRunesWhole(t *testing.T) {
	s := "licitação"

	// Byte 7 is the continuation byte of "ç"; the cut backs off to the
	// rune boundary before it.
	assert.Equal(t, "licita", truncateText(s, 7))
	assert.Equal(t, s, truncateText(s, len(s)))
	assert.True(t, utf8.ValidString(truncateText(s, 9)))
}
