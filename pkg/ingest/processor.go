// Package ingest implements the document ingestion pipeline: overwrite
// control, context resolution, chapter splitting with NULL-vector persist,
// and batched vector computation. Interrupted runs are resumable because
// pending work is exactly the set of NULL-vector rows.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/acervo-ai/acervo/pkg/llm"
	"github.com/acervo-ai/acervo/pkg/models"
	"github.com/acervo-ai/acervo/pkg/splitter"
)

// Pipeline tuning defaults.
const (
	DefaultBatchSize                = 10
	DefaultOversizeThresholdPercent = 2.0
	DefaultSummaryThresholdTokens   = 2500
	DefaultSummaryMaxTokens         = 1024
	DefaultIdealChunkSizeTokens     = 2000
)

// metadataKeyResumo stores the condensed text used in place of an oversize
// original when computing its vector.
const metadataKeyResumo = "resumo"

// Processor runs the ingestion pipeline for one document at a time. Safe
// for concurrent use across documents.
type Processor struct {
	db       *gorm.DB
	pool     *llm.Pool
	contexts *ContextFactory
	tracker  *StatusTracker
	logger   hclog.Logger

	batchSize                int
	oversizeThresholdPercent float64
	summaryThresholdTokens   int
	summaryMaxTokens         int
	idealChunkSizeTokens     int
}

// ProcessorConfig holds configuration for the ingestion processor.
type ProcessorConfig struct {
	DB       *gorm.DB             // Required
	Pool     *llm.Pool            // Required
	Registry *llm.ModelRegistry   // Required
	Tracker  *StatusTracker       // Optional; created when nil
	Logger   hclog.Logger         // Optional

	// Process-wide model defaults, overridable per library and per call.
	DefaultEmbeddingModel  string
	DefaultCompletionModel string

	// Pipeline tuning; zero values use the defaults above.
	BatchSize                int
	OversizeThresholdPercent float64
	SummaryThresholdTokens   int
	SummaryMaxTokens         int
	IdealChunkSizeTokens     int
}

// NewProcessor creates an ingestion processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("provider pool is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("model registry is required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewStatusTracker(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.OversizeThresholdPercent <= 0 {
		cfg.OversizeThresholdPercent = DefaultOversizeThresholdPercent
	}
	if cfg.SummaryThresholdTokens <= 0 {
		cfg.SummaryThresholdTokens = DefaultSummaryThresholdTokens
	}
	if cfg.SummaryMaxTokens <= 0 {
		cfg.SummaryMaxTokens = DefaultSummaryMaxTokens
	}
	if cfg.IdealChunkSizeTokens <= 0 {
		cfg.IdealChunkSizeTokens = DefaultIdealChunkSizeTokens
	}

	return &Processor{
		db:                       cfg.DB,
		pool:                     cfg.Pool,
		contexts:                 NewContextFactory(cfg.Pool, cfg.Registry, cfg.DefaultEmbeddingModel, cfg.DefaultCompletionModel),
		tracker:                  cfg.Tracker,
		logger:                   cfg.Logger.Named("ingest"),
		batchSize:                cfg.BatchSize,
		oversizeThresholdPercent: cfg.OversizeThresholdPercent,
		summaryThresholdTokens:   cfg.SummaryThresholdTokens,
		summaryMaxTokens:         cfg.SummaryMaxTokens,
		idealChunkSizeTokens:     cfg.IdealChunkSizeTokens,
	}, nil
}

// Tracker exposes the processor's status tracker for polling handlers.
func (p *Processor) Tracker() *StatusTracker {
	return p.tracker
}

// ProcessOptions control one processing run.
type ProcessOptions struct {
	// Overwrite deletes derived chapters and embeddings before a full
	// reingest. Without it a processed document is a no-op and a partially
	// processed one resumes.
	Overwrite bool

	// IncludeSummary adds a document-level RESUMO embedding.
	IncludeSummary bool

	// IncludeQA adds generated question/answer embeddings per chapter.
	IncludeQA bool

	// Model overrides for this run; empty uses library then global defaults.
	EmbeddingModel  string
	CompletionModel string
}

// ProcessingResult summarizes one run. Success is true even with partial
// embedding failures; callers inspect the counts.
type ProcessingResult struct {
	DocumentID          uint  `json:"documentId"`
	State               State `json:"state"`
	ChaptersCount       int   `json:"chaptersCount"`
	EmbeddingsTotal     int   `json:"embeddingsTotal"`
	EmbeddingsSucceeded int   `json:"embeddingsSucceeded"`
	EmbeddingsFailed    int   `json:"embeddingsFailed"`
	AlreadyProcessed    bool  `json:"alreadyProcessed,omitempty"`
	Success             bool  `json:"success"`
}

// Process runs the pipeline for one document. Phases run strictly in
// order: overwrite control, context resolution, split and persist, then
// batched vector computation.
func (p *Processor) Process(ctx context.Context, documentoID uint, opts ProcessOptions) (*ProcessingResult, error) {
	doc := models.Documento{ID: documentoID}
	if err := doc.Get(p.db); err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", documentoID, err)
	}

	lib := models.Library{ID: doc.LibraryID}
	if err := lib.Get(p.db); err != nil {
		return nil, fmt.Errorf("failed to load library %d: %w", doc.LibraryID, err)
	}

	p.tracker.Start(doc.ID)

	// Phase 2.0: overwrite control.
	needSplit, already, err := p.prepare(&doc, opts.Overwrite)
	if err != nil {
		p.tracker.Complete(doc.ID, StateFailed, err.Error())
		return nil, err
	}
	if already != nil {
		p.tracker.Complete(doc.ID, StateProcessed, "")
		return already, nil
	}

	// Phase 2.1: contexts resolve before splitting because token counting
	// and oversize handling depend on them.
	llmCtx, err := p.contexts.LLMContext(opts.CompletionModel, &lib)
	if err != nil {
		p.tracker.Complete(doc.ID, StateFailed, err.Error())
		return nil, err
	}
	embCtx, err := p.contexts.EmbeddingContext(opts.EmbeddingModel, &lib)
	if err != nil {
		p.tracker.Complete(doc.ID, StateFailed, err.Error())
		return nil, err
	}

	// Phase 2.2: split and persist with NULL vectors.
	chaptersCount := 0
	if needSplit {
		chaptersCount, err = p.splitAndPersist(ctx, &doc, llmCtx, opts)
		if err != nil {
			p.tracker.Complete(doc.ID, StateFailed, err.Error())
			return nil, fmt.Errorf("splitting failed for document %d: %w", doc.ID, err)
		}
	} else {
		n, err := doc.CountChapters(p.db)
		if err != nil {
			p.tracker.Complete(doc.ID, StateFailed, err.Error())
			return nil, err
		}
		chaptersCount = int(n)
	}

	p.tracker.Update(doc.ID, func(r *ProgressRecord) {
		r.ChaptersCount = chaptersCount
	})

	// Phase 2.3: batched vector computation over the NULL-vector rows.
	succeeded, failed, err := p.computeVectors(ctx, &doc, llmCtx, embCtx)
	if err != nil {
		p.tracker.Complete(doc.ID, StateFailed, err.Error())
		return nil, err
	}

	total, pending, err := models.CountEmbeddingsByDocumento(p.db, doc.ID)
	if err != nil {
		return nil, err
	}

	state := StateProcessed
	if pending > 0 {
		state = StatePartial
	}
	p.tracker.Complete(doc.ID, state, "")

	p.logger.Info("document processed",
		"documento_id", doc.ID,
		"state", state,
		"chapters", chaptersCount,
		"embeddings_total", total,
		"embeddings_failed", failed,
	)

	return &ProcessingResult{
		DocumentID:          doc.ID,
		State:               state,
		ChaptersCount:       chaptersCount,
		EmbeddingsTotal:     int(total),
		EmbeddingsSucceeded: succeeded,
		EmbeddingsFailed:    failed,
		Success:             true,
	}, nil
}

// prepare implements the overwrite decision table. It returns whether
// splitting is needed, or a ready ProcessingResult when the document is
// already fully processed and overwrite was not requested.
func (p *Processor) prepare(doc *models.Documento, overwrite bool) (needSplit bool, already *ProcessingResult, err error) {
	chapters, err := doc.CountChapters(p.db)
	if err != nil {
		return false, nil, err
	}
	if chapters == 0 {
		return true, nil, nil
	}

	if overwrite {
		// Derived data goes; the documento row stays.
		p.logger.Warn("overwrite requested, deleting derived data",
			"documento_id", doc.ID,
			"chapters", chapters,
		)
		if _, err := models.DeleteChaptersByDocumento(p.db, doc.ID); err != nil {
			return false, nil, fmt.Errorf("failed to delete chapters: %w", err)
		}
		return true, nil, nil
	}

	total, pending, err := models.CountEmbeddingsByDocumento(p.db, doc.ID)
	if err != nil {
		return false, nil, err
	}
	if pending == 0 {
		return false, &ProcessingResult{
			DocumentID:       doc.ID,
			State:            StateProcessed,
			ChaptersCount:    int(chapters),
			EmbeddingsTotal:  int(total),
			AlreadyProcessed: true,
			Success:          true,
		}, nil
	}

	// Resume: recompute only the missing vectors.
	p.logger.Info("resuming partial ingestion",
		"documento_id", doc.ID,
		"pending", pending,
	)
	return false, nil, nil
}

// splitAndPersist runs phase 2.2: detect content type, split into chapters,
// derive embeddings with NULL vectors, and persist everything in one
// transaction. Completion calls run before the transaction opens; a slow
// provider must not hold row locks. Returns the chapter count.
func (p *Processor) splitAndPersist(ctx context.Context, doc *models.Documento, llmCtx *LLMContext, opts ProcessOptions) (int, error) {
	ct := doc.ContentType
	if ct == "" || ct == models.ContentTypeOutros {
		ct = splitter.DetectContentType(doc.Conteudo)
	}

	sp := splitter.ForContentType(ct, p.pool)
	parts, err := sp.Split(doc.Title, doc.Conteudo)
	if err != nil {
		return 0, err
	}
	if len(parts) == 0 {
		return 0, fmt.Errorf("splitter produced no chapters")
	}

	chunker := splitter.NewChunkSplitter(p.pool)

	chapters := make([]models.Chapter, len(parts))
	tokensTotal := 0
	for i, part := range parts {
		chapters[i] = models.Chapter{
			DocumentoID: doc.ID,
			Title:       part.Title,
			Conteudo:    part.Conteudo,
			OrdemDoc:    part.OrdemDoc,
			TokensTotal: part.TokensTotal,
		}
		tokensTotal += part.TokensTotal
	}

	enrichments := make([]chapterEnrichment, len(chapters))
	for i := range chapters {
		enr, err := p.enrichChapter(ctx, llmCtx, &chapters[i], opts)
		if err != nil {
			return 0, err
		}
		enrichments[i] = enr
	}

	var docSummary *models.DocEmbedding
	if opts.IncludeSummary {
		docSummary, err = p.buildDocumentSummary(ctx, doc, llmCtx)
		if err != nil {
			return 0, err
		}
	}

	err = p.db.Transaction(func(tx *gorm.DB) error {
		// Batch insert; gorm populates the generated ids.
		if err := tx.Create(&chapters).Error; err != nil {
			return fmt.Errorf("failed to insert chapters: %w", err)
		}

		var embeddings []models.DocEmbedding
		for i := range chapters {
			embeddings = append(embeddings, p.buildChapterEmbeddings(doc, &chapters[i], chunker, enrichments[i], opts)...)
		}

		if docSummary != nil {
			embeddings = append(embeddings, *docSummary)
		}

		if err := tx.CreateInBatches(&embeddings, 100).Error; err != nil {
			return fmt.Errorf("failed to insert embeddings: %w", err)
		}

		return tx.Model(doc).Update("tokens_total", tokensTotal).Error
	})
	if err != nil {
		return 0, err
	}

	return len(chapters), nil
}

// chapterEnrichment carries the LLM-derived texts for one chapter.
type chapterEnrichment struct {
	summary string
	qa      string
}

// enrichChapter runs the completion calls one chapter needs: a summary for
// chapters over the threshold and Q&A pairs when requested.
func (p *Processor) enrichChapter(ctx context.Context, llmCtx *LLMContext, ch *models.Chapter, opts ProcessOptions) (chapterEnrichment, error) {
	var enr chapterEnrichment

	if ch.TokensTotal > p.idealChunkSizeTokens && ch.TokensTotal > p.summaryThresholdTokens {
		summary, err := p.summarizeChapter(ctx, llmCtx, ch)
		if err != nil {
			return enr, fmt.Errorf("chapter %d summary failed: %w", ch.OrdemDoc, err)
		}
		enr.summary = summary
	}

	if opts.IncludeQA {
		qa, err := p.generateQA(ctx, llmCtx, ch)
		if err != nil {
			return enr, fmt.Errorf("chapter %d Q&A failed: %w", ch.OrdemDoc, err)
		}
		enr.qa = qa
	}

	return enr, nil
}

// buildChapterEmbeddings derives the NULL-vector embedding rows for one
// persisted chapter. Pure assembly; every LLM-derived text arrives in enr.
func (p *Processor) buildChapterEmbeddings(doc *models.Documento, ch *models.Chapter, chunker *splitter.ChunkSplitter, enr chapterEnrichment, opts ProcessOptions) []models.DocEmbedding {
	var embeddings []models.DocEmbedding

	if ch.TokensTotal <= p.idealChunkSizeTokens {
		// Small chapter: one trecho carrying the whole text, nothing else.
		embeddings = append(embeddings, models.DocEmbedding{
			LibraryID:     doc.LibraryID,
			DocumentoID:   doc.ID,
			ChapterID:     &ch.ID,
			TipoEmbedding: models.TipoTrecho,
			Texto:         ch.Conteudo,
			OrderChapter:  0,
		})
	} else {
		if enr.summary != "" {
			embeddings = append(embeddings, models.DocEmbedding{
				LibraryID:     doc.LibraryID,
				DocumentoID:   doc.ID,
				ChapterID:     &ch.ID,
				TipoEmbedding: models.TipoResumo,
				Texto:         enr.summary,
				OrderChapter:  models.ResumoOrderChapter,
			})
		}

		for _, chunk := range chunker.SplitChapter(ch.Conteudo) {
			embeddings = append(embeddings, models.DocEmbedding{
				LibraryID:     doc.LibraryID,
				DocumentoID:   doc.ID,
				ChapterID:     &ch.ID,
				TipoEmbedding: models.TipoTrecho,
				Texto:         chunk.Texto,
				OrderChapter:  chunk.Ordinal,
			})
		}
	}

	if opts.IncludeQA {
		embeddings = append(embeddings, models.DocEmbedding{
			LibraryID:     doc.LibraryID,
			DocumentoID:   doc.ID,
			ChapterID:     &ch.ID,
			TipoEmbedding: models.TipoPerguntasRespostas,
			Texto:         enr.qa,
			OrderChapter:  0,
		})
	}

	return embeddings
}

const summarySystemPrompt = "Você é um assistente que resume documentos técnicos e normativos em português. Responda apenas com o resumo, sem preâmbulo."

// summarizeChapter generates a bounded chapter summary.
func (p *Processor) summarizeChapter(ctx context.Context, llmCtx *LLMContext, ch *models.Chapter) (string, error) {
	user := fmt.Sprintf(
		"Resuma o texto a seguir em no máximo %d tokens, preservando os pontos essenciais:\n\n%s",
		p.summaryMaxTokens, ch.Conteudo,
	)
	summary, err := llmCtx.Completion(ctx, summarySystemPrompt, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

// buildDocumentSummary derives a document-level RESUMO embedding with no
// chapter reference.
func (p *Processor) buildDocumentSummary(ctx context.Context, doc *models.Documento, llmCtx *LLMContext) (*models.DocEmbedding, error) {
	content := doc.Conteudo
	// Keep the prompt within a reasonable completion window.
	content = truncateText(content, p.summaryMaxTokens*32)

	user := fmt.Sprintf(
		"Resuma o documento a seguir em no máximo %d tokens:\n\n%s",
		p.summaryMaxTokens, content,
	)
	summary, err := llmCtx.Completion(ctx, summarySystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("document summary failed: %w", err)
	}

	return &models.DocEmbedding{
		LibraryID:     doc.LibraryID,
		DocumentoID:   doc.ID,
		TipoEmbedding: models.TipoResumo,
		Texto:         strings.TrimSpace(summary),
		OrderChapter:  models.ResumoOrderChapter,
	}, nil
}

const qaSystemPrompt = "Você gera pares de pergunta e resposta em português a partir de um texto, no formato 'Pergunta: ...\\nResposta: ...'."

// generateQA produces question/answer pairs for one chapter.
func (p *Processor) generateQA(ctx context.Context, llmCtx *LLMContext, ch *models.Chapter) (string, error) {
	user := fmt.Sprintf(
		"Gere até 3 pares de pergunta e resposta que este texto responde:\n\n%s",
		ch.Conteudo,
	)
	qa, err := llmCtx.Completion(ctx, qaSystemPrompt, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(qa), nil
}

// computeVectors runs phase 2.3: load NULL-vector rows, batch them, handle
// oversize texts, dispatch one embedding call per batch, and write vectors
// per row. One batch failing does not abort the rest.
func (p *Processor) computeVectors(ctx context.Context, doc *models.Documento, llmCtx *LLMContext, embCtx *EmbeddingContext) (succeeded, failed int, err error) {
	pending, err := models.FindPendingEmbeddings(p.db, doc.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load pending embeddings: %w", err)
	}

	p.tracker.Update(doc.ID, func(r *ProgressRecord) {
		r.EmbeddingsTotal = len(pending)
	})

	for start := 0; start < len(pending); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			// Cancellation stops further batches; persisted progress stays.
			return succeeded, failed, nil
		}

		end := start + p.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		n, err := p.processBatch(ctx, batch, llmCtx, embCtx)
		succeeded += n
		failed += len(batch) - n
		if err != nil {
			p.logger.Error("embedding batch failed",
				"documento_id", doc.ID,
				"embedding_ids", batchIDs(batch),
				"error", err,
			)
		}

		p.tracker.Update(doc.ID, func(r *ProgressRecord) {
			r.EmbeddingsProcessed = succeeded
			r.EmbeddingsFailed = failed
		})
	}

	return succeeded, failed, nil
}

// processBatch embeds one batch and writes vectors row by row. Returns the
// number of rows successfully updated.
func (p *Processor) processBatch(ctx context.Context, batch []models.DocEmbedding, llmCtx *LLMContext, embCtx *EmbeddingContext) (int, error) {
	texts := make([]string, len(batch))
	for i := range batch {
		text, err := p.fitToContext(ctx, &batch[i], llmCtx, embCtx)
		if err != nil {
			return 0, err
		}
		texts[i] = text
	}

	vectors, err := embCtx.Embeddings(ctx, llm.OperationDocument, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors))
	}

	// Per-row updates so one failure cannot poison the batch.
	succeeded := 0
	for i := range batch {
		if err := models.UpdateEmbeddingVector(p.db, batch[i].ID, pgvector.NewVector(vectors[i])); err != nil {
			p.logger.Error("vector update failed",
				"embedding_id", batch[i].ID,
				"error", err,
			)
			continue
		}
		succeeded++
	}
	return succeeded, nil
}

// fitToContext returns the text to embed for one row, applying the
// oversize policy against the embedding model's input cap. Texts slightly
// over the cap are truncated; texts well over it are condensed by the LLM
// and the condensed form is stashed in the row's metadata.
func (p *Processor) fitToContext(ctx context.Context, e *models.DocEmbedding, llmCtx *LLMContext, embCtx *EmbeddingContext) (string, error) {
	tokens := embCtx.TokenCount(e.Texto, "fast")
	cap := embCtx.ContextLength
	if tokens <= cap {
		return e.Texto, nil
	}

	excessPercent := float64(tokens-cap) * 100 / float64(tokens)
	if excessPercent <= p.oversizeThresholdPercent {
		// Barely over: truncate on the ~4 chars/token heuristic.
		return truncateText(e.Texto, cap*4), nil
	}

	user := fmt.Sprintf(
		"Condense o texto a seguir para caber em %d tokens, sem perder o conteúdo essencial:\n\n%s",
		cap, e.Texto,
	)
	summary, err := llmCtx.Completion(ctx, summarySystemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("oversize condensation failed for embedding %d: %w", e.ID, err)
	}
	summary = strings.TrimSpace(summary)

	meta, merr := e.Metadata.MetadataMap()
	if merr != nil {
		meta = map[string]any{}
	}
	meta[metadataKeyResumo] = summary
	metaJSON, err := models.MetadataFromMap(meta)
	if err == nil {
		if err := p.db.Model(&models.DocEmbedding{}).
			Where("id = ?", e.ID).
			Update("metadata", metaJSON).Error; err != nil {
			p.logger.Warn("failed to persist oversize summary metadata",
				"embedding_id", e.ID,
				"error", err,
			)
		}
	}

	return summary, nil
}

// truncateText shortens s to at most limit bytes, backing off so the cut
// never lands inside a multi-byte rune.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// batchIDs collects row ids for failure logging.
func batchIDs(batch []models.DocEmbedding) []uint {
	ids := make([]uint, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}
	return ids
}
