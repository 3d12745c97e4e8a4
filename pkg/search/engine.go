package search

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// rrfK is the reciprocal-rank-fusion constant: score contribution is
// 1/(k + rank). 60 is the value from the original RRF paper and keeps
// single-list dominance in check.
const rrfK = 60

// DefaultLimit caps result sets when the caller does not specify one.
const DefaultLimit = 10

// SearchResult is one ranked retrieval unit, enriched with its parent
// chapter and document titles.
type SearchResult struct {
	EmbeddingID    uint    `json:"embeddingId" gorm:"column:embedding_id"`
	LibraryID      uint    `json:"libraryId" gorm:"column:library_id"`
	DocumentoID    uint    `json:"documentoId" gorm:"column:documento_id"`
	ChapterID      *uint   `json:"chapterId,omitempty" gorm:"column:chapter_id"`
	TipoEmbedding  string  `json:"tipoEmbedding" gorm:"column:tipo_embedding"`
	Texto          string  `json:"texto" gorm:"column:texto"`
	ChapterTitle   string  `json:"chapterTitle,omitempty" gorm:"column:chapter_title"`
	DocumentoTitle string  `json:"documentoTitle" gorm:"column:documento_title"`
	SemanticScore  float64 `json:"semanticScore" gorm:"column:semantic_score"`
	TextualScore   float64 `json:"textualScore" gorm:"column:textual_score"`
	Score          float64 `json:"score" gorm:"column:score"`
}

// Engine runs the three search operations against the database. Query
// vectors and tsquery strings are produced by the caller (see Service).
type Engine struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewEngine creates a search engine.
func NewEngine(db *gorm.DB, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{db: db, logger: logger.Named("search")}
}

// Semantic ranks embeddings by cosine distance to the query vector.
func (e *Engine) Semantic(ctx context.Context, queryVector []float32, libraryIDs []uint, limit int) ([]SearchResult, error) {
	if err := checkScope(libraryIDs); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	vec := pgvector.NewVector(queryVector)

	var results []SearchResult
	err := e.db.WithContext(ctx).Raw(`
		SELECT e.id AS embedding_id, e.library_id, e.documento_id, e.chapter_id,
		       e.tipo_embedding, e.texto,
		       COALESCE(c.title, '') AS chapter_title,
		       d.title AS documento_title,
		       1 - (e.embedding_vector <=> ?) AS semantic_score,
		       0::float8 AS textual_score,
		       1 - (e.embedding_vector <=> ?) AS score
		FROM doc_embeddings e
		JOIN documentos d ON d.id = e.documento_id
		LEFT JOIN chapters c ON c.id = e.chapter_id
		WHERE e.library_id IN ? AND e.embedding_vector IS NOT NULL
		ORDER BY e.embedding_vector <=> ?, e.id
		LIMIT ?`,
		vec, vec, libraryIDs, vec, limit,
	).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	return results, nil
}

// Textual ranks embeddings by ts_rank_cd against a preprocessed tsquery.
// The tsquery is bound and cast, never reparsed.
func (e *Engine) Textual(ctx context.Context, tsquery string, libraryIDs []uint, limit int) ([]SearchResult, error) {
	if err := checkScope(libraryIDs); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	var results []SearchResult
	err := e.db.WithContext(ctx).Raw(`
		SELECT e.id AS embedding_id, e.library_id, e.documento_id, e.chapter_id,
		       e.tipo_embedding, e.texto,
		       COALESCE(c.title, '') AS chapter_title,
		       d.title AS documento_title,
		       0::float8 AS semantic_score,
		       ts_rank_cd(e.text_search, ?::tsquery) AS textual_score,
		       ts_rank_cd(e.text_search, ?::tsquery) AS score
		FROM doc_embeddings e
		JOIN documentos d ON d.id = e.documento_id
		LEFT JOIN chapters c ON c.id = e.chapter_id
		WHERE e.library_id IN ? AND e.text_search @@ ?::tsquery
		ORDER BY score DESC, e.id
		LIMIT ?`,
		tsquery, tsquery, libraryIDs, tsquery, limit,
	).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("textual search failed: %w", err)
	}
	return results, nil
}

// Hybrid fuses semantic and textual rankings with reciprocal-rank fusion.
// An embedding appearing in only one list gets zero from the other side.
// Ties break by embedding id.
func (e *Engine) Hybrid(ctx context.Context, queryVector []float32, tsquery string, libraryIDs []uint, limit int, semanticWeight, textualWeight float32) ([]SearchResult, error) {
	if err := checkScope(libraryIDs); err != nil {
		return nil, err
	}
	if err := checkWeights(semanticWeight, textualWeight); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	vec := pgvector.NewVector(queryVector)

	// Each side keeps a candidate pool larger than the final limit so the
	// fusion has overlap to work with.
	pool := limit * 4

	var results []SearchResult
	err := e.db.WithContext(ctx).Raw(`
		WITH semantic_search AS (
			SELECT e.id,
			       ROW_NUMBER() OVER (ORDER BY e.embedding_vector <=> ?, e.id) AS rank
			FROM doc_embeddings e
			WHERE e.library_id IN ? AND e.embedding_vector IS NOT NULL
			ORDER BY e.embedding_vector <=> ?, e.id
			LIMIT ?
		),
		text_search AS (
			SELECT e.id,
			       ROW_NUMBER() OVER (ORDER BY ts_rank_cd(e.text_search, ?::tsquery) DESC, e.id) AS rank
			FROM doc_embeddings e
			WHERE e.library_id IN ? AND e.text_search @@ ?::tsquery
			ORDER BY ts_rank_cd(e.text_search, ?::tsquery) DESC, e.id
			LIMIT ?
		)
		SELECT e.id AS embedding_id, e.library_id, e.documento_id, e.chapter_id,
		       e.tipo_embedding, e.texto,
		       COALESCE(c.title, '') AS chapter_title,
		       d.title AS documento_title,
		       COALESCE(1.0 / (? + s.rank), 0) AS semantic_score,
		       COALESCE(1.0 / (? + t.rank), 0) AS textual_score,
		       ? * COALESCE(1.0 / (? + s.rank), 0) +
		       ? * COALESCE(1.0 / (? + t.rank), 0) AS score
		FROM doc_embeddings e
		JOIN documentos d ON d.id = e.documento_id
		LEFT JOIN chapters c ON c.id = e.chapter_id
		LEFT JOIN semantic_search s ON s.id = e.id
		LEFT JOIN text_search t ON t.id = e.id
		WHERE s.id IS NOT NULL OR t.id IS NOT NULL
		ORDER BY score DESC, e.id
		LIMIT ?`,
		vec, libraryIDs, vec, pool,
		tsquery, libraryIDs, tsquery, tsquery, pool,
		rrfK, rrfK,
		semanticWeight, rrfK,
		textualWeight, rrfK,
		limit,
	).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}

	e.logger.Debug("hybrid search executed",
		"libraries", len(libraryIDs),
		"results", len(results),
		"semantic_weight", semanticWeight,
		"textual_weight", textualWeight,
	)

	return results, nil
}

// checkScope rejects unscoped searches.
func checkScope(libraryIDs []uint) error {
	if len(libraryIDs) == 0 {
		return fmt.Errorf("at least one library id is required")
	}
	return nil
}

// checkWeights enforces the weight sum invariant.
func checkWeights(semantic, textual float32) error {
	sum := float64(semantic) + float64(textual)
	if sum < 0.999999 || sum > 1.000001 {
		return fmt.Errorf("semanticWeight + textualWeight must equal 1.0, got %g", sum)
	}
	return nil
}

// normalizeLimit applies the default limit.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
