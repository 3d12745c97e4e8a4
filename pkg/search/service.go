package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/acervo-ai/acervo/pkg/llm"
	"github.com/acervo-ai/acervo/pkg/models"
)

// Service answers user queries: it resolves library scope and weights,
// generates the query vector and the preprocessed tsquery, and delegates
// ranking to the engine. Query vectors are never persisted.
type Service struct {
	db                    *gorm.DB
	engine                *Engine
	pool                  *llm.Pool
	defaultEmbeddingModel string
	logger                hclog.Logger
}

// ServiceConfig holds configuration for the search service.
type ServiceConfig struct {
	DB                    *gorm.DB  // Required
	Pool                  *llm.Pool // Required
	DefaultEmbeddingModel string    // Fallback when libraries declare none
	Logger                hclog.Logger
}

// NewService creates a search service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("provider pool is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Service{
		db:                    cfg.DB,
		engine:                NewEngine(cfg.DB, cfg.Logger),
		pool:                  cfg.Pool,
		defaultEmbeddingModel: cfg.DefaultEmbeddingModel,
		logger:                cfg.Logger.Named("search-service"),
	}, nil
}

// Request is one search invocation.
type Request struct {
	Query      string      `json:"query"`
	LibraryIDs []uuid.UUID `json:"libraryIds"`
	Limit      int         `json:"limit,omitempty"`

	// Weight overrides for hybrid search; when nil the first library's
	// configured weights apply.
	SemanticWeight *float32 `json:"semanticWeight,omitempty"`
	TextualWeight  *float32 `json:"textualWeight,omitempty"`
}

// scope is the resolved library scope of one request.
type scope struct {
	ids            []uint
	semanticWeight float32
	textualWeight  float32
	embeddingModel string
}

// resolveScope loads the requested libraries, collecting internal ids and
// the ranking defaults of the first library.
func (s *Service) resolveScope(req Request) (*scope, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if len(req.LibraryIDs) == 0 {
		return nil, fmt.Errorf("at least one library id is required")
	}

	sc := &scope{embeddingModel: s.defaultEmbeddingModel}
	for i, id := range req.LibraryIDs {
		lib, err := models.GetLibraryByUUID(s.db, id)
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", id, err)
		}
		sc.ids = append(sc.ids, lib.ID)
		if i == 0 {
			sc.semanticWeight = lib.PesoSemantico
			sc.textualWeight = lib.PesoTextual
			if lib.DefaultEmbeddingModel != "" {
				sc.embeddingModel = lib.DefaultEmbeddingModel
			}
		}
	}

	if req.SemanticWeight != nil {
		sc.semanticWeight = *req.SemanticWeight
	}
	if req.TextualWeight != nil {
		sc.textualWeight = *req.TextualWeight
	}

	return sc, nil
}

// queryVector embeds the query with QUERY operation semantics.
func (s *Service) queryVector(ctx context.Context, sc *scope, query string) ([]float32, error) {
	vectors, err := s.pool.Embeddings(ctx, llm.OperationQuery, []string{query}, sc.embeddingModel)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

// Semantic runs a vector-only search.
func (s *Service) Semantic(ctx context.Context, req Request) ([]SearchResult, error) {
	sc, err := s.resolveScope(req)
	if err != nil {
		return nil, err
	}

	vec, err := s.queryVector(ctx, sc, req.Query)
	if err != nil {
		return nil, err
	}

	return s.engine.Semantic(ctx, vec, sc.ids, req.Limit)
}

// Textual runs a tsvector-only search.
func (s *Service) Textual(ctx context.Context, req Request) ([]SearchResult, error) {
	sc, err := s.resolveScope(req)
	if err != nil {
		return nil, err
	}

	tsquery, err := PrepareTsquery(s.db, req.Query)
	if err != nil {
		return nil, err
	}

	return s.engine.Textual(ctx, tsquery, sc.ids, req.Limit)
}

// Hybrid runs the fused search. Query-vector generation and tsquery
// preprocessing are independent and run concurrently.
func (s *Service) Hybrid(ctx context.Context, req Request) ([]SearchResult, error) {
	sc, err := s.resolveScope(req)
	if err != nil {
		return nil, err
	}

	var (
		vec     []float32
		tsquery string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vec, err = s.queryVector(gctx, sc, req.Query)
		return err
	})
	g.Go(func() error {
		var err error
		tsquery, err = PrepareTsquery(s.db.WithContext(gctx), req.Query)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.engine.Hybrid(ctx, vec, tsquery, sc.ids, req.Limit, sc.semanticWeight, sc.textualWeight)
}
