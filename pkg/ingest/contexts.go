package ingest

import (
	"context"
	"fmt"

	"github.com/acervo-ai/acervo/pkg/llm"
	"github.com/acervo-ai/acervo/pkg/models"
)

// Defaults applied when a model's registry entry does not declare limits.
const (
	defaultContextLength = 8192
	defaultDimensions    = 768
)

// LLMContext binds a completion model for the duration of one document's
// processing. Resolved once, before splitting, so summary generation and
// token counting use a consistent model.
type LLMContext struct {
	pool   *llm.Pool
	Model  string
	Params map[string]interface{}
}

// Completion generates a chat completion with the bound model.
func (c *LLMContext) Completion(ctx context.Context, system, user string) (string, error) {
	return c.pool.Completion(ctx, system, user, c.Model)
}

// TokenCount counts tokens using the pool's tokenizer.
func (c *LLMContext) TokenCount(text, tier string) int {
	return c.pool.TokenCount(text, tier)
}

// EmbeddingContext binds an embedding model plus its declared limits for
// the duration of one document's processing.
type EmbeddingContext struct {
	pool          *llm.Pool
	Model         string
	ContextLength int
	Dimensions    int
}

// Embeddings generates one vector per text in a single batched call.
func (c *EmbeddingContext) Embeddings(ctx context.Context, op llm.Operation, texts []string) ([][]float32, error) {
	return c.pool.Embeddings(ctx, op, texts, c.Model)
}

// TokenCount counts tokens using the pool's tokenizer.
func (c *EmbeddingContext) TokenCount(text, tier string) int {
	return c.pool.TokenCount(text, tier)
}

// ContextFactory resolves processing contexts. Model selection walks
// explicit caller override, then the library default, then the process-wide
// default; an unresolvable model fails here, before any work is done.
type ContextFactory struct {
	pool                   *llm.Pool
	registry               *llm.ModelRegistry
	defaultEmbeddingModel  string
	defaultCompletionModel string
}

// NewContextFactory creates a context factory.
func NewContextFactory(pool *llm.Pool, registry *llm.ModelRegistry, defaultEmbedding, defaultCompletion string) *ContextFactory {
	return &ContextFactory{
		pool:                   pool,
		registry:               registry,
		defaultEmbeddingModel:  defaultEmbedding,
		defaultCompletionModel: defaultCompletion,
	}
}

// LLMContext resolves the completion context for a document.
func (f *ContextFactory) LLMContext(override string, lib *models.Library) (*LLMContext, error) {
	model := resolveModel(override, lib.DefaultCompletionModel, f.defaultCompletionModel)
	if model == "" {
		return nil, fmt.Errorf("no completion model configured: %w", llm.ErrNoProviderForModel)
	}

	if _, _, err := f.registry.Resolve(model); err != nil {
		return nil, fmt.Errorf("completion model %q: %w", model, err)
	}

	return &LLMContext{
		pool:   f.pool,
		Model:  model,
		Params: make(map[string]interface{}),
	}, nil
}

// EmbeddingContext resolves the embedding context for a document, carrying
// the model's declared input cap and vector dimensions.
func (f *ContextFactory) EmbeddingContext(override string, lib *models.Library) (*EmbeddingContext, error) {
	model := resolveModel(override, lib.DefaultEmbeddingModel, f.defaultEmbeddingModel)
	if model == "" {
		return nil, fmt.Errorf("no embedding model configured: %w", llm.ErrNoProviderForModel)
	}

	_, info, err := f.registry.Resolve(model)
	if err != nil {
		return nil, fmt.Errorf("embedding model %q: %w", model, err)
	}

	ec := &EmbeddingContext{
		pool:          f.pool,
		Model:         model,
		ContextLength: info.ContextLength,
		Dimensions:    info.Dimensions,
	}
	if ec.ContextLength <= 0 {
		ec.ContextLength = defaultContextLength
	}
	if ec.Dimensions <= 0 {
		ec.Dimensions = defaultDimensions
	}
	return ec, nil
}

// resolveModel returns the first non-empty candidate.
func resolveModel(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
