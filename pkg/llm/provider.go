// Package llm provides the LLM provider pool: a set of configured providers
// (OpenAI, Ollama, AWS Bedrock) behind a unified embeddings/completion API,
// a cached model registry for model-to-provider routing, and token counting.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Operation tags the semantic intent of an embedding call. Providers that
// cannot distinguish operations treat everything as OperationDefault.
type Operation string

const (
	OperationQuery              Operation = "QUERY"
	OperationDocument           Operation = "DOCUMENT"
	OperationClustering         Operation = "CLUSTERING"
	OperationClassification     Operation = "CLASSIFICATION"
	OperationSemanticSimilarity Operation = "SEMANTIC_SIMILARITY"
	OperationFactCheck          Operation = "FACT_CHECK"
	OperationCodeRetrieval      Operation = "CODE_RETRIEVAL"
	OperationDefault            Operation = "DEFAULT"
)

// ModelKind distinguishes what a registered model can do.
type ModelKind string

const (
	ModelKindEmbedding  ModelKind = "embedding"
	ModelKindCompletion ModelKind = "completion"
)

// ModelInfo describes one model registered with a provider.
type ModelInfo struct {
	Name          string    // Canonical model name as the provider knows it
	Aliases       []string  // Alternate names (e.g., "openai/gpt-4o")
	Kind          ModelKind // Embedding or completion
	ContextLength int       // Declared input cap in tokens
	Dimensions    int       // Embedding dimensions (embedding models only)
}

// Provider is a single LLM backend. All methods are safe for concurrent use.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "ollama", "bedrock").
	Name() string

	// RegisteredModels enumerates the full set of models the provider
	// declares, not just the ones currently loaded. Called by the model
	// registry on initialization and explicit refresh only.
	RegisteredModels(ctx context.Context) ([]ModelInfo, error)

	// Embeddings generates one vector per input text in a single call.
	Embeddings(ctx context.Context, op Operation, texts []string, model string) ([][]float32, error)

	// Completion generates a chat completion for the given prompts.
	Completion(ctx context.Context, system, user, model string) (string, error)

	// Operations returns the operation tags this provider serves, used by
	// the SPECIALIZED routing strategy. Empty means all operations.
	Operations() []Operation
}

// Sentinel errors surfaced by the registry and pool.
var (
	// ErrNoProviderForModel is returned when a model lookup fails and no
	// default provider is configured.
	ErrNoProviderForModel = errors.New("no provider registered for model")

	// ErrAllProvidersFailed is returned when the FAILOVER strategy
	// exhausts every configured provider.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrProviderDisagreement is returned by DUAL_VERIFICATION when two
	// providers disagree beyond the configured tolerance.
	ErrProviderDisagreement = errors.New("providers disagree beyond tolerance")
)

// ProviderError wraps a provider API failure with enough information to
// decide between retry and fail-fast.
type ProviderError struct {
	Provider   string
	StatusCode int // HTTP status, 0 for transport-level failures
	Message    string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Transient reports whether the error is worth retrying. Timeouts,
// rate limits and 5xx are transient; 4xx (model not found, auth) fail fast.
func (e *ProviderError) Transient() bool {
	if e.StatusCode == 0 {
		return true // transport failure / timeout
	}
	if e.StatusCode == 429 {
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient reports whether err (or any error it wraps) is a retryable
// provider error.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
