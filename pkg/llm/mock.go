package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// MockProvider is a Provider for testing. It generates deterministic
// embeddings and completions without calling external APIs.
type MockProvider struct {
	name           string
	dimensions     int
	operations     []Operation
	simulateErrors bool
	errorStatus    int
	delay          time.Duration
	completion     string

	// Call counters, useful for asserting retry and routing behavior.
	EmbeddingCalls  int
	CompletionCalls int
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:       "mock",
		dimensions: 768,
	}
}

// WithName sets a custom name for the provider.
func (p *MockProvider) WithName(name string) *MockProvider {
	p.name = name
	return p
}

// WithDimensions sets the embedding dimensions.
func (p *MockProvider) WithDimensions(dims int) *MockProvider {
	p.dimensions = dims
	return p
}

// WithOperations sets the operation tags served.
func (p *MockProvider) WithOperations(ops ...Operation) *MockProvider {
	p.operations = ops
	return p
}

// WithSimulateErrors makes every call fail with the given status code.
// Use 503 for transient failures and 404 for fail-fast ones.
func (p *MockProvider) WithSimulateErrors(status int) *MockProvider {
	p.simulateErrors = true
	p.errorStatus = status
	return p
}

// WithDelay adds artificial delay to simulate API latency.
func (p *MockProvider) WithDelay(d time.Duration) *MockProvider {
	p.delay = d
	return p
}

// WithCompletion sets a fixed completion response.
func (p *MockProvider) WithCompletion(text string) *MockProvider {
	p.completion = text
	return p
}

// Name returns the provider name.
func (p *MockProvider) Name() string {
	return p.name
}

// Operations returns the operation tags this provider serves.
func (p *MockProvider) Operations() []Operation {
	return p.operations
}

// RegisteredModels declares one embedding and one completion model, both
// prefixed with the provider name so two mocks never collide in a registry.
func (p *MockProvider) RegisteredModels(ctx context.Context) ([]ModelInfo, error) {
	if p.simulateErrors {
		return nil, &ProviderError{Provider: p.name, StatusCode: p.errorStatus, Message: "simulated failure"}
	}
	return []ModelInfo{
		{
			Name:          p.name + "-embed",
			Aliases:       []string{p.name + "/" + p.name + "-embed"},
			Kind:          ModelKindEmbedding,
			ContextLength: 8192,
			Dimensions:    p.dimensions,
		},
		{
			Name:          p.name + "-chat",
			Aliases:       []string{p.name + "/" + p.name + "-chat"},
			Kind:          ModelKindCompletion,
			ContextLength: 32768,
		},
	}, nil
}

// Embeddings returns one deterministic vector per text, derived from the
// text content so identical inputs always embed identically.
func (p *MockProvider) Embeddings(ctx context.Context, op Operation, texts []string, model string) ([][]float32, error) {
	p.EmbeddingCalls++

	if p.simulateErrors {
		return nil, &ProviderError{Provider: p.name, StatusCode: p.errorStatus, Message: "simulated failure"}
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = deterministicVector(text, p.dimensions)
	}
	return vectors, nil
}

// Completion returns the configured response, or an echo of the user prompt.
func (p *MockProvider) Completion(ctx context.Context, system, user, model string) (string, error) {
	p.CompletionCalls++

	if p.simulateErrors {
		return "", &ProviderError{Provider: p.name, StatusCode: p.errorStatus, Message: "simulated failure"}
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if p.completion != "" {
		return p.completion, nil
	}
	return fmt.Sprintf("mock completion for %d chars of input", len(user)), nil
}

// deterministicVector hashes the text into a repeatable pseudo-embedding.
func deterministicVector(text string, dims int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return vec
}
