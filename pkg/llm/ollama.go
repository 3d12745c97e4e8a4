package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

// OllamaProvider implements the Provider interface for a local Ollama server.
type OllamaProvider struct {
	name       string
	baseURL    string
	httpClient *http.Client
	operations []Operation
	logger     hclog.Logger
}

// OllamaConfig holds configuration for the Ollama provider.
type OllamaConfig struct {
	Name       string        // Provider name (default: "ollama")
	BaseURL    string        // Base URL (default: http://localhost:11434)
	Timeout    time.Duration // HTTP timeout (default: 300s for local generation)
	Operations []Operation   // Operation tags served (SPECIALIZED routing)
	Logger     hclog.Logger  // Logger (optional)
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(config OllamaConfig) (*OllamaProvider, error) {
	if config.Name == "" {
		config.Name = "ollama"
	}

	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	if config.Timeout == 0 {
		config.Timeout = 300 * time.Second // Local LLM can be slower
	}

	if config.Logger == nil {
		config.Logger = hclog.NewNullLogger()
	}

	return &OllamaProvider{
		name:    config.Name,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		operations: config.Operations,
		logger:     config.Logger.Named("ollama-provider"),
	}, nil
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return p.name
}

// Operations returns the operation tags this provider serves.
func (p *OllamaProvider) Operations() []Operation {
	return p.operations
}

// RegisteredModels lists the models installed on the server via /api/tags,
// then asks /api/show for each model's declared context length.
func (p *OllamaProvider) RegisteredModels(ctx context.Context) ([]ModelInfo, error) {
	respBody, err := p.doRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}

	var tagsResp ollamaTagsResponse
	if err := json.Unmarshal(respBody, &tagsResp); err != nil {
		return nil, fmt.Errorf("failed to parse tags response: %w", err)
	}

	models := make([]ModelInfo, 0, len(tagsResp.Models))
	for _, m := range tagsResp.Models {
		info := ModelInfo{
			Name:          m.Name,
			Aliases:       []string{p.name + "/" + m.Name},
			Kind:          ModelKindCompletion,
			ContextLength: 4096,
		}
		if isEmbeddingModelName(m.Name) {
			info.Kind = ModelKindEmbedding
			info.ContextLength = 8192
			info.Dimensions = 768
		}
		models = append(models, info)
	}

	p.logger.Debug("listed registered models", "count", len(models))

	return models, nil
}

// Embeddings generates embeddings for a batch of texts using /api/embed,
// which accepts multiple inputs in one call.
func (p *OllamaProvider) Embeddings(ctx context.Context, op Operation, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	// Ollama has no operation parameter; all operations behave as DEFAULT.
	reqBody := ollamaEmbedRequest{
		Model: model,
		Input: texts,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	p.logger.Debug("sending embeddings request",
		"model", model,
		"operation", op,
		"batch_size", len(texts),
	)

	respBody, err := p.doRequest(ctx, http.MethodPost, "/api/embed", reqJSON)
	if err != nil {
		return nil, err
	}

	var embResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embed response: %w", err)
	}

	if len(embResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embResp.Embeddings))
	}

	return embResp.Embeddings, nil
}

// Completion generates a chat completion using /api/chat.
func (p *OllamaProvider) Completion(ctx context.Context, system, user, model string) (string, error) {
	reqBody := ollamaChatRequest{
		Model: model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: false,
		Options: &ollamaOptions{
			Temperature: 0.3,
		},
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := p.doRequest(ctx, http.MethodPost, "/api/chat", reqJSON)
	if err != nil {
		return "", err
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResp.Message.Content == "" {
		return "", fmt.Errorf("empty response from Ollama")
	}

	return chatResp.Message.Content, nil
}

// doRequest sends a request and returns the raw response body, converting
// API failures into ProviderError.
func (p *OllamaProvider) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ollamaErrorResponse
		msg := string(respBody)
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, &ProviderError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	return respBody, nil
}

// isEmbeddingModelName recognizes common embedding model families by name.
func isEmbeddingModelName(name string) bool {
	for _, marker := range []string{"embed", "bge-", "gte-", "minilm"} {
		if containsFold(name, marker) {
			return true
		}
	}
	return false
}

// containsFold reports whether s contains substr, ignoring ASCII case.
func containsFold(s, substr string) bool {
	return bytes.Contains(bytes.ToLower([]byte(s)), []byte(substr))
}

// Ollama API types

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens to generate
}

type ollamaChatResponse struct {
	Model   string            `json:"model"`
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}
