package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// OpenAIProvider implements the Provider interface against OpenAI's API
// (or any OpenAI-compatible server such as LM Studio via BaseURL).
type OpenAIProvider struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	operations []Operation
	logger     hclog.Logger
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	Name       string        // Provider name (default: "openai")
	APIKey     string        // API key
	BaseURL    string        // Base URL (default: https://api.openai.com/v1)
	Timeout    time.Duration // HTTP timeout (default: 60s)
	Operations []Operation   // Operation tags served (SPECIALIZED routing)
	Logger     hclog.Logger  // Logger (optional)
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	if config.Name == "" {
		config.Name = "openai"
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	if config.Logger == nil {
		config.Logger = hclog.NewNullLogger()
	}

	return &OpenAIProvider{
		name:    config.Name,
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		operations: config.Operations,
		logger:     config.Logger.Named("openai-provider"),
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Operations returns the operation tags this provider serves.
func (p *OpenAIProvider) Operations() []Operation {
	return p.operations
}

// RegisteredModels lists the models declared by the API. Context lengths
// and embedding dimensions come from a static table of known models; the
// models endpoint does not report them.
func (p *OpenAIProvider) RegisteredModels(ctx context.Context) ([]ModelInfo, error) {
	respBody, err := p.doRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	var listResp openAIModelListResponse
	if err := json.Unmarshal(respBody, &listResp); err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	models := make([]ModelInfo, 0, len(listResp.Data))
	for _, m := range listResp.Data {
		models = append(models, p.describeModel(m.ID))
	}

	p.logger.Debug("listed registered models", "count", len(models))

	return models, nil
}

// describeModel fills in declared limits for known model families.
func (p *OpenAIProvider) describeModel(id string) ModelInfo {
	info := ModelInfo{
		Name:    id,
		Aliases: []string{p.name + "/" + id},
	}

	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "text-embedding-3-large"):
		info.Kind = ModelKindEmbedding
		info.ContextLength = 8191
		info.Dimensions = 3072
	case strings.HasPrefix(lower, "text-embedding"):
		info.Kind = ModelKindEmbedding
		info.ContextLength = 8191
		info.Dimensions = 1536
	case strings.HasPrefix(lower, "gpt-4o") || strings.HasPrefix(lower, "gpt-4-turbo"):
		info.Kind = ModelKindCompletion
		info.ContextLength = 128000
	case strings.HasPrefix(lower, "gpt-"), strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"):
		info.Kind = ModelKindCompletion
		info.ContextLength = 16385
	default:
		info.Kind = ModelKindCompletion
		info.ContextLength = 8192
	}

	return info
}

// Embeddings generates embeddings for a batch of texts in one API call.
func (p *OpenAIProvider) Embeddings(ctx context.Context, op Operation, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	// The embeddings endpoint has no operation parameter; all operations
	// behave as DEFAULT.
	reqBody := openAIEmbeddingRequest{
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

	respBody, err := p.doRequest(ctx, http.MethodPost, "/embeddings", reqJSON)
	if err != nil {
		return nil, err
	}

	var embResp openAIEmbeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embeddings response: %w", err)
	}

	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embResp.Data))
	}

	// The API may return data out of order; index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// Completion generates a chat completion.
func (p *OpenAIProvider) Completion(ctx context.Context, system, user, model string) (string, error) {
	reqBody := openAIChatRequest{
		Model: model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3, // Lower temperature for more consistent output
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := p.doRequest(ctx, http.MethodPost, "/chat/completions", reqJSON)
	if err != nil {
		return "", err
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	p.logger.Debug("generated completion",
		"model", model,
		"tokens_used", chatResp.Usage.TotalTokens,
	)

	return chatResp.Choices[0].Message.Content, nil
}

// doRequest sends a request and returns the raw response body, converting
// API failures into ProviderError.
func (p *OpenAIProvider) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		var errResp openAIErrorResponse
		msg := string(respBody)
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &ProviderError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	return respBody, nil
}

// OpenAI API types

type openAIModelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage openAIUsage `json:"usage"`
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      openAIChatMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage openAIUsage `json:"usage"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
