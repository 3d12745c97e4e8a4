package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/hashicorp/go-hclog"
)

// BedrockAPI defines the Bedrock runtime operations used by the provider.
// This allows for testing with mocks.
type BedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider implements the Provider interface for AWS Bedrock.
// Completions use the Converse API; embeddings invoke Titan embed models.
type BedrockProvider struct {
	name       string
	client     BedrockAPI
	operations []Operation
	logger     hclog.Logger
}

// BedrockConfig holds configuration for the Bedrock provider.
type BedrockConfig struct {
	Name       string       // Provider name (default: "bedrock")
	Region     string       // AWS region (default: us-east-1)
	Client     BedrockAPI   // Optional pre-built client (tests)
	Operations []Operation  // Operation tags served (SPECIALIZED routing)
	Logger     hclog.Logger // Logger (optional)
}

// NewBedrockProvider creates a new AWS Bedrock provider.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Name == "" {
		cfg.Name = "bedrock"
	}

	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	client := cfg.Client
	if client == nil {
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = bedrockruntime.NewFromConfig(awsCfg)
	}

	return &BedrockProvider{
		name:       cfg.Name,
		client:     client,
		operations: cfg.Operations,
		logger:     cfg.Logger.Named("bedrock-provider"),
	}, nil
}

// Name returns the provider name.
func (p *BedrockProvider) Name() string {
	return p.name
}

// Operations returns the operation tags this provider serves.
func (p *BedrockProvider) Operations() []Operation {
	return p.operations
}

// RegisteredModels returns the foundation models this deployment declares.
// The runtime API cannot enumerate models, so the set is static; listing
// via the control-plane API would need a second client and IAM surface.
func (p *BedrockProvider) RegisteredModels(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{
		{
			Name:          "amazon.titan-embed-text-v2:0",
			Aliases:       []string{p.name + "/titan-embed-text-v2", "titan-embed-text-v2"},
			Kind:          ModelKindEmbedding,
			ContextLength: 8192,
			Dimensions:    1024,
		},
		{
			Name:          "amazon.titan-embed-text-v1",
			Aliases:       []string{p.name + "/titan-embed-text-v1", "titan-embed-text-v1"},
			Kind:          ModelKindEmbedding,
			ContextLength: 8192,
			Dimensions:    1536,
		},
		{
			Name:          "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
			Aliases:       []string{p.name + "/claude-3-7-sonnet", "claude-3-7-sonnet"},
			Kind:          ModelKindCompletion,
			ContextLength: 200000,
		},
		{
			Name:          "anthropic.claude-3-haiku-20240307-v1:0",
			Aliases:       []string{p.name + "/claude-3-haiku", "claude-3-haiku"},
			Kind:          ModelKindCompletion,
			ContextLength: 200000,
		},
	}, nil
}

// Embeddings generates embeddings via Titan embed models. The InvokeModel
// API takes one text per call, so batches fan out into sequential calls.
func (p *BedrockProvider) Embeddings(ctx context.Context, op Operation, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.invokeEmbedding(ctx, text, model)
		if err != nil {
			return nil, fmt.Errorf("embedding %d of %d: %w", i+1, len(texts), err)
		}
		vectors[i] = vec
	}

	p.logger.Debug("generated embeddings",
		"model", model,
		"operation", op,
		"batch_size", len(texts),
	)

	return vectors, nil
}

// invokeEmbedding calls a Titan embedding model for one text.
func (p *BedrockProvider) invokeEmbedding(ctx context.Context, text, model string) ([]float32, error) {
	reqBody, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Body:        reqBody,
	})
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Message: err.Error()}
	}

	var embResp titanEmbedResponse
	if err := json.Unmarshal(resp.Body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from Bedrock")
	}

	return embResp.Embedding, nil
}

// Completion generates a chat completion using the Converse API.
func (p *BedrockProvider) Completion(ctx context.Context, system, user, model string) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: user},
				},
			},
		},
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(0.3),
		},
	}

	resp, err := p.client.Converse(ctx, input)
	if err != nil {
		return "", &ProviderError{Provider: p.name, Message: err.Error()}
	}

	if resp.Output == nil {
		return "", fmt.Errorf("no output in Bedrock response")
	}

	message, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok || message == nil || len(message.Value.Content) == 0 {
		return "", fmt.Errorf("no message content in Bedrock response")
	}

	for _, block := range message.Value.Content {
		if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
			return textBlock.Value, nil
		}
	}

	return "", fmt.Errorf("empty response from Bedrock")
}

// Titan embedding API types

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
