// Package setup assembles the service dependencies from configuration.
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/acervo-ai/acervo/internal/config"
	"github.com/acervo-ai/acervo/pkg/llm"
)

// Logger builds the root logger from config.
func Logger(cfg config.Log, name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(cfg.Level),
		JSONFormat: cfg.JSON,
	})
}

// Providers builds the configured LLM providers in configuration order:
// OpenAI, then Ollama, then Bedrock. Order matters for PRIMARY_ONLY and
// FAILOVER routing.
func Providers(ctx context.Context, cfg config.Providers, log hclog.Logger) ([]llm.Provider, error) {
	var providers []llm.Provider

	if cfg.OpenAI != nil {
		p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
			Operations: config.Operations(cfg.OpenAI.Operations),
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		providers = append(providers, p)
	}

	if cfg.Ollama != nil {
		p, err := llm.NewOllamaProvider(llm.OllamaConfig{
			BaseURL:    cfg.Ollama.BaseURL,
			Timeout:    time.Duration(cfg.Ollama.TimeoutSeconds) * time.Second,
			Operations: config.Operations(cfg.Ollama.Operations),
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama provider: %w", err)
		}
		providers = append(providers, p)
	}

	if cfg.Bedrock != nil {
		p, err := llm.NewBedrockProvider(ctx, llm.BedrockConfig{
			Region:     cfg.Bedrock.Region,
			Operations: config.Operations(cfg.Bedrock.Operations),
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock provider: %w", err)
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return providers, nil
}

// Pool builds the model registry and provider pool.
func Pool(ctx context.Context, cfg config.Config, log hclog.Logger) (*llm.Pool, *llm.ModelRegistry, error) {
	providers, err := Providers(ctx, cfg.Providers, log)
	if err != nil {
		return nil, nil, err
	}

	defaultProvider, err := findProvider(providers, cfg.Pool.DefaultProvider)
	if err != nil {
		return nil, nil, err
	}

	registry, err := llm.NewModelRegistry(ctx, llm.RegistryConfig{
		Providers:       providers,
		DefaultProvider: defaultProvider,
		Logger:          log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("model registry: %w", err)
	}

	pool, err := llm.NewPool(llm.PoolConfig{
		Providers:  providers,
		Registry:   registry,
		Strategy:   llm.Strategy(cfg.Pool.Strategy),
		MaxRetries: cfg.Pool.MaxRetries,
		Timeout:    time.Duration(cfg.Pool.TimeoutSeconds) * time.Second,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("provider pool: %w", err)
	}

	return pool, registry, nil
}

// findProvider resolves a configured default provider name. An empty name
// means no default: requests for models no provider lists fail instead of
// being routed blindly.
func findProvider(providers []llm.Provider, name string) (llm.Provider, error) {
	if name == "" {
		return nil, nil
	}
	for _, p := range providers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("pool: default provider %q is not among the configured providers", name)
}
