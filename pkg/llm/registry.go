package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ModelRegistry maps model names to the providers that serve them. The
// mapping is built once from each provider's registered model list and
// cached; lookups never call a provider API. Call Refresh to rebuild.
type ModelRegistry struct {
	mu              sync.RWMutex
	providers       []Provider
	entries         map[string]registryEntry // normalized name -> entry
	order           []string                 // registration order for stable iteration
	defaultProvider Provider
	logger          hclog.Logger
}

type registryEntry struct {
	provider Provider
	info     ModelInfo
}

// RegistryConfig holds configuration for the model registry.
type RegistryConfig struct {
	// Providers to index, in priority order. On alias collisions the
	// earlier provider wins.
	Providers []Provider

	// DefaultProvider handles lookups that match nothing. Optional; when
	// nil, unmatched lookups return ErrNoProviderForModel.
	DefaultProvider Provider

	// Logger (optional).
	Logger hclog.Logger
}

// NewModelRegistry builds the registry and loads every provider's model
// list. A provider whose listing fails is logged and skipped; its models
// can be picked up later by Refresh.
func NewModelRegistry(ctx context.Context, cfg RegistryConfig) (*ModelRegistry, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	r := &ModelRegistry{
		providers:       cfg.Providers,
		defaultProvider: cfg.DefaultProvider,
		logger:          cfg.Logger.Named("model-registry"),
	}

	if err := r.Refresh(ctx); err != nil {
		// A partial registry is still usable; callers with a default
		// provider keep working even when listings fail at startup.
		r.logger.Warn("model listing incomplete", "error", err)
	}

	return r, nil
}

// Refresh rebuilds the model index from every provider. Safe to call
// concurrently with lookups.
func (r *ModelRegistry) Refresh(ctx context.Context) error {
	entries := make(map[string]registryEntry)
	order := make([]string, 0)

	var result *multierror.Error
	for _, p := range r.providers {
		models, err := p.RegisteredModels(ctx)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("provider %s: %w", p.Name(), err))
			continue
		}

		for _, m := range models {
			names := append([]string{m.Name}, m.Aliases...)
			for _, name := range names {
				key := normalizeModelName(name)
				if key == "" {
					continue
				}
				if _, exists := entries[key]; exists {
					continue // first registration wins
				}
				entries[key] = registryEntry{provider: p, info: m}
				order = append(order, key)
			}
		}

		r.logger.Debug("indexed provider models", "provider", p.Name(), "count", len(models))
	}

	r.mu.Lock()
	r.entries = entries
	r.order = order
	r.mu.Unlock()

	return result.ErrorOrNil()
}

// Resolve finds the provider serving a model name. Matching runs in three
// passes over the normalized name: exact match, match with any provider
// prefix stripped ("openai/gpt-4o" -> "gpt-4o"), then substring. Substring
// matches are logged because they are a weak signal.
func (r *ModelRegistry) Resolve(model string) (Provider, ModelInfo, error) {
	key := normalizeModelName(model)

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Exact.
	if e, ok := r.entries[key]; ok {
		return e.provider, e.info, nil
	}

	// Prefix-stripped: "provider/model" forms on either side.
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		if e, ok := r.entries[key[idx+1:]]; ok {
			return e.provider, e.info, nil
		}
	}
	for _, name := range r.order {
		if idx := strings.LastIndex(name, "/"); idx >= 0 && name[idx+1:] == key {
			e := r.entries[name]
			return e.provider, e.info, nil
		}
	}

	// Substring, in registration order for determinism.
	if key != "" {
		for _, name := range r.order {
			if strings.Contains(name, key) || strings.Contains(key, name) {
				e := r.entries[name]
				r.logger.Warn("weak model match",
					"requested", model,
					"matched", e.info.Name,
					"provider", e.provider.Name(),
				)
				return e.provider, e.info, nil
			}
		}
	}

	if r.defaultProvider != nil {
		r.logger.Debug("model not indexed, using default provider",
			"model", model,
			"provider", r.defaultProvider.Name(),
		)
		return r.defaultProvider, ModelInfo{Name: model}, nil
	}

	return nil, ModelInfo{}, fmt.Errorf("%w: %q", ErrNoProviderForModel, model)
}

// Models returns a snapshot of every indexed model, one entry per canonical
// name.
func (r *ModelRegistry) Models() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	out := make([]ModelInfo, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		if seen[e.info.Name] {
			continue
		}
		seen[e.info.Name] = true
		out = append(out, e.info)
	}
	return out
}

// normalizeModelName lowercases, trims, and collapses internal whitespace
// so "GPT-4o " and "gpt-4o" resolve identically.
func normalizeModelName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
