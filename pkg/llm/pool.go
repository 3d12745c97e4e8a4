package llm

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Strategy selects how the pool routes a request across its providers.
type Strategy string

const (
	// StrategyPrimaryOnly always uses the first provider.
	StrategyPrimaryOnly Strategy = "PRIMARY_ONLY"

	// StrategyFailover tries providers in order until one succeeds.
	StrategyFailover Strategy = "FAILOVER"

	// StrategyRoundRobin rotates requests across providers.
	StrategyRoundRobin Strategy = "ROUND_ROBIN"

	// StrategyModelBased routes by the requested model via the registry.
	StrategyModelBased Strategy = "MODEL_BASED"

	// StrategySpecialized routes by the operation tags providers declare.
	StrategySpecialized Strategy = "SPECIALIZED"

	// StrategySmartRouting picks the provider whose matched model has the
	// largest context length, falling back to registration order on ties.
	StrategySmartRouting Strategy = "SMART_ROUTING"

	// StrategyDualVerification runs the request on the first two providers
	// and fails if their answers disagree beyond the tolerance.
	StrategyDualVerification Strategy = "DUAL_VERIFICATION"
)

const (
	// DefaultMaxRetries bounds retry attempts per provider for transient
	// errors when the pool config does not set its own limit.
	DefaultMaxRetries = 3

	// DefaultTimeout is the per-call deadline applied to every embeddings
	// and completion request when the pool config does not set one.
	DefaultTimeout = 30 * time.Second

	// dualVerifyTolerance is the maximum cosine distance between two
	// providers' embeddings before DUAL_VERIFICATION rejects the result.
	dualVerifyTolerance = 0.15
)

// Pool routes embedding and completion requests across a set of providers
// according to a configured strategy, with bounded retries on transient
// failures. All methods are safe for concurrent use.
type Pool struct {
	providers  []Provider
	registry   *ModelRegistry
	strategy   Strategy
	tokenizer  *Tokenizer
	maxRetries uint64
	timeout    time.Duration
	logger     hclog.Logger

	rrCounter atomic.Uint64
}

// PoolConfig holds configuration for the provider pool.
type PoolConfig struct {
	// Providers in priority order. Required.
	Providers []Provider

	// Registry for MODEL_BASED and SMART_ROUTING lookups. Required for
	// those strategies, optional otherwise.
	Registry *ModelRegistry

	// Strategy (default: PRIMARY_ONLY).
	Strategy Strategy

	// MaxRetries bounds retry attempts per provider on transient errors
	// (default: 3).
	MaxRetries int

	// Timeout is the deadline for one embeddings or completion call,
	// retries included (default: 30s).
	Timeout time.Duration

	// Tokenizer for TokenCount (default: NewTokenizer()).
	Tokenizer *Tokenizer

	// Logger (optional).
	Logger hclog.Logger
}

// NewPool creates a provider pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	if cfg.Strategy == "" {
		cfg.Strategy = StrategyPrimaryOnly
	}

	switch cfg.Strategy {
	case StrategyModelBased, StrategySmartRouting:
		if cfg.Registry == nil {
			return nil, fmt.Errorf("strategy %s requires a model registry", cfg.Strategy)
		}
	case StrategyDualVerification:
		if len(cfg.Providers) < 2 {
			return nil, fmt.Errorf("strategy %s requires at least two providers", cfg.Strategy)
		}
	case StrategyPrimaryOnly, StrategyFailover, StrategyRoundRobin, StrategySpecialized:
	default:
		return nil, fmt.Errorf("unknown routing strategy: %q", cfg.Strategy)
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Tokenizer == nil {
		cfg.Tokenizer = NewTokenizer()
	}

	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Pool{
		providers:  cfg.Providers,
		registry:   cfg.Registry,
		strategy:   cfg.Strategy,
		tokenizer:  cfg.Tokenizer,
		maxRetries: uint64(cfg.MaxRetries),
		timeout:    cfg.Timeout,
		logger:     cfg.Logger.Named("llm-pool"),
	}, nil
}

// Strategy returns the configured routing strategy.
func (p *Pool) Strategy() Strategy {
	return p.strategy
}

// TokenCount counts tokens in text using the given tokenizer tier.
func (p *Pool) TokenCount(text, tier string) int {
	return p.tokenizer.Count(text, tier)
}

// Embeddings generates embeddings for a batch of texts, routed by the
// pool's strategy. The pool's timeout bounds the whole call, retries
// included.
func (p *Pool) Embeddings(ctx context.Context, op Operation, texts []string, model string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.strategy == StrategyDualVerification {
		return p.dualVerifyEmbeddings(ctx, op, texts, model)
	}

	providers, err := p.candidates(op, model)
	if err != nil {
		return nil, err
	}

	var result *multierror.Error
	for _, prov := range providers {
		vectors, err := p.retryEmbeddings(ctx, prov, op, texts, model)
		if err == nil {
			return vectors, nil
		}

		result = multierror.Append(result, fmt.Errorf("provider %s: %w", prov.Name(), err))

		if p.strategy != StrategyFailover {
			return nil, err
		}

		p.logger.Warn("provider failed, failing over",
			"provider", prov.Name(),
			"model", model,
			"error", err,
		)
	}

	return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, result.ErrorOrNil())
}

// Completion generates a chat completion, routed by the pool's strategy.
// The pool's timeout bounds the whole call, retries included.
func (p *Pool) Completion(ctx context.Context, system, user, model string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.strategy == StrategyDualVerification {
		return p.dualVerifyCompletion(ctx, system, user, model)
	}

	providers, err := p.candidates(OperationDefault, model)
	if err != nil {
		return "", err
	}

	var result *multierror.Error
	for _, prov := range providers {
		text, err := p.retryCompletion(ctx, prov, system, user, model)
		if err == nil {
			return text, nil
		}

		result = multierror.Append(result, fmt.Errorf("provider %s: %w", prov.Name(), err))

		if p.strategy != StrategyFailover {
			return "", err
		}

		p.logger.Warn("provider failed, failing over",
			"provider", prov.Name(),
			"model", model,
			"error", err,
		)
	}

	return "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, result.ErrorOrNil())
}

// candidates returns the providers to try, in order, for one request.
func (p *Pool) candidates(op Operation, model string) ([]Provider, error) {
	switch p.strategy {
	case StrategyPrimaryOnly:
		return p.providers[:1], nil

	case StrategyFailover:
		return p.providers, nil

	case StrategyRoundRobin:
		n := p.rrCounter.Add(1) - 1
		return []Provider{p.providers[n%uint64(len(p.providers))]}, nil

	case StrategyModelBased:
		prov, _, err := p.registry.Resolve(model)
		if err != nil {
			return nil, err
		}
		return []Provider{prov}, nil

	case StrategySpecialized:
		for _, prov := range p.providers {
			if servesOperation(prov, op) {
				return []Provider{prov}, nil
			}
		}
		// No provider declares the operation; the first one serves it.
		return p.providers[:1], nil

	case StrategySmartRouting:
		return []Provider{p.smartRoute(model)}, nil
	}

	return nil, fmt.Errorf("unknown routing strategy: %q", p.strategy)
}

// smartRoute picks the provider whose registry entry for the model has the
// largest context length. A model unknown to the registry routes to the
// first provider.
func (p *Pool) smartRoute(model string) Provider {
	prov, info, err := p.registry.Resolve(model)
	if err != nil {
		return p.providers[0]
	}

	best := prov
	bestCtx := info.ContextLength
	for _, m := range p.registry.Models() {
		if m.Kind != info.Kind || m.ContextLength <= bestCtx {
			continue
		}
		if other, _, err := p.registry.Resolve(m.Name); err == nil {
			best = other
			bestCtx = m.ContextLength
		}
	}

	p.logger.Debug("smart routing decision",
		"model", model,
		"provider", best.Name(),
		"context_length", bestCtx,
	)

	return best
}

// dualVerifyEmbeddings runs the batch on the first two providers and
// accepts the primary's vectors only when each pair agrees within the
// cosine distance tolerance.
func (p *Pool) dualVerifyEmbeddings(ctx context.Context, op Operation, texts []string, model string) ([][]float32, error) {
	primary, secondary := p.providers[0], p.providers[1]

	a, err := p.retryEmbeddings(ctx, primary, op, texts, model)
	if err != nil {
		return nil, fmt.Errorf("primary provider %s: %w", primary.Name(), err)
	}

	b, err := p.retryEmbeddings(ctx, secondary, op, texts, model)
	if err != nil {
		return nil, fmt.Errorf("secondary provider %s: %w", secondary.Name(), err)
	}

	for i := range a {
		if len(a[i]) != len(b[i]) {
			// Different dimensionality cannot be compared; providers must
			// serve the same model for verification to be meaningful.
			return nil, fmt.Errorf("%w: dimension mismatch %d vs %d",
				ErrProviderDisagreement, len(a[i]), len(b[i]))
		}
		if d := cosineDistance(a[i], b[i]); d > dualVerifyTolerance {
			return nil, fmt.Errorf("%w: cosine distance %.4f on text %d",
				ErrProviderDisagreement, d, i)
		}
	}

	return a, nil
}

// dualVerifyCompletion runs the prompt on the first two providers and
// returns the primary's answer when both succeed. Completions are free
// text, so agreement means both produced a non-empty answer.
func (p *Pool) dualVerifyCompletion(ctx context.Context, system, user, model string) (string, error) {
	primary, secondary := p.providers[0], p.providers[1]

	a, err := p.retryCompletion(ctx, primary, system, user, model)
	if err != nil {
		return "", fmt.Errorf("primary provider %s: %w", primary.Name(), err)
	}

	b, err := p.retryCompletion(ctx, secondary, system, user, model)
	if err != nil {
		return "", fmt.Errorf("secondary provider %s: %w", secondary.Name(), err)
	}

	if a == "" || b == "" {
		return "", fmt.Errorf("%w: empty completion", ErrProviderDisagreement)
	}

	return a, nil
}

// retryEmbeddings calls one provider with bounded exponential backoff on
// transient errors. Permanent errors (4xx) fail immediately.
func (p *Pool) retryEmbeddings(ctx context.Context, prov Provider, op Operation, texts []string, model string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		var err error
		vectors, err = prov.Embeddings(ctx, op, texts, model)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, p.retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return vectors, nil
}

// retryCompletion is the completion counterpart of retryEmbeddings.
func (p *Pool) retryCompletion(ctx context.Context, prov Provider, system, user, model string) (string, error) {
	var text string

	operation := func() error {
		var err error
		text, err = prov.Completion(ctx, system, user, model)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, p.retryPolicy(ctx)); err != nil {
		return "", err
	}
	return text, nil
}

// retryPolicy builds the shared backoff policy: short exponential backoff,
// capped at the configured retry limit, honoring context cancellation.
func (p *Pool) retryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, p.maxRetries), ctx)
}

// servesOperation reports whether a provider declares the operation. An
// empty declaration means the provider serves everything.
func servesOperation(prov Provider, op Operation) bool {
	ops := prov.Operations()
	if len(ops) == 0 {
		return true
	}
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// cosineDistance returns 1 - cosine similarity of two vectors.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
