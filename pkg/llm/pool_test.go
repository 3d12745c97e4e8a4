package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolPrimaryOnly(t *testing.T) {
	ctx := context.Background()

	primary := NewMockProvider().WithName("primary")
	secondary := NewMockProvider().WithName("secondary")

	pool, err := NewPool(PoolConfig{
		Providers: []Provider{primary, secondary},
		Strategy:  StrategyPrimaryOnly,
	})
	require.NoError(t, err)

	_, err = pool.Embeddings(ctx, OperationDocument, []string{"texto"}, "primary-embed")
	require.NoError(t, err)

	assert.Equal(t, 1, primary.EmbeddingCalls)
	assert.Equal(t, 0, secondary.EmbeddingCalls)
}

func TestPoolFailover(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		primaryStatus int
		wantErr       bool
		wantSecondary int
	}{
		{
			name:          "transient failure fails over",
			primaryStatus: 503,
			wantSecondary: 1,
		},
		{
			name:          "permanent failure still fails over",
			primaryStatus: 404,
			wantSecondary: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := NewMockProvider().WithName("primary").WithSimulateErrors(tt.primaryStatus)
			secondary := NewMockProvider().WithName("secondary")

			pool, err := NewPool(PoolConfig{
				Providers: []Provider{primary, secondary},
				Strategy:  StrategyFailover,
			})
			require.NoError(t, err)

			vectors, err := pool.Embeddings(ctx, OperationDocument, []string{"texto"}, "m")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, vectors, 1)
			assert.Equal(t, tt.wantSecondary, secondary.EmbeddingCalls)
		})
	}
}

func TestPoolFailoverAllFail(t *testing.T) {
	ctx := context.Background()

	a := NewMockProvider().WithName("a").WithSimulateErrors(404)
	b := NewMockProvider().WithName("b").WithSimulateErrors(404)

	pool, err := NewPool(PoolConfig{
		Providers: []Provider{a, b},
		Strategy:  StrategyFailover,
	})
	require.NoError(t, err)

	_, err = pool.Completion(ctx, "system", "user", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestPoolRoundRobin(t *testing.T) {
	ctx := context.Background()

	a := NewMockProvider().WithName("a")
	b := NewMockProvider().WithName("b")

	pool, err := NewPool(PoolConfig{
		Providers: []Provider{a, b},
		Strategy:  StrategyRoundRobin,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := pool.Embeddings(ctx, OperationDefault, []string{"t"}, "m")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, a.EmbeddingCalls)
	assert.Equal(t, 2, b.EmbeddingCalls)
}

func TestPoolModelBased(t *testing.T) {
	ctx := context.Background()

	alpha := NewMockProvider().WithName("alpha")
	beta := NewMockProvider().WithName("beta")

	registry, err := NewModelRegistry(ctx, RegistryConfig{
		Providers: []Provider{alpha, beta},
	})
	require.NoError(t, err)

	pool, err := NewPool(PoolConfig{
		Providers: []Provider{alpha, beta},
		Registry:  registry,
		Strategy:  StrategyModelBased,
	})
	require.NoError(t, err)

	_, err = pool.Embeddings(ctx, OperationDocument, []string{"t"}, "beta-embed")
	require.NoError(t, err)

	assert.Equal(t, 0, alpha.EmbeddingCalls)
	assert.Equal(t, 1, beta.EmbeddingCalls)

	_, err = pool.Embeddings(ctx, OperationDocument, []string{"t"}, "no-such-model-xyz")
	assert.ErrorIs(t, err, ErrNoProviderForModel)
}

func TestPoolSpecialized(t *testing.T) {
	ctx := context.Background()

	queries := NewMockProvider().WithName("queries").WithOperations(OperationQuery)
	docs := NewMockProvider().WithName("docs").WithOperations(OperationDocument)

	pool, err := NewPool(PoolConfig{
		Providers: []Provider{queries, docs},
		Strategy:  StrategySpecialized,
	})
	require.NoError(t, err)

	_, err = pool.Embeddings(ctx, OperationDocument, []string{"t"}, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, docs.EmbeddingCalls)
	assert.Equal(t, 0, queries.EmbeddingCalls)

	// An operation nobody declares routes to the first provider.
	_, err = pool.Embeddings(ctx, OperationClustering, []string{"t"}, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, queries.EmbeddingCalls)
}

func TestPoolSmartRouting(t *testing.T) {
	ctx := context.Background()

	// Both declare completion models; big's has the larger context window.
	small := NewMockProvider().WithName("small")
	big := NewMockProvider().WithName("big")

	registry, err := NewModelRegistry(ctx, RegistryConfig{
		Providers: []Provider{small, big},
	})
	require.NoError(t, err)

	pool, err := NewPool(PoolConfig{
		Providers: []Provider{small, big},
		Registry:  registry,
		Strategy:  StrategySmartRouting,
	})
	require.NoError(t, err)

	// Mock models share context lengths, so the tie breaks to the first
	// registered provider for the requested model.
	_, err = pool.Completion(ctx, "sys", "user", "small-chat")
	require.NoError(t, err)
	assert.Equal(t, 1, small.CompletionCalls)
	assert.Equal(t, 0, big.CompletionCalls)
}

func TestPoolDualVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("identical embeddings agree", func(t *testing.T) {
		// Deterministic vectors depend only on text, so two mocks with the
		// same dimensions produce identical embeddings.
		a := NewMockProvider().WithName("a")
		b := NewMockProvider().WithName("b")

		pool, err := NewPool(PoolConfig{
			Providers: []Provider{a, b},
			Strategy:  StrategyDualVerification,
		})
		require.NoError(t, err)

		vectors, err := pool.Embeddings(ctx, OperationDocument, []string{"texto"}, "m")
		require.NoError(t, err)
		assert.Len(t, vectors, 1)
		assert.Equal(t, 1, a.EmbeddingCalls)
		assert.Equal(t, 1, b.EmbeddingCalls)
	})

	t.Run("dimension mismatch disagrees", func(t *testing.T) {
		a := NewMockProvider().WithName("a").WithDimensions(768)
		b := NewMockProvider().WithName("b").WithDimensions(1024)

		pool, err := NewPool(PoolConfig{
			Providers: []Provider{a, b},
			Strategy:  StrategyDualVerification,
		})
		require.NoError(t, err)

		_, err = pool.Embeddings(ctx, OperationDocument, []string{"texto"}, "m")
		assert.ErrorIs(t, err, ErrProviderDisagreement)
	})

	t.Run("requires two providers", func(t *testing.T) {
		_, err := NewPool(PoolConfig{
			Providers: []Provider{NewMockProvider()},
			Strategy:  StrategyDualVerification,
		})
		assert.Error(t, err)
	})
}

func TestPoolRetriesTransientOnly(t *testing.T) {
	ctx := context.Background()

	t.Run("transient retries up to the cap", func(t *testing.T) {
		flaky := NewMockProvider().WithName("flaky").WithSimulateErrors(503)

		pool, err := NewPool(PoolConfig{
			Providers: []Provider{flaky},
			Strategy:  StrategyPrimaryOnly,
		})
		require.NoError(t, err)

		_, err = pool.Embeddings(ctx, OperationDocument, []string{"t"}, "m")
		require.Error(t, err)
		assert.Equal(t, DefaultMaxRetries+1, flaky.EmbeddingCalls)
	})

	t.Run("configured retry cap is honored", func(t *testing.T) {
		flaky := NewMockProvider().WithName("flaky").WithSimulateErrors(503)

		pool, err := NewPool(PoolConfig{
			Providers:  []Provider{flaky},
			Strategy:   StrategyPrimaryOnly,
			MaxRetries: 1,
		})
		require.NoError(t, err)

		_, err = pool.Embeddings(ctx, OperationDocument, []string{"t"}, "m")
		require.Error(t, err)
		assert.Equal(t, 2, flaky.EmbeddingCalls)
	})

	t.Run("permanent fails fast", func(t *testing.T) {
		broken := NewMockProvider().WithName("broken").WithSimulateErrors(404)

		pool, err := NewPool(PoolConfig{
			Providers: []Provider{broken},
			Strategy:  StrategyPrimaryOnly,
		})
		require.NoError(t, err)

		_, err = pool.Completion(ctx, "sys", "user", "m")
		require.Error(t, err)
		assert.Equal(t, 1, broken.CompletionCalls)
	})
}

func TestPoolTimeoutBoundsCall(t *testing.T) {
	ctx := context.Background()

	slow := NewMockProvider().WithName("slow").WithDelay(5 * time.Second)

	pool, err := NewPool(PoolConfig{
		Providers: []Provider{slow},
		Strategy:  StrategyPrimaryOnly,
		Timeout:   50 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = pool.Embeddings(ctx, OperationDocument, []string{"t"}, "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The deadline covers retries too, so the slow provider is not retried.
	assert.Equal(t, 1, slow.EmbeddingCalls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.InDelta(t, 1, cosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-6)
}

func TestProviderErrorTransient(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"transport failure", 0, true},
		{"rate limited", 429, true},
		{"server error", 500, true},
		{"bad gateway", 502, true},
		{"not found", 404, false},
		{"unauthorized", 401, false},
		{"bad request", 400, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &ProviderError{Provider: "p", StatusCode: tt.status, Message: "x"}
			assert.Equal(t, tt.want, err.Transient())
			assert.Equal(t, tt.want, IsTransient(err))
		})
	}
}
