package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/acervo.yaml", []byte(`
server:
  addr: ":9000"
database:
  host: db.internal
  port: 5433
  user: svc
  dbname: acervo_prod
  vectorDimensions: 1024
providers:
  openai:
    apiKey: sk-test
pool:
  strategy: FAILOVER
models:
  defaultEmbeddingModel: text-embedding-3-small
  defaultCompletionModel: gpt-4o-mini
ingestion:
  workers: 8
  batchSize: 20
`), 0o644))

	cfg, err := Load(fs, "/etc/acervo.yaml")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 1024, cfg.Database.VectorDimensions)
	assert.Equal(t, "FAILOVER", cfg.Pool.Strategy)
	assert.Equal(t, 8, cfg.Ingestion.Workers)
	assert.Equal(t, 20, cfg.Ingestion.BatchSize)
	require.NotNil(t, cfg.Providers.OpenAI)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)

	// Untouched sections keep their defaults.
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 2.0, cfg.Ingestion.OversizeThresholdPercent)
}

func TestLoadEnvOverrides(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/acervo.yaml", []byte(`
database:
  host: db.internal
  password: file-secret
`), 0o644))

	t.Setenv("ACERVO_DB_PASSWORD", "env-secret")
	t.Setenv("ACERVO_ADDR", ":7070")
	t.Setenv("ACERVO_OPENAI_API_KEY", "sk-env")

	cfg, err := Load(fs, "/etc/acervo.yaml")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Database.Password)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	require.NotNil(t, cfg.Providers.OpenAI)
	assert.Equal(t, "sk-env", cfg.Providers.OpenAI.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nope.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	t.Run("unknown strategy rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Pool.Strategy = "GUESSWORK"
		assert.Error(t, cfg.Validate())
	})

	t.Run("no providers rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Providers = Providers{}
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing models rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Models.DefaultEmbeddingModel = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestStatusTTL(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Ingestion.StatusTTL().Minutes(), 30.0)

	cfg.Ingestion.StatusTTLMinutes = 5
	assert.Equal(t, cfg.Ingestion.StatusTTL().Minutes(), 5.0)
}
