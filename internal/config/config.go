// Package config loads and validates the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/acervo-ai/acervo/pkg/database"
	"github.com/acervo-ai/acervo/pkg/ingest"
	"github.com/acervo-ai/acervo/pkg/llm"
)

// Config is the full service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Log       Log       `yaml:"log"`
	Providers Providers `yaml:"providers"`
	Pool      Pool      `yaml:"pool"`
	Models    Models    `yaml:"models"`
	Ingestion Ingestion `yaml:"ingestion"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr string `yaml:"addr"`
}

// Database configures the PostgreSQL connection.
type Database struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	DBName           string `yaml:"dbname"`
	SSLMode          string `yaml:"sslmode"`
	MaxIdleConns     int    `yaml:"maxIdleConns"`
	MaxOpenConns     int    `yaml:"maxOpenConns"`
	VectorDimensions int    `yaml:"vectorDimensions"`
}

// ToDatabaseConfig maps to the connection package's config.
func (d Database) ToDatabaseConfig() database.Config {
	return database.Config{
		Host:             d.Host,
		Port:             d.Port,
		User:             d.User,
		Password:         d.Password,
		DBName:           d.DBName,
		SSLMode:          d.SSLMode,
		MaxIdleConns:     d.MaxIdleConns,
		MaxOpenConns:     d.MaxOpenConns,
		VectorDimensions: d.VectorDimensions,
	}
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Providers configures the LLM backends. A provider with no section is
// not started.
type Providers struct {
	OpenAI  *OpenAIProvider  `yaml:"openai,omitempty"`
	Ollama  *OllamaProvider  `yaml:"ollama,omitempty"`
	Bedrock *BedrockProvider `yaml:"bedrock,omitempty"`
}

// OpenAIProvider configures the OpenAI (or compatible) backend.
type OpenAIProvider struct {
	APIKey         string   `yaml:"apiKey"`
	BaseURL        string   `yaml:"baseUrl,omitempty"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty"`
	Operations     []string `yaml:"operations,omitempty"`
}

// OllamaProvider configures a local Ollama backend.
type OllamaProvider struct {
	BaseURL        string   `yaml:"baseUrl,omitempty"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty"`
	Operations     []string `yaml:"operations,omitempty"`
}

// BedrockProvider configures the AWS Bedrock backend.
type BedrockProvider struct {
	Region     string   `yaml:"region,omitempty"`
	Operations []string `yaml:"operations,omitempty"`
}

// Pool configures provider routing. DefaultProvider names the provider
// that serves models no configured provider lists; left empty, unknown
// models are rejected.
type Pool struct {
	Strategy        string `yaml:"strategy"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
	MaxRetries      int    `yaml:"maxRetries"`
	DefaultProvider string `yaml:"defaultProvider,omitempty"`
}

// Models sets the process-wide model fallbacks.
type Models struct {
	DefaultEmbeddingModel  string `yaml:"defaultEmbeddingModel"`
	DefaultCompletionModel string `yaml:"defaultCompletionModel"`
}

// Ingestion tunes the pipeline.
type Ingestion struct {
	Workers                  int     `yaml:"workers"`
	BatchSize                int     `yaml:"batchSize"`
	OversizeThresholdPercent float64 `yaml:"oversizeThresholdPercent"`
	SummaryThresholdTokens   int     `yaml:"summaryThresholdTokens"`
	SummaryMaxTokens         int     `yaml:"summaryMaxTokens"`
	IdealChunkSizeTokens     int     `yaml:"idealChunkSizeTokens"`
	StatusTTLMinutes         int     `yaml:"statusTtlMinutes"`
	MaxConvertedBytes        int     `yaml:"maxConvertedBytes"`
}

// StatusTTL returns the tracker retention as a duration.
func (i Ingestion) StatusTTL() time.Duration {
	if i.StatusTTLMinutes <= 0 {
		return ingest.DefaultStatusTTL
	}
	return time.Duration(i.StatusTTLMinutes) * time.Minute
}

// Default returns a configuration with working local defaults: Ollama on
// localhost and a PostgreSQL instance on the standard port.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080"},
		Database: Database{
			Host:             "localhost",
			Port:             5432,
			User:             "acervo",
			DBName:           "acervo",
			SSLMode:          "disable",
			VectorDimensions: 768,
		},
		Log: Log{Level: "info"},
		Providers: Providers{
			Ollama: &OllamaProvider{},
		},
		Pool: Pool{
			Strategy:       string(llm.StrategyPrimaryOnly),
			TimeoutSeconds: 30,
			MaxRetries:     llm.DefaultMaxRetries,
		},
		Models: Models{
			DefaultEmbeddingModel:  "nomic-embed-text",
			DefaultCompletionModel: "llama3.1",
		},
		Ingestion: Ingestion{
			Workers:                  ingest.DefaultWorkers,
			BatchSize:                ingest.DefaultBatchSize,
			OversizeThresholdPercent: ingest.DefaultOversizeThresholdPercent,
			SummaryThresholdTokens:   ingest.DefaultSummaryThresholdTokens,
			SummaryMaxTokens:         ingest.DefaultSummaryMaxTokens,
			IdealChunkSizeTokens:     ingest.DefaultIdealChunkSizeTokens,
		},
	}
}

// Load reads a YAML config file, layered over the defaults. A few
// deployment-sensitive values can be overridden from the environment so
// secrets stay out of the file.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// applyEnv layers environment overrides on top of the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("ACERVO_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ACERVO_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("ACERVO_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("ACERVO_OPENAI_API_KEY"); v != "" {
		if c.Providers.OpenAI == nil {
			c.Providers.OpenAI = &OpenAIProvider{}
		}
		c.Providers.OpenAI.APIKey = v
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Host, validation.Required),
		validation.Field(&c.Database.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Database.DBName, validation.Required),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := validation.ValidateStruct(&c.Models,
		validation.Field(&c.Models.DefaultEmbeddingModel, validation.Required),
		validation.Field(&c.Models.DefaultCompletionModel, validation.Required),
	); err != nil {
		return fmt.Errorf("models: %w", err)
	}

	switch llm.Strategy(c.Pool.Strategy) {
	case llm.StrategyPrimaryOnly, llm.StrategyFailover, llm.StrategyRoundRobin,
		llm.StrategyModelBased, llm.StrategySpecialized, llm.StrategySmartRouting,
		llm.StrategyDualVerification:
	default:
		return fmt.Errorf("pool: unknown strategy %q", c.Pool.Strategy)
	}

	if c.Providers.OpenAI == nil && c.Providers.Ollama == nil && c.Providers.Bedrock == nil {
		return fmt.Errorf("providers: at least one provider must be configured")
	}

	return nil
}

// Operations converts configured operation names to typed tags.
func Operations(names []string) []llm.Operation {
	ops := make([]llm.Operation, 0, len(names))
	for _, n := range names {
		ops = append(ops, llm.Operation(n))
	}
	return ops
}
