package database

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/acervo-ai/acervo/pkg/models"
)

// Config holds configuration for the database connection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Connection pool settings
	MaxIdleConns    int           // Maximum idle connections in pool (default: 10)
	MaxOpenConns    int           // Maximum open connections (default: 25)
	ConnMaxLifetime time.Duration // Maximum connection lifetime (default: 5 minutes)
	ConnMaxIdleTime time.Duration // Maximum connection idle time (default: 10 minutes)

	// VectorDimensions is the fixed dimension of the embedding column
	// (default: 768). All embeddings in one deployment share it.
	VectorDimensions int
}

// Connect establishes a database connection using the provided configuration.
func Connect(cfg Config, log hclog.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)

	gormConfig := &gorm.Config{}
	if log != nil {
		gormConfig.Logger = NewGormLogger(log.Named("gorm"))
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 10
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = 25
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	if log != nil {
		log.Info("connected to database",
			"host", cfg.Host,
			"database", cfg.DBName,
			"max_idle_conns", maxIdleConns,
			"max_open_conns", maxOpenConns,
		)
	}

	return db, nil
}

// Migrate runs AutoMigrate for all models and then applies the raw DDL that
// gorm cannot express: the pgvector extension, the vector column dimension,
// the generated full-text column, and the HNSW/GIN indexes.
//
// Timestamps are application-managed; no updated_at triggers are created.
func Migrate(db *gorm.DB, cfg Config, log hclog.Logger) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}

	dims := cfg.VectorDimensions
	if dims == 0 {
		dims = 768
	}

	// The struct tag declares vector(768); align the column when a different
	// dimension is configured. Safe to re-run: ALTER is a no-op on match.
	stmts := []string{
		fmt.Sprintf(
			`ALTER TABLE doc_embeddings ALTER COLUMN embedding_vector TYPE vector(%d)`,
			dims,
		),
		// Generated column combining the fragment text with the title
		// metadata fields, weighted A (title) / B (body).
		`ALTER TABLE doc_embeddings ADD COLUMN IF NOT EXISTS text_search tsvector
			GENERATED ALWAYS AS (
				setweight(to_tsvector('portuguese', coalesce(metadata->>'titulo', '')), 'A') ||
				setweight(to_tsvector('portuguese', coalesce(texto, '')), 'B')
			) STORED`,
		`CREATE INDEX IF NOT EXISTS idx_doc_embeddings_vector_hnsw
			ON doc_embeddings USING hnsw (embedding_vector vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_doc_embeddings_text_search
			ON doc_embeddings USING gin (text_search)`,
	}

	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply schema DDL: %w", err)
		}
	}

	if log != nil {
		log.Info("database schema migrated", "vector_dimensions", dims)
	}

	return nil
}
