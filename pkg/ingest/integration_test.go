package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"github.com/acervo-ai/acervo/internal/api"
	"github.com/acervo-ai/acervo/pkg/database"
	"github.com/acervo-ai/acervo/pkg/ingest"
	"github.com/acervo-ai/acervo/pkg/llm"
	"github.com/acervo-ai/acervo/pkg/models"
	"github.com/acervo-ai/acervo/pkg/search"
)

// startPostgres brings up a pgvector-enabled PostgreSQL container and
// returns a migrated connection.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("acervo_test"),
		tcpostgres.WithUsername("acervo"),
		tcpostgres.WithPassword("acervo"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := database.Config{
		Host:     host,
		Port:     port.Int(),
		User:     "acervo",
		Password: "acervo",
		DBName:   "acervo_test",
		SSLMode:  "disable",
	}
	db, err := database.Connect(cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, cfg, hclog.NewNullLogger()))

	return db
}

func newMockPool(t *testing.T) (*llm.Pool, *llm.ModelRegistry) {
	t.Helper()

	provider := llm.NewMockProvider().WithName("mock")
	registry, err := llm.NewModelRegistry(context.Background(), llm.RegistryConfig{
		Providers:       []llm.Provider{provider},
		DefaultProvider: provider,
		Logger:          hclog.NewNullLogger(),
	})
	require.NoError(t, err)

	pool, err := llm.NewPool(llm.PoolConfig{
		Providers: []llm.Provider{provider},
		Registry:  registry,
		Strategy:  llm.StrategyPrimaryOnly,
		Logger:    hclog.NewNullLogger(),
	})
	require.NoError(t, err)

	return pool, registry
}

func createLibrary(t *testing.T, db *gorm.DB) *models.Library {
	t.Helper()

	lib := models.Library{
		UUID:          uuid.New(),
		Name:          "Legislação de Teste",
		PesoSemantico: 0.6,
		PesoTextual:   0.4,
	}
	require.NoError(t, db.Create(&lib).Error)
	return &lib
}

// wikiFixture is long enough to split into multiple chapters.
func wikiFixture() string {
	var b strings.Builder
	b.WriteString("# Manual de Licitações\n\n")
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&b, "## Seção %d\n\n", i)
		for j := 0; j < 30; j++ {
			fmt.Fprintf(&b, "O pregão eletrônico é a modalidade preferencial para aquisição de bens e serviços comuns, conforme disciplinado em regulamento próprio (parágrafo %d.%d).\n\n", i, j)
		}
	}
	return b.String()
}

func TestIngestionPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("container-backed test")
	}

	ctx := context.Background()
	db := startPostgres(t)
	lib := createLibrary(t, db)

	uploader := ingest.NewUploader(db, nil, hclog.NewNullLogger())
	doc, err := uploader.UploadText(ctx, ingest.TextUpload{
		LibraryID:   lib.UUID,
		Title:       "Manual de Licitações",
		Markdown:    wikiFixture(),
		ContentType: models.ContentTypeWiki,
	})
	require.NoError(t, err)
	assert.NotZero(t, doc.Checksum)

	// The same content in the same library is a duplicate.
	_, err = uploader.UploadText(ctx, ingest.TextUpload{
		LibraryID: lib.UUID,
		Markdown:  wikiFixture(),
	})
	var dup *ingest.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, doc.ID, dup.ExistingID)
	assert.True(t, errors.Is(err, ingest.ErrDuplicateDocument))

	pool, registry := newMockPool(t)
	processor, err := ingest.NewProcessor(ingest.ProcessorConfig{
		DB:                     db,
		Pool:                   pool,
		Registry:               registry,
		Logger:                 hclog.NewNullLogger(),
		DefaultEmbeddingModel:  "mock-embed",
		DefaultCompletionModel: "mock-chat",
	})
	require.NoError(t, err)

	result, err := processor.Process(ctx, doc.ID, ingest.ProcessOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, ingest.StateProcessed, result.State)
	assert.Greater(t, result.ChaptersCount, 1)
	assert.Equal(t, result.EmbeddingsTotal, result.EmbeddingsSucceeded)
	assert.Zero(t, result.EmbeddingsFailed)

	state, err := ingest.DeriveState(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StateProcessed, state)

	// Reprocessing without overwrite is a no-op.
	again, err := processor.Process(ctx, doc.ID, ingest.ProcessOptions{})
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)

	// Overwrite discards derived rows and reingests from scratch.
	redo, err := processor.Process(ctx, doc.ID, ingest.ProcessOptions{Overwrite: true})
	require.NoError(t, err)
	assert.False(t, redo.AlreadyProcessed)
	assert.Equal(t, ingest.StateProcessed, redo.State)
	assert.Equal(t, result.ChaptersCount, redo.ChaptersCount)

	reloaded := models.Documento{ID: doc.ID}
	require.NoError(t, reloaded.Get(db))
	chapters, err := reloaded.CountChapters(db)
	require.NoError(t, err)
	assert.EqualValues(t, redo.ChaptersCount, chapters)
}

func TestProcessEndpointReportsExistingIngestion(t *testing.T) {
	if testing.Short() {
		t.Skip("container-backed test")
	}

	ctx := context.Background()
	db := startPostgres(t)
	lib := createLibrary(t, db)

	uploader := ingest.NewUploader(db, nil, hclog.NewNullLogger())
	doc, err := uploader.UploadText(ctx, ingest.TextUpload{
		LibraryID:   lib.UUID,
		Title:       "Manual de Licitações",
		Markdown:    wikiFixture(),
		ContentType: models.ContentTypeWiki,
	})
	require.NoError(t, err)

	pool, registry := newMockPool(t)
	processor, err := ingest.NewProcessor(ingest.ProcessorConfig{
		DB:                     db,
		Pool:                   pool,
		Registry:               registry,
		Logger:                 hclog.NewNullLogger(),
		DefaultEmbeddingModel:  "mock-embed",
		DefaultCompletionModel: "mock-chat",
	})
	require.NoError(t, err)

	result, err := processor.Process(ctx, doc.ID, ingest.ProcessOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)

	server := &api.Server{
		DB:        db,
		Logger:    hclog.NewNullLogger(),
		Processor: processor,
	}

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/documents/"+doc.UUID.String()+"/process", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status          string `json:"status"`
		ChaptersCount   int    `json:"chaptersCount"`
		EmbeddingsTotal int    `json:"embeddingsTotal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ALREADY_PROCESSED", body.Status)
	assert.Equal(t, result.ChaptersCount, body.ChaptersCount)
	assert.Equal(t, result.EmbeddingsTotal, body.EmbeddingsTotal)
}

func TestSearchOverIngestedDocument(t *testing.T) {
	if testing.Short() {
		t.Skip("container-backed test")
	}

	ctx := context.Background()
	db := startPostgres(t)
	lib := createLibrary(t, db)

	uploader := ingest.NewUploader(db, nil, hclog.NewNullLogger())
	doc, err := uploader.UploadText(ctx, ingest.TextUpload{
		LibraryID:   lib.UUID,
		Title:       "Manual de Licitações",
		Markdown:    wikiFixture(),
		ContentType: models.ContentTypeWiki,
	})
	require.NoError(t, err)

	pool, registry := newMockPool(t)
	processor, err := ingest.NewProcessor(ingest.ProcessorConfig{
		DB:                     db,
		Pool:                   pool,
		Registry:               registry,
		Logger:                 hclog.NewNullLogger(),
		DefaultEmbeddingModel:  "mock-embed",
		DefaultCompletionModel: "mock-chat",
	})
	require.NoError(t, err)

	result, err := processor.Process(ctx, doc.ID, ingest.ProcessOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)

	svc, err := search.NewService(search.ServiceConfig{
		DB:                    db,
		Pool:                  pool,
		DefaultEmbeddingModel: "mock-embed",
		Logger:                hclog.NewNullLogger(),
	})
	require.NoError(t, err)

	req := search.Request{
		Query:      "pregão eletrônico",
		LibraryIDs: []uuid.UUID{lib.UUID},
		Limit:      5,
	}

	hybrid, err := svc.Hybrid(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, hybrid)
	assert.LessOrEqual(t, len(hybrid), 5)
	assert.Equal(t, "Manual de Licitações", hybrid[0].DocumentoTitle)
	assert.Greater(t, hybrid[0].Score, 0.0)
	for i := 1; i < len(hybrid); i++ {
		assert.GreaterOrEqual(t, hybrid[i-1].Score, hybrid[i].Score)
	}

	semantic, err := svc.Semantic(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, semantic)

	textual, err := svc.Textual(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, textual)

	// Scoping to an unknown library fails before any query runs.
	_, err = svc.Hybrid(ctx, search.Request{
		Query:      "pregão",
		LibraryIDs: []uuid.UUID{uuid.New()},
	})
	assert.Error(t, err)
}
