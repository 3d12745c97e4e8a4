// Package ingestcmd implements the `acervo ingest` command.
package ingestcmd

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/acervo-ai/acervo/internal/config"
	"github.com/acervo-ai/acervo/internal/setup"
	"github.com/acervo-ai/acervo/pkg/converter"
	"github.com/acervo-ai/acervo/pkg/database"
	"github.com/acervo-ai/acervo/pkg/ingest"
	"github.com/acervo-ai/acervo/pkg/models"
)

// Command uploads one or more files from disk, optionally processing them
// synchronously.
type Command struct {
	UI cli.Ui

	flagConfig    string
	flagLibrary   string
	flagType      string
	flagDate      string
	flagTitle     string
	flagProcess   bool
	flagOverwrite bool
}

func (c *Command) Synopsis() string {
	return "Upload documents from local files"
}

func (c *Command) Help() string {
	return `Usage: acervo ingest -config=config.yaml -library=<uuid> [options] FILE...

  Uploads each file into the given library. Markdown and text files are
  stored as-is; HTML is converted. With -process each document is also
  split and embedded before the command returns.

Options:

  -library=<uuid>   Target library (required).
  -type=<type>      Content type: LEI, JURISPRUDENCIA, WIKI, OUTROS.
  -date=<date>      Publication date, any common format.
  -title=<title>    Document title; only valid with a single file.
  -process          Process synchronously after upload.
  -overwrite        With -process, reingest documents already processed.
`
}

func (c *Command) flags() *flag.FlagSet {
	f := flag.NewFlagSet("ingest", flag.ContinueOnError)
	f.StringVar(&c.flagConfig, "config", "config.yaml", "Path to the YAML config file")
	f.StringVar(&c.flagLibrary, "library", "", "Target library UUID")
	f.StringVar(&c.flagType, "type", "", "Content type")
	f.StringVar(&c.flagDate, "date", "", "Publication date")
	f.StringVar(&c.flagTitle, "title", "", "Document title")
	f.BoolVar(&c.flagProcess, "process", false, "Process synchronously after upload")
	f.BoolVar(&c.flagOverwrite, "overwrite", false, "Reingest already processed documents")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		return 1
	}

	files := f.Args()
	if len(files) == 0 {
		c.UI.Error("at least one file argument is required")
		return 1
	}
	if c.flagTitle != "" && len(files) > 1 {
		c.UI.Error("-title is only valid with a single file")
		return 1
	}

	libraryID, err := uuid.Parse(c.flagLibrary)
	if err != nil {
		c.UI.Error(fmt.Sprintf("invalid -library: %v", err))
		return 1
	}

	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	log := setup.Logger(cfg.Log, "acervo")
	ctx := context.Background()

	db, err := database.Connect(cfg.Database.ToDatabaseConfig(), log)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	conv := converter.New(converter.Config{
		MaxOutputBytes: cfg.Ingestion.MaxConvertedBytes,
		Logger:         log,
	})
	uploader := ingest.NewUploader(db, conv, log)

	var processor *ingest.Processor
	if c.flagProcess {
		pool, registry, err := setup.Pool(ctx, cfg, log)
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
		processor, err = ingest.NewProcessor(ingest.ProcessorConfig{
			DB:                       db,
			Pool:                     pool,
			Registry:                 registry,
			Logger:                   log,
			DefaultEmbeddingModel:    cfg.Models.DefaultEmbeddingModel,
			DefaultCompletionModel:   cfg.Models.DefaultCompletionModel,
			BatchSize:                cfg.Ingestion.BatchSize,
			OversizeThresholdPercent: cfg.Ingestion.OversizeThresholdPercent,
			SummaryThresholdTokens:   cfg.Ingestion.SummaryThresholdTokens,
			SummaryMaxTokens:         cfg.Ingestion.SummaryMaxTokens,
			IdealChunkSizeTokens:     cfg.Ingestion.IdealChunkSizeTokens,
		})
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
	}

	failed := 0
	for _, path := range files {
		if err := c.ingestFile(ctx, fs, uploader, processor, libraryID, path); err != nil {
			c.UI.Error(fmt.Sprintf("%s: %v", path, err))
			failed++
		}
	}

	if failed > 0 {
		c.UI.Error(fmt.Sprintf("%d of %d files failed", failed, len(files)))
		return 1
	}
	return 0
}

func (c *Command) ingestFile(ctx context.Context, fs afero.Fs, uploader *ingest.Uploader, processor *ingest.Processor, libraryID uuid.UUID, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}

	filename := filepath.Base(path)
	var doc *models.Documento

	// Markdown and plain text keep the text path so -type and -date apply
	// without a conversion round-trip.
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown", ".txt":
		doc, err = uploader.UploadText(ctx, ingest.TextUpload{
			LibraryID:      libraryID,
			Title:          c.flagTitle,
			Markdown:       string(data),
			ContentType:    models.ContentType(c.flagType),
			DataPublicacao: c.flagDate,
		})
	default:
		doc, err = uploader.UploadFile(ctx, ingest.FileUpload{
			LibraryID: libraryID,
			FileBytes: data,
			Filename:  filename,
			Title:     c.flagTitle,
		})
	}
	if err != nil {
		return err
	}

	c.UI.Output(fmt.Sprintf("uploaded %s as document %s (%q)", filename, doc.UUID, doc.Title))

	if processor == nil {
		return nil
	}

	result, err := processor.Process(ctx, doc.ID, ingest.ProcessOptions{Overwrite: c.flagOverwrite})
	if err != nil {
		return err
	}
	c.UI.Output(fmt.Sprintf("processed document %s: %s, %d chapters, %d/%d embeddings",
		doc.UUID, result.State, result.ChaptersCount, result.EmbeddingsSucceeded, result.EmbeddingsTotal))
	return nil
}
