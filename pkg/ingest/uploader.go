package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/acervo-ai/acervo/pkg/converter"
	"github.com/acervo-ai/acervo/pkg/models"
)

// MaxUploadBytes caps file uploads.
const MaxUploadBytes = 50 * 1024 * 1024

// Uploader persists new documents: conversion to Markdown, checksum-based
// deduplication, and Documento creation. Processing is a separate step.
type Uploader struct {
	db        *gorm.DB
	converter *converter.Converter
	logger    hclog.Logger
}

// NewUploader creates an uploader.
func NewUploader(db *gorm.DB, conv *converter.Converter, logger hclog.Logger) *Uploader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Uploader{
		db:        db,
		converter: conv,
		logger:    logger.Named("uploader"),
	}
}

// TextUpload is a Markdown document submitted directly.
type TextUpload struct {
	LibraryID      uuid.UUID          `json:"libraryId"`
	Title          string             `json:"title,omitempty"`
	Markdown       string             `json:"markdown"`
	ContentType    models.ContentType `json:"contentType,omitempty"`
	DataPublicacao string             `json:"dataPublicacao,omitempty"`
	FlagVigente    *bool              `json:"flagVigente,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
}

// Validate checks the upload request.
func (u TextUpload) Validate() error {
	if u.LibraryID == uuid.Nil {
		return fmt.Errorf("libraryId is required")
	}
	return validation.ValidateStruct(&u,
		validation.Field(&u.Markdown, validation.Required),
	)
}

// URLUpload is a document fetched from a web page.
type URLUpload struct {
	LibraryID uuid.UUID      `json:"libraryId"`
	URL       string         `json:"url"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate checks the upload request.
func (u URLUpload) Validate() error {
	if u.LibraryID == uuid.Nil {
		return fmt.Errorf("libraryId is required")
	}
	return validation.ValidateStruct(&u,
		validation.Field(&u.URL, validation.Required, is.URL),
	)
}

// FileUpload is a document submitted as raw file bytes.
type FileUpload struct {
	LibraryID uuid.UUID
	FileBytes []byte
	Filename  string
	Title     string
	Metadata  map[string]any
}

// Validate checks the upload request.
func (u FileUpload) Validate() error {
	if u.LibraryID == uuid.Nil {
		return fmt.Errorf("libraryId is required")
	}
	if len(u.FileBytes) == 0 {
		return fmt.Errorf("file content is required")
	}
	if len(u.FileBytes) > MaxUploadBytes {
		return fmt.Errorf("file is %d bytes, maximum is %d", len(u.FileBytes), MaxUploadBytes)
	}
	return nil
}

// UploadText persists a Markdown document after deduplication.
func (up *Uploader) UploadText(ctx context.Context, req TextUpload) (*models.Documento, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lib, err := models.GetLibraryByUUID(up.db, req.LibraryID)
	if err != nil {
		return nil, fmt.Errorf("library %s: %w", req.LibraryID, err)
	}

	markdown := strings.TrimSpace(req.Markdown)
	if markdown == "" {
		return nil, fmt.Errorf("markdown content is empty")
	}

	var dataPublicacao *time.Time
	if req.DataPublicacao != "" {
		parsed, err := dateparse.ParseAny(req.DataPublicacao)
		if err != nil {
			return nil, fmt.Errorf("invalid dataPublicacao %q: %w", req.DataPublicacao, err)
		}
		dataPublicacao = &parsed
	}

	checksum := Checksum(markdown)
	if existing, err := models.FindDocumentoByChecksum(up.db, lib.ID, checksum); err == nil {
		return nil, &DuplicateError{ExistingID: existing.ID, ExistingUUID: existing.UUID}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}

	metadata, err := models.MetadataFromMap(req.Metadata)
	if err != nil {
		return nil, err
	}

	flagVigente := true
	if req.FlagVigente != nil {
		flagVigente = *req.FlagVigente
	}

	title := req.Title
	if title == "" {
		title = deriveTitle(markdown)
	}

	doc := models.Documento{
		LibraryID:      lib.ID,
		Title:          title,
		Conteudo:       markdown,
		ContentType:    req.ContentType,
		DataPublicacao: dataPublicacao,
		FlagVigente:    flagVigente,
		Checksum:       checksum,
		Metadata:       metadata,
	}
	if err := up.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	up.logger.Info("document uploaded",
		"documento_id", doc.ID,
		"library_id", lib.ID,
		"title", doc.Title,
		"bytes", len(markdown),
	)

	return &doc, nil
}

// UploadURL fetches a page, extracts its readable content, and persists it.
func (up *Uploader) UploadURL(ctx context.Context, req URLUpload) (*models.Documento, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fetched, err := up.converter.FetchURL(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = fetched.Title
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["sourceUrl"] = req.URL

	return up.UploadText(ctx, TextUpload{
		LibraryID: req.LibraryID,
		Title:     title,
		Markdown:  fetched.Markdown,
		Metadata:  metadata,
	})
}

// UploadFile converts raw file bytes to Markdown and persists the result.
func (up *Uploader) UploadFile(ctx context.Context, req FileUpload) (*models.Documento, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	markdown, err := up.converter.ToMarkdown(req.FileBytes, converter.FormatUnknown, req.Filename)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = req.Filename
		if idx := strings.LastIndex(title, "."); idx > 0 {
			title = title[:idx]
		}
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["filename"] = req.Filename

	return up.UploadText(ctx, TextUpload{
		LibraryID: req.LibraryID,
		Title:     title,
		Markdown:  markdown,
		Metadata:  metadata,
	})
}

// deriveTitle uses the first heading or non-empty line as a title.
func deriveTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "# "))
		if line != "" {
			if len(line) > 200 {
				line = line[:200]
			}
			return line
		}
	}
	return "Sem título"
}
