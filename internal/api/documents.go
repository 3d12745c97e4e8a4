package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acervo-ai/acervo/pkg/converter"
	"github.com/acervo-ai/acervo/pkg/ingest"
	"github.com/acervo-ai/acervo/pkg/models"
)

// uploadTextHandler creates a document from Markdown submitted directly.
func (s *Server) uploadTextHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ingest.TextUpload
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION_ERROR")
			return
		}

		doc, err := s.Uploader.UploadText(r.Context(), req)
		if err != nil {
			s.uploadError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, doc)
	})
}

// uploadURLHandler creates a document from a fetched web page.
func (s *Server) uploadURLHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ingest.URLUpload
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION_ERROR")
			return
		}

		doc, err := s.Uploader.UploadURL(r.Context(), req)
		if err != nil {
			s.uploadError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, doc)
	})
}

// uploadFileHandler creates a document from an uploaded file (multipart
// form, fields "file" and optionally "libraryId", "title").
func (s *Server) uploadFileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(ingest.MaxUploadBytes); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart form", "VALIDATION_ERROR")
			return
		}

		libraryID, err := uuid.Parse(r.FormValue("libraryId"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "libraryId must be a UUID", "VALIDATION_ERROR")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "file field is required", "VALIDATION_ERROR")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, ingest.MaxUploadBytes+1))
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read file", "VALIDATION_ERROR")
			return
		}

		doc, err := s.Uploader.UploadFile(r.Context(), ingest.FileUpload{
			LibraryID: libraryID,
			FileBytes: data,
			Filename:  header.Filename,
			Title:     r.FormValue("title"),
		})
		if err != nil {
			s.uploadError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, doc)
	})
}

// processRequest controls one processing run.
type processRequest struct {
	IncludeQA       bool   `json:"includeQA,omitempty"`
	IncludeSummary  bool   `json:"includeSummary,omitempty"`
	Overwrite       bool   `json:"overwrite,omitempty"`
	EmbeddingModel  string `json:"embeddingModel,omitempty"`
	CompletionModel string `json:"completionModel,omitempty"`
}

// processHandler schedules ingestion for a document. A fully processed
// document without overwrite returns 200 ALREADY_PROCESSED; otherwise the
// job runs asynchronously and 202 is returned with a status reference.
func (s *Server) processHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := s.documentFromPath(w, r)
		if !ok {
			return
		}

		var req processRequest
		if r.ContentLength > 0 {
			if err := decodeBody(r, &req); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION_ERROR")
				return
			}
		}

		opts := ingest.ProcessOptions{
			IncludeQA:       req.IncludeQA,
			IncludeSummary:  req.IncludeSummary,
			Overwrite:       req.Overwrite,
			EmbeddingModel:  req.EmbeddingModel,
			CompletionModel: req.CompletionModel,
		}

		if !opts.Overwrite {
			state, err := ingest.DeriveState(s.DB, doc.ID)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "failed to derive state", "PERSISTENCE_ERROR")
				return
			}
			if state == ingest.StateProcessed {
				total, _, _ := models.CountEmbeddingsByDocumento(s.DB, doc.ID)
				chapters, err := doc.CountChapters(s.DB)
				if err != nil {
					respondError(w, http.StatusInternalServerError, "failed to count chapters", "PERSISTENCE_ERROR")
					return
				}
				respondJSON(w, http.StatusOK, map[string]any{
					"status":          "ALREADY_PROCESSED",
					"documentId":      doc.UUID,
					"chaptersCount":   chapters,
					"embeddingsTotal": total,
					"hint":            "use overwrite=true to reingest",
				})
				return
			}
		}

		// The job outlives the request; detach from its cancellation.
		s.Dispatcher.Submit(context.WithoutCancel(r.Context()), doc.ID, opts)

		respondJSON(w, http.StatusAccepted, map[string]any{
			"status":     "ACCEPTED",
			"documentId": doc.UUID,
			"statusUrl":  "/api/v1/documents/" + doc.UUID.String() + "/status",
		})
	})
}

// statusHandler reports ingestion progress. In-flight runs come from the
// tracker; otherwise the state is derived from the database.
func (s *Server) statusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := s.documentFromPath(w, r)
		if !ok {
			return
		}

		if rec, ok := s.Processor.Tracker().Get(doc.ID); ok {
			respondJSON(w, http.StatusOK, rec)
			return
		}

		state, err := ingest.DeriveState(s.DB, doc.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to derive state", "PERSISTENCE_ERROR")
			return
		}
		total, pending, err := models.CountEmbeddingsByDocumento(s.DB, doc.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to count embeddings", "PERSISTENCE_ERROR")
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"documentId":          doc.UUID,
			"state":               state,
			"embeddingsTotal":     total,
			"embeddingsProcessed": total - pending,
		})
	})
}

// documentFromPath resolves the {id} path segment into a documento.
func (s *Server) documentFromPath(w http.ResponseWriter, r *http.Request) (*models.Documento, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "document id must be a UUID", "VALIDATION_ERROR")
		return nil, false
	}

	var doc models.Documento
	if err := s.DB.Where("uuid = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "document not found", "NOT_FOUND")
		} else {
			respondError(w, http.StatusInternalServerError, "failed to load document", "PERSISTENCE_ERROR")
		}
		return nil, false
	}
	return &doc, true
}

// uploadError maps upload failures onto status codes.
func (s *Server) uploadError(w http.ResponseWriter, err error) {
	var dup *ingest.DuplicateError
	switch {
	case errors.As(err, &dup):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":      "duplicate document",
			"code":       "DUPLICATE_DOCUMENT",
			"existingId": dup.ExistingUUID,
		})
	case errors.Is(err, converter.ErrUnsupportedFormat):
		respondError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_FORMAT")
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	default:
		s.Logger.Error("upload failed", "error", err)
		respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	}
}
