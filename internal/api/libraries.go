package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acervo-ai/acervo/pkg/models"
)

// libraryRequest creates or updates a library.
type libraryRequest struct {
	Name                   string   `json:"name"`
	KnowledgeArea          string   `json:"knowledgeArea,omitempty"`
	PesoSemantico          *float32 `json:"pesoSemantico,omitempty"`
	PesoTextual            *float32 `json:"pesoTextual,omitempty"`
	DefaultEmbeddingModel  string   `json:"defaultEmbeddingModel,omitempty"`
	DefaultCompletionModel string   `json:"defaultCompletionModel,omitempty"`
}

func (s *Server) createLibraryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req libraryRequest
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION_ERROR")
			return
		}

		lib := models.Library{
			Name:                   req.Name,
			KnowledgeArea:          req.KnowledgeArea,
			PesoSemantico:          0.5,
			PesoTextual:            0.5,
			DefaultEmbeddingModel:  req.DefaultEmbeddingModel,
			DefaultCompletionModel: req.DefaultCompletionModel,
		}
		if req.PesoSemantico != nil {
			lib.PesoSemantico = *req.PesoSemantico
		}
		if req.PesoTextual != nil {
			lib.PesoTextual = *req.PesoTextual
		}

		if err := s.DB.Create(&lib).Error; err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		respondJSON(w, http.StatusCreated, lib)
	})
}

func (s *Server) listLibrariesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var libs []models.Library
		if err := s.DB.Order("id").Find(&libs).Error; err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list libraries", "PERSISTENCE_ERROR")
			return
		}
		respondJSON(w, http.StatusOK, libs)
	})
}

func (s *Server) getLibraryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lib, ok := s.libraryFromPath(w, r)
		if !ok {
			return
		}
		respondJSON(w, http.StatusOK, lib)
	})
}

func (s *Server) updateLibraryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lib, ok := s.libraryFromPath(w, r)
		if !ok {
			return
		}

		var req libraryRequest
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION_ERROR")
			return
		}

		if req.Name != "" {
			lib.Name = req.Name
		}
		if req.KnowledgeArea != "" {
			lib.KnowledgeArea = req.KnowledgeArea
		}
		if req.PesoSemantico != nil {
			lib.PesoSemantico = *req.PesoSemantico
		}
		if req.PesoTextual != nil {
			lib.PesoTextual = *req.PesoTextual
		}
		if req.DefaultEmbeddingModel != "" {
			lib.DefaultEmbeddingModel = req.DefaultEmbeddingModel
		}
		if req.DefaultCompletionModel != "" {
			lib.DefaultCompletionModel = req.DefaultCompletionModel
		}

		if err := s.DB.Save(lib).Error; err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		respondJSON(w, http.StatusOK, lib)
	})
}

func (s *Server) deleteLibraryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lib, ok := s.libraryFromPath(w, r)
		if !ok {
			return
		}

		if err := s.DB.Delete(lib).Error; err != nil {
			respondError(w, http.StatusInternalServerError, "failed to delete library", "PERSISTENCE_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// libraryFromPath resolves the {id} path segment into a library.
func (s *Server) libraryFromPath(w http.ResponseWriter, r *http.Request) (*models.Library, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "library id must be a UUID", "VALIDATION_ERROR")
		return nil, false
	}

	lib, err := models.GetLibraryByUUID(s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "library not found", "NOT_FOUND")
		} else {
			respondError(w, http.StatusInternalServerError, "failed to load library", "PERSISTENCE_ERROR")
		}
		return nil, false
	}
	return lib, true
}
