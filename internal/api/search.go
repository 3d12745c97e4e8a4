package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/acervo-ai/acervo/pkg/llm"
	"github.com/acervo-ai/acervo/pkg/search"
)

// searchResponse wraps ranked results.
type searchResponse struct {
	Results []search.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

// searchHandler serves one of the three search operations.
func (s *Server) searchHandler(run func(context.Context, search.Request) ([]search.SearchResult, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req search.Request
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION_ERROR")
			return
		}

		if strings.TrimSpace(req.Query) == "" {
			respondError(w, http.StatusBadRequest, "query is required", "VALIDATION_ERROR")
			return
		}
		if len(req.LibraryIDs) == 0 {
			respondError(w, http.StatusBadRequest, "libraryIds is required", "VALIDATION_ERROR")
			return
		}

		results, err := run(r.Context(), req)
		if err != nil {
			if llm.IsTransient(err) {
				respondError(w, http.StatusServiceUnavailable, "search backend unavailable", "TRANSIENT_ERROR")
			} else {
				s.Logger.Error("search failed", "error", err)
				respondError(w, http.StatusBadRequest, err.Error(), "SEARCH_ERROR")
			}
			return
		}

		if results == nil {
			results = []search.SearchResult{}
		}
		respondJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
	})
}
