// Package api exposes the ingestion and retrieval operations over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/acervo-ai/acervo/pkg/ingest"
	"github.com/acervo-ai/acervo/pkg/search"
)

// Server bundles the dependencies the HTTP handlers need.
type Server struct {
	DB         *gorm.DB
	Logger     hclog.Logger
	Uploader   *ingest.Uploader
	Processor  *ingest.Processor
	Dispatcher *ingest.Dispatcher
	Search     *search.Service
}

// Router builds the HTTP routes.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/libraries", s.createLibraryHandler())
	mux.Handle("GET /api/v1/libraries", s.listLibrariesHandler())
	mux.Handle("GET /api/v1/libraries/{id}", s.getLibraryHandler())
	mux.Handle("PATCH /api/v1/libraries/{id}", s.updateLibraryHandler())
	mux.Handle("DELETE /api/v1/libraries/{id}", s.deleteLibraryHandler())

	mux.Handle("POST /api/v1/documents/text", s.uploadTextHandler())
	mux.Handle("POST /api/v1/documents/url", s.uploadURLHandler())
	mux.Handle("POST /api/v1/documents/file", s.uploadFileHandler())
	mux.Handle("POST /api/v1/documents/{id}/process", s.processHandler())
	mux.Handle("GET /api/v1/documents/{id}/status", s.statusHandler())

	mux.Handle("POST /api/v1/search/hybrid", s.searchHandler(s.Search.Hybrid))
	mux.Handle("POST /api/v1/search/semantic", s.searchHandler(s.Search.Semantic))
	mux.Handle("POST /api/v1/search/textual", s.searchHandler(s.Search.Textual))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the uniform error payload.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, msg, code string) {
	respondJSON(w, status, errorBody{Error: msg, Code: code})
}

// decodeBody parses a JSON request body.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
