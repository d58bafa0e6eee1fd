package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hugh/asset-shipper/internal/api/middleware"
	"github.com/hugh/asset-shipper/internal/api/validation"
	"github.com/hugh/asset-shipper/internal/repository"
)

type DocumentHandler struct {
	repo   repository.Repository
	logger *slog.Logger
}

func NewDocumentHandler(repo repository.Repository, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{repo: repo, logger: logger}
}

// Get handles GET /api/v1/documents/{index}/{docId}. The document is written
// in its stored form, under both legacy and current field names.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	docID := chi.URLParam(r, "docId")
	if !validation.IsValidIndexName(indexName) {
		writeError(w, http.StatusBadRequest, "Invalid index")
		return
	}
	if docID == "" {
		writeError(w, http.StatusBadRequest, "Invalid document ID")
		return
	}

	index := repository.Index{Tenant: middleware.GetTenantID(r.Context()), Name: indexName}
	doc, err := h.repo.GetDocument(r.Context(), index, docID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load document", "index", index.String(), "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load document")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// States handles GET /api/v1/documents/{index}/_states. It returns the asset
// state of every latest document keyed by doc id.
func (h *DocumentHandler) States(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	if !validation.IsValidIndexName(indexName) {
		writeError(w, http.StatusBadRequest, "Invalid index")
		return
	}

	index := repository.Index{Tenant: middleware.GetTenantID(r.Context()), Name: indexName}
	states, err := h.repo.GetStates(r.Context(), index)
	if err != nil {
		h.logger.Error("failed to load states", "index", index.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load states")
		return
	}

	response := make(map[string]string, len(states))
	for id, st := range states {
		response[id] = string(st.AssetState)
	}
	writeJSON(w, http.StatusOK, response)
}
