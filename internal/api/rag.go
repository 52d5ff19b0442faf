package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/relaybase/relaybase/internal/knowledge"
	"github.com/relaybase/relaybase/internal/log"
)

// knowledgeStore is the vector store dependency; *knowledge.Store
// satisfies it.
type knowledgeStore interface {
	Add(ctx context.Context, collection string, contents []string, metadatas []map[string]string) ([]string, error)
	Search(ctx context.Context, collection, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
	Delete(ctx context.Context, ids []string) (int, error)
	ListCollections(ctx context.Context) ([]knowledge.CollectionInfo, error)
	Collection(ctx context.Context, name string) (*knowledge.CollectionInfo, error)
	Ping(ctx context.Context) error
}

// ragHandler serves the retrieval-augmented-generation store endpoints.
type ragHandler struct {
	store  knowledgeStore
	logger log.Logger
}

type ingestDocument struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type ingestRequest struct {
	Collection string           `json:"collection"`
	Documents  []ingestDocument `json:"documents"`
}

// ingest embeds and stores documents in a collection.
func (h *ragHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "at least one document is required")
		return
	}

	contents := make([]string, 0, len(req.Documents))
	metadatas := make([]map[string]string, 0, len(req.Documents))
	for _, d := range req.Documents {
		if d.Content == "" {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "document content must not be empty")
			return
		}
		contents = append(contents, d.Content)
		metadatas = append(metadatas, d.Metadata)
	}

	ids, err := h.store.Add(r.Context(), req.Collection, contents, metadatas)
	if err != nil {
		h.logger.Error("document ingest failed", "error", err, "collection", req.Collection)
		writeError(w, h.logger, http.StatusBadGateway, "upstream_error", "failed to ingest documents")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, map[string]any{
		"ids":   ids,
		"count": len(ids),
	})
}

type searchRequest struct {
	Collection string            `json:"collection"`
	Query      string            `json:"query"`
	TopK       int               `json:"top_k,omitempty"`
	Filter     map[string]string `json:"filter,omitempty"`
}

// search runs a similarity query against a collection.
func (h *ragHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	opts := []knowledge.SearchOption{}
	if req.TopK > 0 {
		opts = append(opts, knowledge.WithTopK(req.TopK))
	}
	for k, v := range req.Filter {
		opts = append(opts, knowledge.WithFilter(k, v))
	}

	results, err := h.store.Search(r.Context(), req.Collection, req.Query, opts...)
	if err != nil {
		h.logger.Error("similarity search failed", "error", err, "collection", req.Collection)
		writeError(w, h.logger, http.StatusBadGateway, "upstream_error", "search failed")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// collections lists every collection with its document count.
func (h *ragHandler) collections(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.ListCollections(r.Context())
	if err != nil {
		writeRelayError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"collections": infos})
}

// collection inspects one collection by name.
func (h *ragHandler) collection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, err := h.store.Collection(r.Context(), name)
	if err != nil {
		if errors.Is(err, knowledge.ErrCollectionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "collection not found")
			return
		}
		writeRelayError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, info)
}

type deleteDocumentsRequest struct {
	IDs []string `json:"ids"`
}

// deleteDocuments removes documents by ID.
func (h *ragHandler) deleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req deleteDocumentsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "at least one id is required")
		return
	}

	deleted, err := h.store.Delete(r.Context(), req.IDs)
	if err != nil {
		writeRelayError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]int{"deleted": deleted})
}

// health reports whether the vector store answers. Public.
func (h *ragHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "unavailable", "vector store unreachable")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
