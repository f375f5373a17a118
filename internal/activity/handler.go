package activity

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler serves entity histories.
type Handler struct {
	store Store
}

// NewHandler creates a handler reading from store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers GET /activity/{entityType}/{id}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/activity/{entityType}/{id}", h.QueryByEntity)
}

type queryResponse struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"nextCursor,omitempty"`
	Total      int     `json:"total"`
}

// QueryByEntity accepts since (RFC 3339), category (comma separated),
// limit and cursor query parameters.
func (h *Handler) QueryByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	if entityType != EntityContainer && entityType != EntityComponent {
		writeError(w, http.StatusNotFound, "unknown_entity_type", "unknown entity type "+entityType)
		return
	}

	q := r.URL.Query()
	opts := DefaultQueryOptions()
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since", "since must be an RFC 3339 time")
			return
		}
		opts.Since = &since
	}
	if c := q.Get("category"); c != "" {
		opts.Categories = strings.Split(c, ",")
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a number")
			return
		}
		opts.Limit = n
	}
	opts.Cursor = q.Get("cursor")

	entries, next, total, err := h.store.QueryByEntity(r.Context(), entityType, chi.URLParam(r, "id"), opts)
	if err != nil {
		log.Printf("activity: query: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, queryResponse{Entries: entries, NextCursor: next, Total: total})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
