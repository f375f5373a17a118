package hst

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
)

// Request headers understood by the preview host.
const (
	HeaderUser      = "CMS-User"
	HeaderChannelID = "X-Channel-ID"
)

// Handler serves the container REST endpoint and rendered previews.
type Handler struct {
	store Store
}

// NewHandler creates a handler backed by store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the handler's routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/_rp/{id}", h.GetContainer)
	r.Put("/_rp/{id}", h.UpdateContainer)
	r.Get("/pages", h.ListPages)
	r.Get("/preview/{pageID}", h.Preview)
}

func (h *Handler) GetContainer(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetContainer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateContainer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var rep pagestructure.Representation
	if err := decodeJSON(r, &rep); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid container representation")
		return
	}
	if rep.ID == "" {
		rep.ID = id
	}
	if rep.ID != id {
		writeError(w, http.StatusBadRequest, codeInvalidID, "container id does not match path")
		return
	}

	updated, err := h.store.UpdateContainer(r.Context(), rep, userFromRequest(r))
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.store.ListPages(r.Context())
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	if pages == nil {
		pages = []Page{}
	}
	writeJSON(w, http.StatusOK, pages)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	src := PageSource{Store: h.store, User: userFromRequest(r)}
	out, err := src.RenderPage(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}
