package hst

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// storeErrorToHTTP maps store errors to appropriate HTTP responses.
func storeErrorToHTTP(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, ErrLocked):
		writeError(w, http.StatusConflict, codeLocked, err.Error())
	case errors.Is(err, ErrStale):
		writeError(w, http.StatusConflict, codeStale, err.Error())
	case errors.Is(err, ErrUnknownComponent):
		writeError(w, http.StatusBadRequest, codeUnknownComponent, err.Error())
	default:
		log.Printf("hst: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// userFromRequest returns the acting CMS user.
func userFromRequest(r *http.Request) string {
	return r.Header.Get(HeaderUser)
}
