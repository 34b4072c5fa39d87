package handlers

import (
	"encoding/json"
	"net/http"
)

const maxJSONBody = 1 << 20

// pathParam reads a route parameter stored by pat as ":name" in the query,
// falling back to net/http patterns.
func pathParam(r *http.Request, name string) string {
	if val := r.URL.Query().Get(":" + name); val != "" {
		return val
	}
	return r.PathValue(name)
}

// decodeJSON decodes the request body into v and answers 400 when it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
