package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"kribdispatch/internal/sched"
	"kribdispatch/internal/store"
)

// Problem is an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps store and validation errors onto problem responses.
func writeError(w http.ResponseWriter, err error, instance string) {
	var iv *sched.InvalidInputError
	switch {
	case errors.As(err, &iv):
		writeProblem(w, http.StatusBadRequest, "invalid input", iv.Error(), instance)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "not found", "", instance)
	case errors.Is(err, store.ErrConflict):
		writeProblem(w, http.StatusConflict, "conflict", "calendar changed since snapshot; re-read and retry", instance)
	default:
		writeProblem(w, http.StatusInternalServerError, "internal error", err.Error(), instance)
	}
}
