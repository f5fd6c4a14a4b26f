// Package httpx holds the small response-writing conventions shared by every
// handler: the {success,error} envelope and the apperror → status mapping.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/agnox/producer/internal/apperror"
)

// JSON writes v as a JSON body with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// OK writes a 200 with v encoded directly (no envelope), matching the
// teacher's plain-payload responses for read endpoints.
func OK(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusOK, v)
}

// Error writes the {success:false, error, message?} envelope for an
// apperror.Error, or maps a bare error to a 503 dependency failure while
// logging full context server-side (never in the response body).
func Error(w http.ResponseWriter, err error) {
	ae, ok := apperror.As(err)
	if !ok {
		slog.Error("httpx: unclassified error", "error", err)
		ae = apperror.Dependency("internal error", err)
	}
	if ae.Kind == apperror.KindDependency {
		slog.Error("httpx: dependency failure", "error", ae.Unwrap(), "message", ae.Message)
	}
	body := map[string]interface{}{
		"success": false,
		"error":   ae.Message,
	}
	for k, v := range ae.Detail {
		body[k] = v
	}
	JSON(w, ae.Status(), body)
}

// Success writes {success:true, ...fields}.
func Success(w http.ResponseWriter, status int, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	JSON(w, status, body)
}

// Decode reads and JSON-decodes the request body into dst.
func Decode(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
