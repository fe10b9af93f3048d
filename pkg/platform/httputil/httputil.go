// Package httputil centralizes JSON response envelopes for handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "walletpass/pkg/domain-errors"
)

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into a JSON error envelope. Internal
// and upstream failures never echo their message back to the caller.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if exposesDescription(code) {
		body["error_description"] = describe(err)
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

func exposesDescription(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeUnauthorized,
		dErrors.CodeForbidden, dErrors.CodeNotFound, dErrors.CodeConflict:
		return true
	default:
		return false
	}
}

func describe(err error) string {
	var de *dErrors.Error
	if dErrors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
