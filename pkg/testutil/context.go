package testutil

import (
	"net/http"

	"walletpass/pkg/requestcontext"
)

// WithRequestID adds a request ID to the request context, as the requestid
// middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
