// Package requestid assigns a correlation ID to every inbound request and
// captures the request start time.
package requestid

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"walletpass/pkg/requestcontext"
)

// Header is the response (and optional request) header carrying the ID.
const Header = "X-Request-ID"

// Middleware reuses a well-formed incoming X-Request-ID or mints a new UUID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(Header)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)

		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
