package middleware

import (
	"context"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestID makes sure every request carries an X-Request-ID, reusing the
// client's when it sends a sane one. Error envelopes echo it back, and chi's
// logger picks it up through its own context key.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
