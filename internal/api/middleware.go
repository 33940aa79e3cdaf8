package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware gates the admin surface behind a single shared bearer
// token. Every failure mode answers 401 with the standard error envelope.
func AuthMiddleware(adminToken string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing Authorization header")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header must use the Bearer scheme")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestBodyLimitMiddleware caps the request body seen by downstream
// decoders. A non-positive limit disables the cap.
func RequestBodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}
