// Package httpx provides HTTP helpers for the monitor's plain endpoints.
//
// Overview:
//   - Responsibility: JSON responses, coded error bodies, method guards, security headers
//   - Key Types: ErrorResponse, SecurityHeaders, Middleware
//   - Concurrency Model: All functions are safe for concurrent use
//   - Error Semantics: Write helpers return the encoder error, if any
//   - Performance Notes: Middleware allocates nothing per request beyond header values
//
// Usage:
//
//	handler := httpx.Chain(mux,
//	  httpx.MethodGuard(http.MethodGet, http.MethodHead),
//	  httpx.SecureMiddleware(httpx.DefaultSecurityHeaders()),
//	)
package httpx

import (
	"encoding/json"
	"net/http"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/httpx/internal"
)

// ErrorResponse represents a standard JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to h; the first middleware is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error response carrying the error code.
func WriteError(w http.ResponseWriter, err error, status int) error {
	return WriteJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    string(errors.CodeOf(err)),
		Message: err.Error(),
	})
}

// MethodGuard answers 405 with an Allow header for any other method.
func MethodGuard(methods ...string) Middleware {
	allow := internal.AllowHeader(methods)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !internal.MethodAllowed(methods, r.Method) {
				w.Header().Set("Allow", allow)
				_ = WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
					Error:   "Method Not Allowed",
					Message: "method " + r.Method + " not allowed for " + r.URL.Path,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders selects the headers added to every response.
type SecurityHeaders struct {
	ContentTypeOptions bool // X-Content-Type-Options: nosniff
	FrameOptions       bool // X-Frame-Options: DENY
	ReferrerPolicy     bool // Referrer-Policy: no-referrer
	NoStore            bool // Cache-Control: no-store
}

// DefaultSecurityHeaders enables every header. Health and metrics
// responses must never be cached by intermediaries.
func DefaultSecurityHeaders() SecurityHeaders {
	return SecurityHeaders{
		ContentTypeOptions: true,
		FrameOptions:       true,
		ReferrerPolicy:     true,
		NoStore:            true,
	}
}

// SecureMiddleware adds security headers to responses.
func SecureMiddleware(headers SecurityHeaders) Middleware {
	h := internal.SecurityHeaders{
		ContentTypeOptions: headers.ContentTypeOptions,
		FrameOptions:       headers.FrameOptions,
		ReferrerPolicy:     headers.ReferrerPolicy,
		NoStore:            headers.NoStore,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			internal.ApplySecurityHeaders(w, h)
			next.ServeHTTP(w, r)
		})
	}
}
