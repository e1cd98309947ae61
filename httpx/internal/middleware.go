// Package internal provides internal implementation details for httpx.
package internal

import (
	"net/http"
	"strings"
)

// SecurityHeaders mirrors httpx.SecurityHeaders.
type SecurityHeaders struct {
	ContentTypeOptions bool
	FrameOptions       bool
	ReferrerPolicy     bool
	NoStore            bool
}

// ApplySecurityHeaders applies security headers to the response writer.
func ApplySecurityHeaders(w http.ResponseWriter, headers SecurityHeaders) {
	if headers.ContentTypeOptions {
		w.Header().Set("X-Content-Type-Options", "nosniff")
	}
	if headers.FrameOptions {
		w.Header().Set("X-Frame-Options", "DENY")
	}
	if headers.ReferrerPolicy {
		w.Header().Set("Referrer-Policy", "no-referrer")
	}
	if headers.NoStore {
		w.Header().Set("Cache-Control", "no-store")
	}
}

// MethodAllowed reports whether method is in methods. An empty list allows
// everything.
func MethodAllowed(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// AllowHeader formats methods for the Allow header.
func AllowHeader(methods []string) string {
	upper := make([]string, len(methods))
	for i, m := range methods {
		upper[i] = strings.ToUpper(m)
	}
	return strings.Join(upper, ", ")
}
