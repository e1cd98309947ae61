// Package httpx provides HTTP helpers for the health and metrics endpoints.
//
// # Overview
//
// httpx keeps the plain endpoints consistent: JSON bodies, coded error
// responses, a method guard and default security headers.
//
// # Features
//
//   - JSON responses and coded error bodies
//   - Method guard answering 405 with an Allow header
//   - Security headers middleware with no-store caching
//   - Middleware chaining
//
// # Layer
//
// httpx belongs to Layer 2 (L2) and depends on core/errors.
//
// # Stability
//
// Stable since v0.1.0. API evolves conservatively.
package httpx
