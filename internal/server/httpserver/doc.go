// Package httpserver serves the pairmesh control API over HTTP or HTTPS.
//
// NewRouter assembles the handler with the middleware chain
// (Recover, RequestID, RateLimit, Audit, Metrics) and mounts /metrics.
package httpserver
