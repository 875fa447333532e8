// Package metric provides Prometheus metrics for pairmesh.
//
// Metrics live in a private prometheus.Registry owned by the Registry type
// (no default-registry globals) and are exposed by Handler at /metrics.
//
// Families:
//
//   - pairmesh_sessions_active: live connection handles (sampled at scrape)
//   - pairmesh_session_starts_total{result}
//   - pairmesh_reconnects_total, pairmesh_reconnect_exhausted_total
//   - pairmesh_terminal_closes_total
//   - pairmesh_credential_saves_total{result}
//   - pairmesh_store_errors_total{op}
//   - pairmesh_commands_total{command,result}
//   - pairmesh_http_requests_total{method,path,status}
//   - pairmesh_http_request_duration_seconds{method,path}
package metric
