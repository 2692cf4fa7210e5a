// Package server provides the optional observability listener started
// during ingest.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first),
// following the standard Go pattern. The [BasicRouter] implementation uses
// [http.ServeMux] internally with method filtering.
//
// # Metrics Listener
//
// [Listener] serves /metrics (Prometheus exposition via promhttp) and
// /healthz on the address configured under [metrics] in the TOML config.
// It starts alongside an ingest run and shuts down with it; an empty
// address disables it entirely.
package server
