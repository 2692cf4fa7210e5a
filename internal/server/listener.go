package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Listener is the ingest-time observability endpoint: Prometheus metrics
// and a liveness probe.
type Listener struct {
	addr   string
	srv    *http.Server
	logger *log.Logger
}

// NewListener builds the listener for the given address. The router carries
// the request logging middleware so every scrape shows up at debug level.
func NewListener(addr string, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.Default()
	}

	router := NewBasicRouter()
	router.Use(RequestLogger(logger))
	router.Handle(http.MethodGet, "/metrics", promhttp.Handler())
	router.Handle(http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}))

	return &Listener{
		addr:   addr,
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in a background goroutine until Stop is called. Listen
// failures are logged, not fatal: a busy metrics port must not block an
// ingest run.
func (l *Listener) Start() {
	go func() {
		l.logger.Info("metrics listener starting", "addr", l.addr)
		if err := l.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.logger.Error("metrics listener failed", "addr", l.addr, "error", err)
		}
	}()
}

// Stop gracefully shuts the listener down.
func (l *Listener) Stop(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

// RequestLogger logs each request at debug level with its duration.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(began))
		})
	}
}
