// Package httptransport assembles the HTTP servers of the sync engine: the
// scheduler trigger surface and the metrics endpoint.
package httptransport

import (
	"net/http"
	"time"
)

const (
	defaultReadTimeout = 5 * time.Second
	// A drain pass writes its response only after the whole batch
	// resolves, so the write timeout is sized for a full queue run.
	defaultWriteTimeout = 10 * time.Minute
	defaultIdleTimeout  = 60 * time.Second
)

// ServerConfig contains tunables for the HTTP server. Zero-valued timeouts
// fall back to defaults sized for the trigger endpoint.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
