package api

import (
	"log/slog"
	"time"
)

// Server timeouts applied when the configuration leaves them unset.
const (
	DefaultGracefulShutdownDuration = 30 * time.Second
	DefaultReadTimeout              = 60 * time.Second
	DefaultWriteTimeout             = 30 * time.Second

	// WriteTimeoutMargin is the headroom left after an upstream call times
	// out for the handler to write its own error response.
	WriteTimeoutMargin = 10 * time.Second
)

// HTTPServerConfig configures the registry and intake HTTP servers.
type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr is where Prometheus metrics are served. Empty disables
	// the metrics listener.
	MetricsAddr string

	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long Shutdown keeps answering 503 on /readyz
	// before closing the listener.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds the wait for in-flight requests,
	// including provisioning calls still waiting on the intake server.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WithDefaults returns a copy of cfg with unset timeouts and logger filled in.
func (cfg HTTPServerConfig) WithDefaults() *HTTPServerConfig {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.GracefulShutdownDuration <= 0 {
		cfg.GracefulShutdownDuration = DefaultGracefulShutdownDuration
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &cfg
}

// WithUpstreamTimeout returns WithDefaults with WriteTimeout raised to at
// least upstream+WriteTimeoutMargin, so a request blocked on an upstream
// call still gets its error response once that call times out.
func (cfg HTTPServerConfig) WithUpstreamTimeout(upstream time.Duration) *HTTPServerConfig {
	c := cfg.WithDefaults()
	if minWrite := upstream + WriteTimeoutMargin; c.WriteTimeout < minWrite {
		c.WriteTimeout = minWrite
	}
	return c
}
