package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// MultiMaterializer fans a materialization out to several backends. An
// instance counts as materialized only once every backend has it.
type MultiMaterializer struct {
	backends []interfaces.Materializer
	log      *slog.Logger
}

// NewMultiMaterializer creates a materializer writing to all backends.
func NewMultiMaterializer(backends []interfaces.Materializer, logger *slog.Logger) *MultiMaterializer {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiMaterializer{
		backends: backends,
		log:      logger,
	}
}

// Materialize runs every backend, even after one of them failed, and joins
// the failures. Backends are idempotent, so a retry redoes the successful
// ones harmlessly.
func (m *MultiMaterializer) Materialize(ctx context.Context, inst *interfaces.BucketInstance) error {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Warn("Materializer unavailable", slog.String("backend_name", backend.Name()))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		if err := backend.Materialize(ctx, inst); err != nil {
			m.log.Warn("Materializer failed",
				slog.String("backend_name", backend.Name()),
				slog.String("root_path", inst.RootPath),
				"err", err)
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("materialization failed on %d of %d backends: %w", len(errs), len(m.backends), errors.Join(errs...))
	}

	m.log.Info("Materialized bucket instance",
		slog.String("root_path", inst.RootPath),
		slog.Int("backends", len(m.backends)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Available reports whether every backend is available.
func (m *MultiMaterializer) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			return false
		}
	}
	return true
}

func (m *MultiMaterializer) Name() string {
	names := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		names = append(names, backend.Name())
	}
	return "multi:[" + strings.Join(names, ",") + "]"
}
