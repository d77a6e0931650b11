package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/ruteri/bucket-provisioning-backend/metrics"
)

// Registry implements interfaces.BucketRegistry. It owns bucket identity and
// invariants, and drives each new bucket through one provisioning attempt.
type Registry struct {
	buckets     interfaces.BucketRepository
	provisioner interfaces.Provisioner
	log         *slog.Logger
}

// NewRegistry creates a registry persisting to buckets and handing new
// buckets off to provisioner.
func NewRegistry(buckets interfaces.BucketRepository, provisioner interfaces.Provisioner, log *slog.Logger) *Registry {
	return &Registry{
		buckets:     buckets,
		provisioner: provisioner,
		log:         log,
	}
}

// Create validates and persists a new bucket as pending, then provisions it.
//
// If provisioning fails the bucket stays persisted in provision_failed and
// is returned together with the error.
func (r *Registry) Create(ctx context.Context, spec interfaces.BucketSpec) (*interfaces.Bucket, error) {
	if spec.BucketType == "" {
		spec.BucketType = interfaces.BucketTypeStandard
	}

	b := &interfaces.Bucket{
		Name:             spec.Name,
		Description:      spec.Description,
		BucketType:       spec.BucketType,
		ExternalProvider: spec.ExternalProvider,
		Cluster:          spec.Cluster,
		Permissions:      spec.Permissions,
		MountEnabled:     spec.MountEnabled,
		ObserveEnabled:   spec.ObserveEnabled,
		State:            interfaces.BucketStatePending,
	}
	if err := Validate(b); err != nil {
		metrics.BucketOperations.WithLabelValues("create", "invalid").Inc()
		return nil, err
	}

	created, err := r.buckets.Create(ctx, b)
	if err != nil {
		metrics.BucketOperations.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	metrics.BucketOperations.WithLabelValues("create", "ok").Inc()
	r.log.Info("Bucket created", "id", created.ID, "name", created.Name, "type", created.BucketType)

	return r.provision(ctx, created)
}

// provision runs a single provisioning attempt for a pending bucket and
// records its outcome.
func (r *Registry) provision(ctx context.Context, b *interfaces.Bucket) (*interfaces.Bucket, error) {
	start := time.Now()
	result, err := r.provisioner.Provision(ctx, b)
	metrics.ProvisioningDuration.Observe(time.Since(start).Seconds())

	// The outcome is recorded even if the caller's context is already done.
	recordCtx := context.WithoutCancel(ctx)

	if err != nil {
		metrics.ProvisioningAttempts.WithLabelValues(metrics.OutcomeFailed).Inc()
		r.log.Error("Provisioning failed", "id", b.ID, "name", b.Name, "err", err)

		if markErr := r.buckets.MarkProvisionFailed(recordCtx, b.ID, err.Error()); markErr != nil {
			r.log.Error("Could not record provisioning failure", "id", b.ID, "err", markErr)
		}
		failed := r.reload(recordCtx, b, func(b *interfaces.Bucket) {
			b.State = interfaces.BucketStateProvisionFailed
			b.ProvisionError = err.Error()
		})
		return failed, fmt.Errorf("provisioning bucket %q: %w", b.Name, err)
	}

	if err := r.buckets.MarkProvisioned(recordCtx, b.ID, result.InstanceID); err != nil {
		metrics.ProvisioningAttempts.WithLabelValues(metrics.OutcomeFailed).Inc()
		r.log.Error("Could not record provisioning success", "id", b.ID, "instance_id", result.InstanceID, "err", err)
		return b, fmt.Errorf("recording provisioned bucket %q: %w", b.Name, err)
	}
	metrics.ProvisioningAttempts.WithLabelValues(metrics.OutcomeProvisioned).Inc()
	r.log.Info("Bucket provisioned", "id", b.ID, "name", b.Name, "root_path", result.RootPath, "instance_id", result.InstanceID)

	return r.reload(recordCtx, b, func(b *interfaces.Bucket) {
		instanceID := result.InstanceID
		b.State = interfaces.BucketStateProvisioned
		b.RootPath = result.RootPath
		b.InstanceID = &instanceID
		b.ProvisionError = ""
	}), nil
}

// reload re-reads b from the repository. If that fails, fallback is applied
// to the in-memory copy instead.
func (r *Registry) reload(ctx context.Context, b *interfaces.Bucket, fallback func(*interfaces.Bucket)) *interfaces.Bucket {
	fresh, err := r.buckets.Get(ctx, b.ID)
	if err != nil {
		r.log.Warn("Could not reload bucket", "id", b.ID, "err", err)
		fallback(b)
		return b
	}
	return fresh
}

// Update applies a partial update inside a single transaction. Attempts to
// change an identity field are rejected with *interfaces.ImmutableFieldViolation
// and leave the record untouched.
func (r *Registry) Update(ctx context.Context, id int64, update interfaces.BucketUpdate) (*interfaces.Bucket, error) {
	updated, err := r.buckets.Modify(ctx, id, func(b *interfaces.Bucket) error {
		if err := checkImmutable(b, update); err != nil {
			return err
		}
		applyMutable(b, update)
		return Validate(b)
	})
	if err != nil {
		metrics.BucketOperations.WithLabelValues("update", "error").Inc()
		return nil, err
	}

	metrics.BucketOperations.WithLabelValues("update", "ok").Inc()
	r.log.Info("Bucket updated", "id", updated.ID, "name", updated.Name)
	return updated, nil
}

// Get returns the bucket with the given ID.
func (r *Registry) Get(ctx context.Context, id int64) (*interfaces.Bucket, error) {
	return r.buckets.Get(ctx, id)
}

// GetByName returns the bucket with the given name.
func (r *Registry) GetByName(ctx context.Context, name string) (*interfaces.Bucket, error) {
	return r.buckets.GetByName(ctx, name)
}

// List returns buckets matching filter.
func (r *Registry) List(ctx context.Context, filter interfaces.BucketFilter) ([]*interfaces.Bucket, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, violation("unknown state %q", filter.State)
	}
	return r.buckets.List(ctx, filter)
}

// Reprovision retries provisioning of a bucket in provision_failed. The
// bucket keeps the root path assigned by the previous attempt, if any.
func (r *Registry) Reprovision(ctx context.Context, id int64) (*interfaces.Bucket, error) {
	if err := r.buckets.ResetPending(ctx, id); err != nil {
		return nil, err
	}

	b, err := r.buckets.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.log.Info("Reprovisioning bucket", "id", b.ID, "name", b.Name, "root_path", b.RootPath)
	return r.provision(ctx, b)
}
