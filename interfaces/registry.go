package interfaces

import (
	"context"
)

// BucketRepository persists bucket records.
type BucketRepository interface {
	// Create inserts a new bucket and fills in its ID.
	// Returns ErrDuplicateName if the name is taken.
	Create(ctx context.Context, b *Bucket) (*Bucket, error)

	// Get returns a bucket by ID or ErrNotFound.
	Get(ctx context.Context, id int64) (*Bucket, error)

	// GetByName returns a bucket by name or ErrNotFound.
	GetByName(ctx context.Context, name string) (*Bucket, error)

	// List returns buckets ordered by name and creation time.
	List(ctx context.Context, filter BucketFilter) ([]*Bucket, error)

	// Modify loads the bucket inside a transaction, passes it to mutate and
	// stores the mutable columns if mutate returns nil.
	Modify(ctx context.Context, id int64, mutate func(b *Bucket) error) (*Bucket, error)

	// AssignRootPath sets the root path of a bucket that has none.
	// Returns ErrRootPathAssigned or ErrRootPathConflict.
	AssignRootPath(ctx context.Context, id int64, rootPath string) error

	// MarkProvisioned moves a pending bucket to provisioned.
	MarkProvisioned(ctx context.Context, id int64, instanceID int64) error

	// MarkProvisionFailed moves a pending bucket to provision_failed.
	MarkProvisionFailed(ctx context.Context, id int64, reason string) error

	// ResetPending moves a provision_failed bucket back to pending.
	ResetPending(ctx context.Context, id int64) error
}

// InstanceRepository persists bucket instances on the intake side.
type InstanceRepository interface {
	// Create inserts a new instance and fills in its ID.
	// Returns ErrDuplicateInstance if the root path is taken.
	Create(ctx context.Context, inst *BucketInstance) (*BucketInstance, error)

	Get(ctx context.Context, id int64) (*BucketInstance, error)
	GetByRootPath(ctx context.Context, rootPath string) (*BucketInstance, error)
	List(ctx context.Context) ([]*BucketInstance, error)
}

// BucketRegistry owns bucket identity, invariants and the provisioning lifecycle.
type BucketRegistry interface {
	Create(ctx context.Context, spec BucketSpec) (*Bucket, error)
	Update(ctx context.Context, id int64, update BucketUpdate) (*Bucket, error)
	Get(ctx context.Context, id int64) (*Bucket, error)
	GetByName(ctx context.Context, name string) (*Bucket, error)
	List(ctx context.Context, filter BucketFilter) ([]*Bucket, error)
	Reprovision(ctx context.Context, id int64) (*Bucket, error)
}

// Provisioner materializes a persisted bucket on the storage backend.
type Provisioner interface {
	Provision(ctx context.Context, b *Bucket) (*ProvisioningResult, error)
}

// Transport delivers a signed envelope to the intake endpoint.
type Transport interface {
	Send(ctx context.Context, env SignedEnvelope) (*InstanceReceipt, error)
}
