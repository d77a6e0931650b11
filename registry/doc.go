// Package registry implements the bucket registry: the component that owns
// bucket identity, enforces the structural invariants of a bucket, and drives
// each bucket through its provisioning lifecycle.
//
// A bucket is persisted as pending before any provisioning happens. The
// registry then calls the configured interfaces.Provisioner exactly once and
// records the outcome:
//
//	pending -> provisioned        the intake endpoint accepted the bucket
//	pending -> provision_failed   any step after persistence failed
//
// A failed bucket stays persisted with the failure reason and can be retried
// with Reprovision, which reuses the root path assigned by the first attempt.
//
// Invariants checked on create and on every update:
//
//   - mount_enabled and observe_enabled are mutually exclusive
//   - an EXTERNAL bucket names its external_provider
//   - name, bucket_type, external_provider, cluster, created_at and
//     root_path never change once the bucket exists
//
// Name uniqueness is left to the database UNIQUE constraint, so concurrent
// creates with the same name produce exactly one bucket.
package registry
