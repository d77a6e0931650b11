// Package interfaces defines the core types and interfaces for the bucket
// provisioning system. It provides the contract between components without
// implementation details.
package interfaces

import (
	"time"
)

// BucketType classifies a bucket. It is fixed at creation time.
type BucketType string

const (
	BucketTypeStandard BucketType = "STANDARD"
	BucketTypeExternal BucketType = "EXTERNAL"
)

// Valid reports whether t is one of the known bucket types.
func (t BucketType) Valid() bool {
	switch t {
	case BucketTypeStandard, BucketTypeExternal:
		return true
	default:
		return false
	}
}

// BucketState is the provisioning lifecycle state of a bucket.
//
//	pending -> provisioned
//	pending -> provision_failed -> (operator reprovision) -> pending
type BucketState string

const (
	BucketStatePending         BucketState = "pending"
	BucketStateProvisioned     BucketState = "provisioned"
	BucketStateProvisionFailed BucketState = "provision_failed"
)

// Valid reports whether s is a known lifecycle state.
func (s BucketState) Valid() bool {
	switch s {
	case BucketStatePending, BucketStateProvisioned, BucketStateProvisionFailed:
		return true
	default:
		return false
	}
}

// Permissions holds the access-control descriptors of a bucket.
// The strings are opaque at this layer.
type Permissions struct {
	Read    string `json:"read_permissions"`
	Write   string `json:"write_permissions"`
	Delete  string `json:"delete_permissions"`
	Mount   string `json:"mount_permissions"`
	Observe string `json:"observe_permissions"`
}

// Bucket is the logical storage unit owned by the bucket registry.
type Bucket struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// RootPath is empty until the provisioning flow assigns it.
	RootPath string `json:"root_path,omitempty"`

	BucketType       BucketType `json:"bucket_type"`
	ExternalProvider string     `json:"external_provider,omitempty"`
	Cluster          string     `json:"cluster"`

	Permissions

	MountEnabled   bool `json:"mount_enabled"`
	ObserveEnabled bool `json:"observe_enabled"`

	State BucketState `json:"state"`

	// ProvisionError carries the reason of the last failed provisioning attempt.
	ProvisionError string `json:"provision_error,omitempty"`

	// InstanceID is the identifier returned by the intake endpoint.
	InstanceID *int64 `json:"instance_id,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// BucketSpec is the caller-provided input for creating a bucket.
type BucketSpec struct {
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	BucketType       BucketType `json:"bucket_type"`
	ExternalProvider string     `json:"external_provider,omitempty"`
	Cluster          string     `json:"cluster"`

	Permissions

	MountEnabled   bool `json:"mount_enabled"`
	ObserveEnabled bool `json:"observe_enabled"`
}

// BucketUpdate carries a partial update. Nil fields are left untouched.
//
// Identity fields are part of the type so that an attempt to change them
// can be detected and rejected by name.
type BucketUpdate struct {
	Name             *string     `json:"name,omitempty"`
	BucketType       *BucketType `json:"bucket_type,omitempty"`
	ExternalProvider *string     `json:"external_provider,omitempty"`
	Cluster          *string     `json:"cluster,omitempty"`
	CreatedAt        *time.Time  `json:"created_at,omitempty"`
	RootPath         *string     `json:"root_path,omitempty"`

	Description        *string `json:"description,omitempty"`
	ReadPermissions    *string `json:"read_permissions,omitempty"`
	WritePermissions   *string `json:"write_permissions,omitempty"`
	DeletePermissions  *string `json:"delete_permissions,omitempty"`
	MountPermissions   *string `json:"mount_permissions,omitempty"`
	ObservePermissions *string `json:"observe_permissions,omitempty"`
	MountEnabled       *bool   `json:"mount_enabled,omitempty"`
	ObserveEnabled     *bool   `json:"observe_enabled,omitempty"`
}

// BucketFilter narrows a bucket listing. Zero value lists everything.
type BucketFilter struct {
	State BucketState
}

// Claim names of the provisioning payload. The order is the order in which
// missing fields are reported.
const (
	ClaimName             = "name"
	ClaimRootPath         = "root_path"
	ClaimBucketType       = "bucket_type"
	ClaimExternalProvider = "external_provider"
	ClaimMountPermissions = "mount_permissions"
)

// RequiredClaims lists the fields every provisioning payload must carry.
var RequiredClaims = []string{
	ClaimName,
	ClaimRootPath,
	ClaimBucketType,
	ClaimExternalProvider,
	ClaimMountPermissions,
}

// ProvisioningPayload is the data exchanged across the trust boundary.
// It is built fresh for every provisioning attempt.
type ProvisioningPayload struct {
	Name             string
	RootPath         string
	BucketType       BucketType
	ExternalProvider *string
	MountPermissions string
}

// NewProvisioningPayload builds the payload describing b at rootPath.
// An empty provider is carried as null.
func NewProvisioningPayload(b *Bucket, rootPath string) *ProvisioningPayload {
	p := &ProvisioningPayload{
		Name:             b.Name,
		RootPath:         rootPath,
		BucketType:       b.BucketType,
		MountPermissions: b.Permissions.Mount,
	}
	if b.ExternalProvider != "" {
		provider := b.ExternalProvider
		p.ExternalProvider = &provider
	}
	return p
}

// Claims returns the payload as the mapping handed to the signer.
func (p *ProvisioningPayload) Claims() map[string]any {
	var provider any
	if p.ExternalProvider != nil {
		provider = *p.ExternalProvider
	}
	return map[string]any{
		ClaimName:             p.Name,
		ClaimRootPath:         p.RootPath,
		ClaimBucketType:       string(p.BucketType),
		ClaimExternalProvider: provider,
		ClaimMountPermissions: p.MountPermissions,
	}
}

// SignedEnvelope is the wire representation of a signed provisioning payload.
type SignedEnvelope struct {
	SignedData string `json:"signed_data"`
}

// BucketInstance is the materialized counterpart of a bucket, owned by the
// intake side.
type BucketInstance struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	RootPath         string     `json:"root_path"`
	BucketType       BucketType `json:"bucket_type"`
	ExternalProvider *string    `json:"external_provider"`
	MountPermissions string     `json:"mount_permissions"`
	CreatedAt        time.Time  `json:"created_at"`
}

// SameAs reports whether two instances describe the same provisioning
// payload. Identifiers and timestamps are ignored.
func (i *BucketInstance) SameAs(other *BucketInstance) bool {
	if i.Name != other.Name || i.RootPath != other.RootPath ||
		i.BucketType != other.BucketType || i.MountPermissions != other.MountPermissions {
		return false
	}
	if (i.ExternalProvider == nil) != (other.ExternalProvider == nil) {
		return false
	}
	return i.ExternalProvider == nil || *i.ExternalProvider == *other.ExternalProvider
}

// InstanceReceipt is the intake endpoint's answer to an accepted envelope.
type InstanceReceipt struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// ProvisioningResult is what a successful provisioning attempt yields.
type ProvisioningResult struct {
	RootPath   string
	InstanceID int64
}
