package registry

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// Column limits of the bucket record.
const (
	MaxNameLength        = 255
	MaxProviderLength    = 255
	MaxClusterLength     = 255
	MaxPermissionsLength = 1024
)

func violation(format string, args ...any) error {
	return &interfaces.InvariantViolation{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants of a bucket. It is applied on
// create and after every update, so a bucket can never be persisted in a
// state that breaks them.
func Validate(b *interfaces.Bucket) error {
	if b.Name == "" {
		return violation("name is required")
	}
	if utf8.RuneCountInString(b.Name) > MaxNameLength {
		return violation("name exceeds %d characters", MaxNameLength)
	}
	if !b.BucketType.Valid() {
		return violation("unknown bucket type %q", b.BucketType)
	}
	if utf8.RuneCountInString(b.ExternalProvider) > MaxProviderLength {
		return violation("external_provider exceeds %d characters", MaxProviderLength)
	}
	if utf8.RuneCountInString(b.Cluster) > MaxClusterLength {
		return violation("cluster exceeds %d characters", MaxClusterLength)
	}

	for _, p := range []struct{ field, value string }{
		{"read_permissions", b.Permissions.Read},
		{"write_permissions", b.Permissions.Write},
		{"delete_permissions", b.Permissions.Delete},
		{"mount_permissions", b.Permissions.Mount},
		{"observe_permissions", b.Permissions.Observe},
	} {
		if utf8.RuneCountInString(p.value) > MaxPermissionsLength {
			return violation("%s exceeds %d characters", p.field, MaxPermissionsLength)
		}
	}

	if b.MountEnabled && b.ObserveEnabled {
		return violation("mount_enabled and observe_enabled cannot both be set")
	}
	if b.BucketType == interfaces.BucketTypeExternal && b.ExternalProvider == "" {
		return violation("external buckets require an external_provider")
	}
	return nil
}

// checkImmutable rejects an update that changes an identity field.
// Repeating the current value is not a change.
func checkImmutable(b *interfaces.Bucket, u interfaces.BucketUpdate) error {
	switch {
	case u.BucketType != nil && *u.BucketType != b.BucketType:
		return &interfaces.ImmutableFieldViolation{Field: "bucket_type"}
	case u.ExternalProvider != nil && *u.ExternalProvider != b.ExternalProvider:
		return &interfaces.ImmutableFieldViolation{Field: "external_provider"}
	case u.Name != nil && *u.Name != b.Name:
		return &interfaces.ImmutableFieldViolation{Field: "name"}
	case u.CreatedAt != nil && !sameInstant(*u.CreatedAt, b.CreatedAt):
		return &interfaces.ImmutableFieldViolation{Field: "created_at"}
	case u.Cluster != nil && *u.Cluster != b.Cluster:
		return &interfaces.ImmutableFieldViolation{Field: "cluster"}
	case u.RootPath != nil && *u.RootPath != b.RootPath:
		return &interfaces.ImmutableFieldViolation{Field: "root_path"}
	}
	return nil
}

// sameInstant compares at the precision the database stores.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}

func applyMutable(b *interfaces.Bucket, u interfaces.BucketUpdate) {
	if u.Description != nil {
		b.Description = *u.Description
	}
	if u.ReadPermissions != nil {
		b.Permissions.Read = *u.ReadPermissions
	}
	if u.WritePermissions != nil {
		b.Permissions.Write = *u.WritePermissions
	}
	if u.DeletePermissions != nil {
		b.Permissions.Delete = *u.DeletePermissions
	}
	if u.MountPermissions != nil {
		b.Permissions.Mount = *u.MountPermissions
	}
	if u.ObservePermissions != nil {
		b.Permissions.Observe = *u.ObservePermissions
	}
	if u.MountEnabled != nil {
		b.MountEnabled = *u.MountEnabled
	}
	if u.ObserveEnabled != nil {
		b.ObserveEnabled = *u.ObserveEnabled
	}
}
