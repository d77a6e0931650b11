package storage

import (
	"encoding/json"
	"path"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// DescriptorName is the name of the marker written into every materialized
// bucket location.
const DescriptorName = ".bucket.json"

// descriptor is the content of the marker. It mirrors the signed payload the
// instance was created from.
type descriptor struct {
	Name             string                `json:"name"`
	RootPath         string                `json:"root_path"`
	BucketType       interfaces.BucketType `json:"bucket_type"`
	ExternalProvider *string               `json:"external_provider"`
	MountPermissions string                `json:"mount_permissions"`
}

func encodeDescriptor(inst *interfaces.BucketInstance) ([]byte, error) {
	return json.MarshalIndent(descriptor{
		Name:             inst.Name,
		RootPath:         inst.RootPath,
		BucketType:       inst.BucketType,
		ExternalProvider: inst.ExternalProvider,
		MountPermissions: inst.MountPermissions,
	}, "", "  ")
}

// relativeLocation turns a root path into a slash-separated path relative to
// a backend root. Dot segments are resolved first, so the result never
// climbs above the backend root.
func relativeLocation(rootPath string) string {
	rel := path.Clean("/" + rootPath)[1:]
	if rel == "" {
		return "."
	}
	return rel
}
