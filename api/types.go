package api

import (
	"encoding/json"
	"net/http"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// Routes served by the intake endpoint.
const (
	// IntakeCreatePath accepts signed provisioning envelopes.
	IntakeCreatePath = "/bucketinst/create"

	// InstancesPath lists accepted bucket instances.
	InstancesPath = "/bucketinst"
)

// BucketsPath is the root of the bucket management API.
const BucketsPath = "/api/v1/buckets"

// Messages returned by the intake endpoint on success.
const (
	MsgInstanceCreated = "Bucket instance created successfully"
	MsgInstanceExists  = "Bucket instance already exists"
)

// ErrorResponse is the JSON body of a rejected request.
type ErrorResponse struct {
	Error string `json:"error"`

	// Field names the offending field of an immutable-field violation.
	Field string `json:"field,omitempty"`

	// Missing lists every required field absent from an intake payload.
	Missing []string `json:"missing,omitempty"`
}

// ProvisionFailedResponse is returned when a bucket was persisted but could
// not be provisioned. Bucket carries the persisted record in provision_failed.
type ProvisionFailedResponse struct {
	Error  string             `json:"error"`
	Bucket *interfaces.Bucket `json:"bucket"`
}

// WriteJSON encodes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
