// Package interfaces defines core interfaces and types for the bucket
// provisioning system, separating interface definitions from implementations.
//
// # Domain Types
//
// Bucket: the logical storage unit owned by the bucket registry. Its name,
// type, external provider, cluster and creation time are fixed once created.
//
// ProvisioningPayload and SignedEnvelope: the data that crosses the trust
// boundary between the registry and the intake endpoint.
//
// BucketInstance: the materialized counterpart owned by the intake side.
//
// # Component Interfaces
//
// Signer and Verifier: produce and check signed provisioning tokens.
//
// BucketRepository and InstanceRepository: persistence for both sides.
//
// BucketRegistry: the bucket state machine.
//
// Provisioner and Transport: the provisioning handoff.
//
// Materializer: backends creating physical storage for accepted instances.
package interfaces
