// Package provisioner implements the registry side of the bucket
// provisioning handoff.
//
// Client turns a persisted bucket into a signed provisioning envelope and
// sends it to the intake endpoint:
//
//  1. A root path is generated from a random location under the configured
//     base directory and persisted before any network call. Collisions with
//     an existing root path are retried with a fresh location a bounded
//     number of times. A bucket that already has a root path keeps it.
//  2. The payload (name, root_path, bucket_type, external_provider,
//     mount_permissions) is signed with the configured interfaces.Signer.
//  3. The envelope is sent once through an interfaces.Transport. There is no
//     retry: a failed handoff is surfaced to the caller.
//
// IntakeClient is the HTTP Transport. It posts to /bucketinst/create with a
// finite timeout and reports every failure as interfaces.ErrTransportFailure.
package provisioner
