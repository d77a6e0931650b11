// Package storage materializes accepted bucket instances on physical storage.
//
// A materializer creates the storage location behind a bucket instance before
// the intake endpoint records it. Every implementation is idempotent, so a
// replayed envelope or a retried request never corrupts an existing location.
//
// # Backends
//
//   - FileMaterializer: a directory per instance below a local root
//   - S3Materializer: a descriptor object per instance in an S3 bucket
//   - MultiMaterializer: all of the above at once, failing if any one fails
//
// Each location receives a .bucket.json descriptor mirroring the signed
// payload the instance was created from.
//
// # Location URIs
//
// MaterializerFactory builds materializers from URIs:
//
//	file:///var/lib/buckets
//	s3://ACCESS:SECRET@bucket-name/prefix?region=eu-west-1&endpoint=http://minio:9000
package storage
