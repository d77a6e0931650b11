/*
Package handlers implements the bucket management HTTP API.

All routes live under /api/v1/buckets and are thin wrappers around an
interfaces.BucketRegistry:

	POST  /api/v1/buckets                   create and provision a bucket
	GET   /api/v1/buckets?state=&name=      list buckets
	GET   /api/v1/buckets/{id}              fetch a bucket
	PATCH /api/v1/buckets/{id}              update mutable fields
	POST  /api/v1/buckets/{id}/reprovision  retry a failed provisioning

# Error mapping

	400  malformed body, invariant violation, immutable field (with "field")
	404  unknown bucket
	409  duplicate name, reprovision of a bucket not in provision_failed
	502  provisioning failed; the body carries the persisted bucket

Error bodies are JSON, see api.ErrorResponse.
*/
package handlers
