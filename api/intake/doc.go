// Package intake implements the receiving side of the bucket provisioning
// handoff: the endpoint that accepts signed provisioning envelopes and
// records a bucket instance for each.
//
// A request is processed in a fixed order. The envelope is parsed, the
// signature is verified, and only then is the payload shape-checked into a
// concrete type. No payload field is read before the signature is checked.
//
// # Endpoints
//
//   - POST /bucketinst/create: accept a signed envelope
//   - GET /bucketinst: list recorded instances
//   - GET /bucketinst/{id}: fetch one instance
//
// # Status codes
//
//   - 200: instance created, or an identical envelope was replayed
//   - 400: malformed JSON, missing or mistyped fields
//   - 401: signature verification failed
//   - 405: wrong method
//   - 409: a different payload was already recorded at the same root path
package intake
