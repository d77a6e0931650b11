/*
Package api holds the wire types and route constants shared by the bucket
registry and the intake endpoint.

Subpackages:

  - handlers: the bucket management API (/api/v1/buckets)
  - intake: the signed instance intake endpoint (/bucketinst/create)
  - provisioner: the registry side of the handoff, which signs payloads and
    posts them to the intake endpoint
  - clients: an HTTP client for the bucket management API

Failures are answered with an ErrorResponse JSON body. A bucket that was
stored but could not be provisioned is answered with 502 and a
ProvisionFailedResponse carrying the stored record.
*/
package api
