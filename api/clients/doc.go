// Package clients provides an HTTP client for the bucket management API
// served by the registry server.
package clients
