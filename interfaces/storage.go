package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrBackendUnavailable is returned when a materialization backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a backend location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// MaterializerLocation represents the URI of a materialization backend.
type MaterializerLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname or bucket
	Path   string     // Resource path
	Query  url.Values // Query parameters
	User   *url.Userinfo
}

// NewMaterializerLocation parses and validates a backend location URI.
func NewMaterializerLocation(uri string) (MaterializerLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return MaterializerLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3":
	default:
		return MaterializerLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return MaterializerLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc MaterializerLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc MaterializerLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// Materializer creates the physical storage behind an accepted bucket instance.
// Implementations must be idempotent: materializing the same instance twice
// leaves the backend as if it was done once.
type Materializer interface {
	// Materialize creates the storage location described by inst.
	Materialize(ctx context.Context, inst *BucketInstance) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string
}
