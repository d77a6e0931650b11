package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// MaterializerFactory creates materializers from location URIs.
type MaterializerFactory struct {
	log *slog.Logger
}

// NewMaterializerFactory creates a new factory instance.
func NewMaterializerFactory(logger *slog.Logger) *MaterializerFactory {
	return &MaterializerFactory{log: logger}
}

// MaterializerFor creates a materializer from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem directories
//   - s3:// - Amazon S3 or compatible object storage
func (f *MaterializerFactory) MaterializerFor(uri string) (interfaces.Materializer, error) {
	loc, err := interfaces.NewMaterializerLocation(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "s3":
		return f.createS3Materializer(loc)
	case "file":
		return f.createFileMaterializer(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiMaterializer creates a materializer writing to every location.
// Unlike a best-effort store, a location that cannot be set up is an error:
// skipping it would silently leave instances unmaterialized there.
func (f *MaterializerFactory) CreateMultiMaterializer(uris []string) (interfaces.Materializer, error) {
	if len(uris) == 0 {
		return nil, errors.New("no materializer locations configured")
	}

	backends := make([]interfaces.Materializer, 0, len(uris))
	for _, uri := range uris {
		backend, err := f.MaterializerFor(uri)
		if err != nil {
			return nil, fmt.Errorf("materializer %s: %w", uri, err)
		}
		backends = append(backends, backend)
	}

	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiMaterializer(backends, f.log), nil
}

// createS3Materializer creates an S3 or S3-compatible materializer.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=http://minio:9000
func (f *MaterializerFactory) createS3Materializer(loc interfaces.MaterializerLocation) (interfaces.Materializer, error) {
	f.log.Debug("Creating S3 materializer", slog.String("bucket", loc.Host))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket name", interfaces.ErrInvalidLocationURI)
	}

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.User != nil {
		accessKey = loc.User.Username()
		secretKey, _ = loc.User.Password()
	}

	return NewS3Materializer(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"), accessKey, secretKey, f.log)
}

// createFileMaterializer creates a file system materializer.
// URI format: file:///absolute/path or file://./relative/path
func (f *MaterializerFactory) createFileMaterializer(loc interfaces.MaterializerLocation) (interfaces.Materializer, error) {
	f.log.Debug("Creating file materializer", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	return NewFileMaterializer(path, f.log)
}
