package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// maxLocationAttempts bounds how many fresh locations are tried when a
// generated root path collides with an existing one.
const maxLocationAttempts = 3

// Config holds the provisioning client settings.
type Config struct {
	// BaseDir is the parent directory of every generated root path.
	BaseDir string
}

// RootPathAssigner persists the root path of a bucket.
// It is satisfied by interfaces.BucketRepository.
type RootPathAssigner interface {
	AssignRootPath(ctx context.Context, id int64, rootPath string) error
}

// Client implements interfaces.Provisioner. It assigns a root path to a
// bucket, signs the provisioning payload, and hands the envelope to the
// intake endpoint through a Transport.
type Client struct {
	cfg       Config
	buckets   RootPathAssigner
	signer    interfaces.Signer
	transport interfaces.Transport
	log       *slog.Logger

	newLocation func() string
}

// NewClient creates a provisioning client.
func NewClient(cfg Config, buckets RootPathAssigner, signer interfaces.Signer, transport interfaces.Transport, log *slog.Logger) (*Client, error) {
	if cfg.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if !path.IsAbs(cfg.BaseDir) {
		return nil, fmt.Errorf("base directory must be absolute: %s", cfg.BaseDir)
	}

	return &Client{
		cfg:         cfg,
		buckets:     buckets,
		signer:      signer,
		transport:   transport,
		log:         log,
		newLocation: randomLocation,
	}, nil
}

// randomLocation returns 8 hex characters taken from a random UUID.
func randomLocation() string {
	return uuid.NewString()[:8]
}

// Provision performs one provisioning attempt for b. The root path is
// persisted before anything leaves the process. Transport errors are
// returned as they are, without retrying.
func (c *Client) Provision(ctx context.Context, b *interfaces.Bucket) (*interfaces.ProvisioningResult, error) {
	rootPath, err := c.assignRootPath(ctx, b)
	if err != nil {
		return nil, err
	}

	payload := interfaces.NewProvisioningPayload(b, rootPath)
	token, err := c.signer.Sign(payload.Claims())
	if err != nil {
		if !errors.Is(err, interfaces.ErrSigningFailure) {
			err = fmt.Errorf("%w: %w", interfaces.ErrSigningFailure, err)
		}
		return nil, err
	}

	c.log.Debug("Sending provisioning envelope", "id", b.ID, "name", b.Name, "root_path", rootPath)

	receipt, err := c.transport.Send(ctx, interfaces.SignedEnvelope{SignedData: token})
	if err != nil {
		return nil, err
	}

	return &interfaces.ProvisioningResult{
		RootPath:   rootPath,
		InstanceID: receipt.ID,
	}, nil
}

// assignRootPath returns the bucket's root path, generating and persisting
// one if the bucket has none yet.
func (c *Client) assignRootPath(ctx context.Context, b *interfaces.Bucket) (string, error) {
	if b.RootPath != "" {
		return b.RootPath, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxLocationAttempts; attempt++ {
		rootPath := path.Join(c.cfg.BaseDir, c.newLocation())

		err := c.buckets.AssignRootPath(ctx, b.ID, rootPath)
		if err == nil {
			b.RootPath = rootPath
			return rootPath, nil
		}
		if !errors.Is(err, interfaces.ErrRootPathConflict) {
			return "", fmt.Errorf("could not assign root path: %w", err)
		}

		c.log.Warn("Root path collision", "id", b.ID, "root_path", rootPath, "attempt", attempt)
		lastErr = err
	}
	return "", fmt.Errorf("could not assign root path after %d attempts: %w", maxLocationAttempts, lastErr)
}
