package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// FileMaterializer materializes bucket instances as directories on the local
// file system. Each instance root path is mapped below baseDir.
type FileMaterializer struct {
	baseDir string
	log     *slog.Logger
}

// NewFileMaterializer creates a file materializer rooted at baseDir, creating
// the directory if it doesn't exist.
func NewFileMaterializer(baseDir string, log *slog.Logger) (*FileMaterializer, error) {
	baseDir = filepath.Clean(baseDir)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileMaterializer{
		baseDir: baseDir,
		log:     log,
	}, nil
}

// Materialize creates the instance directory and writes its descriptor.
// Running it again for the same instance leaves the directory unchanged.
func (m *FileMaterializer) Materialize(ctx context.Context, inst *interfaces.BucketInstance) error {
	dir := m.dirFor(inst.RootPath)
	if dir == m.baseDir {
		return fmt.Errorf("root path %q maps onto the materializer root", inst.RootPath)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}

	data, err := encodeDescriptor(inst)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}

	descriptorPath := filepath.Join(dir, DescriptorName)
	if existing, err := os.ReadFile(descriptorPath); err == nil && bytes.Equal(existing, data) {
		m.log.Debug("Bucket directory already materialized", slog.String("path", dir))
		return nil
	}

	// write-then-rename so a reader never sees a partial descriptor
	tmp, err := os.CreateTemp(dir, DescriptorName+".*")
	if err != nil {
		return fmt.Errorf("failed to create descriptor: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	if err := os.Rename(tmp.Name(), descriptorPath); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}

	m.log.Debug("Materialized bucket directory",
		slog.String("path", dir),
		slog.String("name", inst.Name))
	return nil
}

// Available checks if the base directory exists.
func (m *FileMaterializer) Available(ctx context.Context) bool {
	_, err := os.Stat(m.baseDir)
	if err != nil {
		m.log.Debug("File materializer unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this materializer.
func (m *FileMaterializer) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(m.baseDir))
}

func (m *FileMaterializer) dirFor(rootPath string) string {
	return filepath.Join(m.baseDir, filepath.FromSlash(relativeLocation(rootPath)))
}
