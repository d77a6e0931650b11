package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// ErrKeyNotConfigured is returned when a key source has no material for the
// requested key.
var ErrKeyNotConfigured = errors.New("key not configured")

// FileKeySource reads PEM key material from local files.
// Either file may be empty when the process only signs or only verifies.
type FileKeySource struct {
	PrivateKeyFile string
	PublicKeyFile  string
}

// PrivateKeyPEM reads the signing key file.
func (s *FileKeySource) PrivateKeyPEM(ctx context.Context) ([]byte, error) {
	return readKeyFile(s.PrivateKeyFile)
}

// PublicKeyPEM reads the verification key file.
func (s *FileKeySource) PublicKeyPEM(ctx context.Context) ([]byte, error) {
	return readKeyFile(s.PublicKeyFile)
}

func readKeyFile(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrKeyNotConfigured
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return data, nil
}

// VaultKeySource reads PEM key material from a Vault KV v2 secret.
// The secret holds the keys under the private_key and public_key fields.
type VaultKeySource struct {
	client     *api.Client
	mountPath  string
	secretPath string
	log        *slog.Logger
}

// Field names inside the Vault secret.
const (
	VaultPrivateKeyField = "private_key"
	VaultPublicKeyField  = "public_key"
)

// NewVaultKeySource creates a Vault-backed key source authenticated with token.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token with read access to the secret
//   - mountPath: KV v2 mount (e.g. "secret")
//   - secretPath: path of the secret within the mount (e.g. "bucket-provisioning/signing")
//   - log: Structured logger
func NewVaultKeySource(address, token, mountPath, secretPath string, log *slog.Logger) (*VaultKeySource, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultKeySource{
		client:     client,
		mountPath:  strings.Trim(mountPath, "/"),
		secretPath: strings.Trim(secretPath, "/"),
		log:        log,
	}, nil
}

// PrivateKeyPEM fetches the signing key from Vault.
func (s *VaultKeySource) PrivateKeyPEM(ctx context.Context) ([]byte, error) {
	return s.readField(ctx, VaultPrivateKeyField)
}

// PublicKeyPEM fetches the verification key from Vault.
func (s *VaultKeySource) PublicKeyPEM(ctx context.Context) ([]byte, error) {
	return s.readField(ctx, VaultPublicKeyField)
}

func (s *VaultKeySource) readField(ctx context.Context, field string) ([]byte, error) {
	path := fmt.Sprintf("%s/data/%s", s.mountPath, s.secretPath)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read key from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("failed to read Vault secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: no secret at %s", ErrKeyNotConfigured, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}

	value, ok := data[field].(string)
	if !ok || value == "" {
		return nil, fmt.Errorf("%w: field %s missing at %s", ErrKeyNotConfigured, field, path)
	}

	s.log.Debug("Loaded key from Vault", slog.String("path", path), slog.String("field", field))
	return []byte(value), nil
}
