package kms

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeySource(t *testing.T) {
	dir := t.TempDir()
	privFile := filepath.Join(dir, "private.pem")
	require.NoError(t, os.WriteFile(privFile, []byte("PRIVATE"), 0600))

	source := &FileKeySource{PrivateKeyFile: privFile}

	data, err := source.PrivateKeyPEM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("PRIVATE"), data)

	_, err = source.PublicKeyPEM(context.Background())
	assert.ErrorIs(t, err, ErrKeyNotConfigured)

	source.PublicKeyFile = filepath.Join(dir, "missing.pem")
	_, err = source.PublicKeyPEM(context.Background())
	assert.Error(t, err)
}

func TestVaultKeySource(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))

		switch r.URL.Path {
		case "/v1/secret/data/bucket-provisioning/keys":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"data": map[string]any{
						VaultPrivateKeyField: "PRIVATE",
						VaultPublicKeyField:  "PUBLIC",
					},
					"metadata": map[string]any{"version": 1},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
		}
	}))
	defer server.Close()

	source, err := NewVaultKeySource(server.URL, "test-token", "secret/", "/bucket-provisioning/keys", logger)
	require.NoError(t, err)

	priv, err := source.PrivateKeyPEM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("PRIVATE"), priv)

	pub, err := source.PublicKeyPEM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("PUBLIC"), pub)

	missing, err := NewVaultKeySource(server.URL, "test-token", "secret", "other", logger)
	require.NoError(t, err)
	_, err = missing.PrivateKeyPEM(context.Background())
	assert.ErrorIs(t, err, ErrKeyNotConfigured)
}
