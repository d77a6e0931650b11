package interfaces

import (
	"context"
)

// Signer produces a compact, tamper-evident representation of a payload.
type Signer interface {
	// Sign returns a self-contained token carrying payload and signature.
	Sign(payload map[string]any) (string, error)
}

// Verifier validates a token produced by a Signer and recovers its payload.
type Verifier interface {
	// Verify returns the payload exactly as signed, or an error wrapping
	// ErrVerificationFailure.
	Verify(token string) (map[string]any, error)
}

// KeySource loads PEM-encoded key material for signers and verifiers.
type KeySource interface {
	// PrivateKeyPEM returns the signing key.
	PrivateKeyPEM(ctx context.Context) ([]byte, error)

	// PublicKeyPEM returns the verification key.
	PublicKeyPEM(ctx context.Context) ([]byte, error)
}
