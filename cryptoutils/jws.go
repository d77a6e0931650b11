package cryptoutils

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// AlgRS256 is the JWS algorithm used for provisioning tokens.
const AlgRS256 = "RS256"

// JWSSigner signs provisioning payloads as compact RS256 JWS tokens.
// Signing is deterministic: the claims are encoded with sorted keys and
// RSASSA-PKCS1-v1_5 involves no randomness.
type JWSSigner struct {
	key *rsa.PrivateKey
}

// NewJWSSigner wraps an RSA private key.
func NewJWSSigner(key *rsa.PrivateKey) (*JWSSigner, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: no signing key", interfaces.ErrSigningFailure)
	}
	if key.N.BitLen() < MinRSAKeyBits {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSigningFailure, ErrKeyTooSmall)
	}
	return &JWSSigner{key: key}, nil
}

// NewJWSSignerFromPEM parses the private key and wraps it.
func NewJWSSignerFromPEM(keyPEM []byte, passphrase []byte) (*JWSSigner, error) {
	key, err := ParseRSAPrivateKeyPEM(keyPEM, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSigningFailure, err)
	}
	return NewJWSSigner(key)
}

// Sign returns header.payload.signature for the given mapping.
func (s *JWSSigner) Sign(payload map[string]any) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("%w: empty payload", interfaces.ErrSigningFailure)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(payload))
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", interfaces.ErrSigningFailure, err)
	}
	return signed, nil
}

// PublicKey returns the verification key matching the signer.
func (s *JWSSigner) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// JWSVerifier checks tokens produced by JWSSigner against a pinned list of
// algorithms.
type JWSVerifier struct {
	key    *rsa.PublicKey
	algs   []string
	parser *jwt.Parser
}

// NewJWSVerifier builds a verifier for key. With no algorithms given only
// RS256 is accepted.
func NewJWSVerifier(key *rsa.PublicKey, allowedAlgs ...string) (*JWSVerifier, error) {
	if key == nil {
		return nil, errors.New("no verification key")
	}
	if key.N.BitLen() < MinRSAKeyBits {
		return nil, ErrKeyTooSmall
	}
	if len(allowedAlgs) == 0 {
		allowedAlgs = []string{AlgRS256}
	}

	for _, alg := range allowedAlgs {
		switch jwt.GetSigningMethod(alg).(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		default:
			return nil, fmt.Errorf("algorithm %q cannot be verified with an RSA key", alg)
		}
	}

	return &JWSVerifier{
		key:  key,
		algs: allowedAlgs,
		parser: jwt.NewParser(
			jwt.WithValidMethods(allowedAlgs),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// NewJWSVerifierFromPEM parses the public key and builds a verifier.
func NewJWSVerifierFromPEM(keyPEM []byte, allowedAlgs ...string) (*JWSVerifier, error) {
	key, err := ParseRSAPublicKeyPEM(keyPEM)
	if err != nil {
		return nil, err
	}
	return NewJWSVerifier(key, allowedAlgs...)
}

// Verify checks the signature and returns the payload exactly as signed.
// The payload is not inspected before the signature is known to be valid.
func (v *JWSVerifier) Verify(token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrVerificationFailure, err)
	}
	return map[string]any(claims), nil
}

// AllowedAlgorithms returns the pinned algorithm list.
func (v *JWSVerifier) AllowedAlgorithms() []string {
	return append([]string(nil), v.algs...)
}
