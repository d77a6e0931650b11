package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func testPayload() map[string]any {
	provider := "minio-east"
	return (&interfaces.ProvisioningPayload{
		Name:             "logs",
		RootPath:         "/srv/buckets/0a1b2c3d",
		BucketType:       interfaces.BucketTypeExternal,
		ExternalProvider: &provider,
		MountPermissions: "group:ops",
	}).Claims()
}

func newPair(t *testing.T) (*JWSSigner, *JWSVerifier) {
	t.Helper()
	signer, err := NewJWSSigner(signingKey(t))
	require.NoError(t, err)
	verifier, err := NewJWSVerifier(signer.PublicKey())
	require.NoError(t, err)
	return signer, verifier
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, verifier := newPair(t)

	testCases := []struct {
		name    string
		payload map[string]any
	}{
		{
			name:    "External bucket",
			payload: testPayload(),
		},
		{
			name: "Standard bucket with null provider",
			payload: (&interfaces.ProvisioningPayload{
				Name:       "logs",
				RootPath:   "/srv/buckets/deadbeef",
				BucketType: interfaces.BucketTypeStandard,
			}).Claims(),
		},
		{
			name:    "Unicode values",
			payload: map[string]any{"name": "журнал", "root_path": "/data/ü", "mount_permissions": "a,b"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := signer.Sign(tc.payload)
			require.NoError(t, err)

			got, err := verifier.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, tc.payload, got)
		})
	}
}

func TestSignIsDeterministic(t *testing.T) {
	signer, _ := newPair(t)

	first, err := signer.Sign(testPayload())
	require.NoError(t, err)
	second, err := signer.Sign(testPayload())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestVerifyRejectsTamperedTokens(t *testing.T) {
	signer, verifier := newPair(t)

	token, err := signer.Sign(testPayload())
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		replaced := []byte(token)
		if replaced[i] == 'A' {
			replaced[i] = 'B'
		} else {
			replaced[i] = 'A'
		}
		_, err := verifier.Verify(string(replaced))
		require.ErrorIs(t, err, interfaces.ErrVerificationFailure, "replacing byte %d passed verification", i)

		flipped := []byte(token)
		flipped[i] ^= 0x01
		_, err = verifier.Verify(string(flipped))
		require.ErrorIs(t, err, interfaces.ErrVerificationFailure, "flipping byte %d passed verification", i)
	}
}

func TestVerifyRejectsAlgorithmConfusion(t *testing.T) {
	key := signingKey(t)
	_, verifier := newPair(t)

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	claims := jwt.MapClaims(testPayload())

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(pubPEM)
	require.NoError(t, err)

	rs512Token, err := jwt.NewWithClaims(jwt.SigningMethodRS512, claims).SignedString(key)
	require.NoError(t, err)

	ps256Token, err := jwt.NewWithClaims(jwt.SigningMethodPS256, claims).SignedString(key)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	testCases := map[string]string{
		"HS256 keyed with public key": hmacToken,
		"RS512":                       rs512Token,
		"PS256":                       ps256Token,
		"none":                        noneToken,
	}
	for name, token := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(token)
			assert.ErrorIs(t, err, interfaces.ErrVerificationFailure)
		})
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	_, verifier := newPair(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherSigner, err := NewJWSSigner(otherKey)
	require.NoError(t, err)

	token, err := otherSigner.Sign(testPayload())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, interfaces.ErrVerificationFailure)
}

func TestVerifyRejectsMalformedTokens(t *testing.T) {
	_, verifier := newPair(t)

	for _, token := range []string{
		"",
		"not-a-token",
		"a.b",
		"a.b.c.d",
		"eyJhbGciOiJSUzI1NiJ9.bm90IGpzb24.c2ln",
	} {
		_, err := verifier.Verify(token)
		assert.ErrorIs(t, err, interfaces.ErrVerificationFailure, "token %q", token)
	}
}

func TestSignerFailures(t *testing.T) {
	_, err := NewJWSSigner(nil)
	assert.ErrorIs(t, err, interfaces.ErrSigningFailure)

	smallKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	_, err = NewJWSSigner(smallKey)
	assert.ErrorIs(t, err, interfaces.ErrSigningFailure)
	assert.ErrorIs(t, err, ErrKeyTooSmall)

	_, err = NewJWSSignerFromPEM([]byte("garbage"), nil)
	assert.ErrorIs(t, err, interfaces.ErrSigningFailure)

	signer, _ := newPair(t)
	_, err = signer.Sign(nil)
	assert.ErrorIs(t, err, interfaces.ErrSigningFailure)

	_, err = signer.Sign(map[string]any{"name": make(chan int)})
	assert.ErrorIs(t, err, interfaces.ErrSigningFailure)
}

func TestNewJWSVerifierAlgorithms(t *testing.T) {
	key := signingKey(t)

	verifier, err := NewJWSVerifier(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, []string{AlgRS256}, verifier.AllowedAlgorithms())

	_, err = NewJWSVerifier(&key.PublicKey, "RS256", "PS256")
	require.NoError(t, err)

	for _, alg := range []string{"HS256", "none", "ES256", "bogus"} {
		_, err = NewJWSVerifier(&key.PublicKey, alg)
		assert.Error(t, err, alg)
	}

	_, err = NewJWSVerifier(nil)
	assert.Error(t, err)
}

func TestJWSSigner_PublicKey(t *testing.T) {
	key := signingKey(t)
	signer, err := NewJWSSigner(key)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(signer.PublicKey()))
}
