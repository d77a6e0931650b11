// Package cryptoutils signs and verifies provisioning payloads.
//
// Payloads travel as compact JWS tokens (header.payload.signature) signed
// with RS256. JWSSigner holds the registry's RSA private key and JWSVerifier
// the matching public key; the verifier pins the accepted algorithms, so a
// token with "alg": "none" or an HMAC algorithm is rejected before any
// payload is decoded.
//
// # Key Material
//
// ParseRSAPrivateKeyPEM accepts PKCS#1, PKCS#8 and OpenSSH private keys,
// including passphrase-protected ones. ParseRSAPublicKeyPEM accepts PKIX,
// PKCS#1, X.509 certificates and authorized_keys lines. Keys shorter than
// MinRSAKeyBits are refused on both sides.
//
// GenerateRSAKeyPEM creates a fresh pair for the bucketctl keygen command.
package cryptoutils
