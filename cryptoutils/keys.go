package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// MinRSAKeyBits is the smallest RSA modulus accepted for signing and verification.
const MinRSAKeyBits = 2048

var (
	// ErrPassphraseRequired is returned when an encrypted private key is
	// parsed without a passphrase.
	ErrPassphraseRequired = errors.New("private key is encrypted, passphrase required")

	// ErrNotRSAKey is returned when the key material holds a non-RSA key.
	ErrNotRSAKey = errors.New("not an RSA key")

	// ErrKeyTooSmall is returned for RSA keys below MinRSAKeyBits.
	ErrKeyTooSmall = fmt.Errorf("RSA key must be at least %d bits", MinRSAKeyBits)
)

// ParseRSAPrivateKeyPEM parses an RSA private key in PKCS#1, PKCS#8 or
// OpenSSH format. Encrypted keys require a passphrase.
func ParseRSAPrivateKeyPEM(data []byte, passphrase []byte) (*rsa.PrivateKey, error) {
	var (
		raw any
		err error
	)
	if len(passphrase) > 0 {
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(data, passphrase)
	} else {
		raw, err = ssh.ParseRawPrivateKey(data)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, ErrPassphraseRequired
		}
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	key, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotRSAKey, raw)
	}
	if key.N.BitLen() < MinRSAKeyBits {
		return nil, ErrKeyTooSmall
	}
	return key, nil
}

// ParseRSAPublicKeyPEM parses an RSA public key. Accepted encodings are PKIX
// ("PUBLIC KEY"), PKCS#1 ("RSA PUBLIC KEY"), an X.509 certificate, or a
// single OpenSSH authorized_keys line.
func ParseRSAPublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	var pub any

	block, _ := pem.Decode(data)
	if block == nil {
		sshKey, _, _, _, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			return nil, errors.New("failed to decode public key PEM")
		}
		cryptoKey, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported ssh key type %s", ErrNotRSAKey, sshKey.Type())
		}
		pub = cryptoKey.CryptoPublicKey()
	} else {
		var err error
		switch block.Type {
		case "PUBLIC KEY":
			pub, err = x509.ParsePKIXPublicKey(block.Bytes)
		case "RSA PUBLIC KEY":
			pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
		case "CERTIFICATE":
			var cert *x509.Certificate
			cert, err = x509.ParseCertificate(block.Bytes)
			if err == nil {
				pub = cert.PublicKey
			}
		default:
			return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
	}

	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotRSAKey, pub)
	}
	if key.N.BitLen() < MinRSAKeyBits {
		return nil, ErrKeyTooSmall
	}
	return key, nil
}

// GenerateRSAKeyPEM creates a new RSA key pair and returns the private key in
// PKCS#8 PEM and the public key in PKIX PEM.
func GenerateRSAKeyPEM(bits int) (privPEM []byte, pubPEM []byte, err error) {
	if bits < MinRSAKeyBits {
		return nil, nil, ErrKeyTooSmall
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}
