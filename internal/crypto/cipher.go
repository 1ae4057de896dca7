// Package crypto implements the credential cipher and password hashing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/carebridge/carebridge/internal/errs"
)

const gcmNonceSize = 12

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// ParsePublicKey decodes a PEM-encoded RSA public key (PKIX or PKCS#1).
func ParsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in public key", errs.ErrCrypto)
	}
	if k, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return k, nil
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", errs.ErrCrypto, err)
	}
	k, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", errs.ErrCrypto)
	}
	return k, nil
}

// ParsePrivateKey decodes a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func ParsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in private key", errs.ErrCrypto)
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", errs.ErrCrypto, err)
	}
	k, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", errs.ErrCrypto)
	}
	return k, nil
}

// OAEPLimit returns the maximum plaintext size for the key under OAEP/SHA-256.
// A 2048-bit modulus yields 190 bytes; there is no chunking in this path, so
// callers must keep payloads under the bound.
func OAEPLimit(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// Encrypt serializes v to JSON, encrypts with RSA-OAEP/SHA-256 under the PEM
// public key, and returns Base64 ciphertext.
func Encrypt(v any, publicKeyPEM string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if len(plain) > OAEPLimit(pub) {
		return "", fmt.Errorf("%w: payload %dB exceeds OAEP bound %dB", errs.ErrCrypto, len(plain), OAEPLimit(pub))
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plain, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrCrypto, err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt is the server-side counterpart of Encrypt; it unmarshals the
// recovered JSON into out. Padding or key mismatch returns ErrCrypto.
func Decrypt(b64 string, privateKeyPEM string, out any) error {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return err
	}
	ct, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("%w: bad base64: %v", errs.ErrCrypto, err)
	}
	plain, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ct, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrCrypto, err)
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// secretKey derives the AES-256 key from a shared secret.
func secretKey(sharedSecret string) [32]byte {
	return sha256.Sum256([]byte(sharedSecret))
}

// SealWithSecret encrypts data with AES-256-GCM under a key derived from the
// shared secret. A fresh random 96-bit nonce is prepended to the ciphertext
// before Base64 encoding; nonce reuse would break GCM confidentiality.
func SealWithSecret(data []byte, sharedSecret string) (string, error) {
	key := secretKey(sharedSecret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce, err := RandBytes(gcmNonceSize)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(data)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, data, nil)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// OpenWithSecret reverses SealWithSecret.
func OpenWithSecret(b64 string, sharedSecret string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", errs.ErrCrypto, err)
	}
	if len(raw) < gcmNonceSize {
		return nil, fmt.Errorf("%w: blob too short", errs.ErrCrypto)
	}
	key := secretKey(sharedSecret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, raw[:gcmNonceSize], raw[gcmNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCrypto, err)
	}
	return plain, nil
}

// EncryptID encrypts an identity id under the shared secret.
func EncryptID(id string, sharedSecret string) (string, error) {
	return SealWithSecret([]byte(id), sharedSecret)
}

// DecryptID reverses EncryptID.
func DecryptID(b64 string, sharedSecret string) (string, error) {
	plain, err := OpenWithSecret(b64, sharedSecret)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
