package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"

	"github.com/carebridge/carebridge/internal/errs"
)

func genKeyPair(t *testing.T) (pubPEM, privPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: mustPKIX(t, &key.PublicKey),
	})
	priv := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return string(pub), string(priv)
}

func mustPKIX(t *testing.T, pub *rsa.PublicKey) []byte {
	t.Helper()
	b, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return b
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	t.Parallel()
	pubPEM, privPEM := genKeyPair(t)

	in := map[string]string{"email": "a@b.com", "password": "x"}
	ct, err := Encrypt(in, pubPEM)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(ct, "a@b.com") {
		t.Fatalf("ciphertext leaks plaintext")
	}

	var out map[string]string
	if err := Decrypt(ct, privPEM, &out); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if out["email"] != "a@b.com" || out["password"] != "x" {
		t.Fatalf("roundtrip mismatch: %v", out)
	}
}

func TestEncrypt_RejectsOversizedPayload(t *testing.T) {
	t.Parallel()
	pubPEM, _ := genKeyPair(t)

	// 2048-bit key bounds OAEP plaintext at 190 bytes.
	big := map[string]string{"data": strings.Repeat("x", 300)}
	_, err := Encrypt(big, pubPEM)
	if !errors.Is(err, errs.ErrCrypto) {
		t.Fatalf("want ErrCrypto on oversized payload, got %v", err)
	}
}

func TestEncrypt_RejectsMalformedKey(t *testing.T) {
	t.Parallel()
	if _, err := Encrypt("x", "not a pem"); !errors.Is(err, errs.ErrCrypto) {
		t.Fatalf("want ErrCrypto on bad PEM, got %v", err)
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	t.Parallel()
	pubPEM, _ := genKeyPair(t)
	_, otherPriv := genKeyPair(t)

	ct, err := Encrypt("hello", pubPEM)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	var out string
	if err := Decrypt(ct, otherPriv, &out); !errors.Is(err, errs.ErrCrypto) {
		t.Fatalf("want ErrCrypto on key mismatch, got %v", err)
	}
}

func TestEncryptDecryptID_Roundtrip(t *testing.T) {
	t.Parallel()
	const secret = "shared-secret"
	id := "9f1c2b6a-1111-4222-8333-444455556666"

	ct, err := EncryptID(id, secret)
	if err != nil {
		t.Fatalf("EncryptID: %v", err)
	}
	got, err := DecryptID(ct, secret)
	if err != nil {
		t.Fatalf("DecryptID: %v", err)
	}
	if got != id {
		t.Fatalf("roundtrip mismatch: %q", got)
	}
}

func TestEncryptID_FreshNoncePerCall(t *testing.T) {
	t.Parallel()
	const secret = "shared-secret"
	a, err := EncryptID("same-id", secret)
	if err != nil {
		t.Fatalf("EncryptID: %v", err)
	}
	b, err := EncryptID("same-id", secret)
	if err != nil {
		t.Fatalf("EncryptID: %v", err)
	}
	if a == b {
		t.Fatalf("two ciphertexts for the same id must differ (IV reuse)")
	}
}

func TestDecryptID_WrongSecretFails(t *testing.T) {
	t.Parallel()
	ct, err := EncryptID("id-1", "secret-a")
	if err != nil {
		t.Fatalf("EncryptID: %v", err)
	}
	if _, err := DecryptID(ct, "secret-b"); !errors.Is(err, errs.ErrCrypto) {
		t.Fatalf("want ErrCrypto on wrong secret, got %v", err)
	}
	if _, err := DecryptID("AA==", "secret-a"); !errors.Is(err, errs.ErrCrypto) {
		t.Fatalf("want ErrCrypto on short blob, got %v", err)
	}
}
