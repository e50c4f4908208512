package security

import (
	"strings"
	"testing"
)

func TestEncryptorRoundtrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}
	if !enc.IsEnabled() {
		t.Fatal("expected encryptor to be enabled")
	}

	plaintext := "very-secret-access-token"
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if ciphertext == plaintext {
		t.Error("expected ciphertext to differ from plaintext")
	}

	got, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != plaintext {
		t.Errorf("expected %q after roundtrip, got %q", plaintext, got)
	}
}

func TestEncryptorDisabledPassesThrough(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}
	if enc.IsEnabled() {
		t.Fatal("expected encryptor to be disabled")
	}

	out, err := enc.Encrypt("plain")
	if err != nil || out != "plain" {
		t.Errorf("expected passthrough, got %q, err %v", out, err)
	}
	out, err = enc.Decrypt("plain")
	if err != nil || out != "plain" {
		t.Errorf("expected passthrough, got %q, err %v", out, err)
	}
}

func TestEncryptorRejectsBadKey(t *testing.T) {
	if _, err := NewEncryptor([]byte("short")); err == nil {
		t.Error("expected error for wrong-size key")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	ciphertext, err := enc.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	tampered := strings.Map(func(r rune) rune {
		if r == 'A' {
			return 'B'
		}
		return 'A'
	}, ciphertext)

	if _, err := enc.Decrypt(tampered); err == nil {
		t.Error("expected tampered ciphertext to fail decryption")
	}
}

func TestKeyBase64Roundtrip(t *testing.T) {
	key, _ := GenerateKey()
	decoded, err := KeyFromBase64(KeyToBase64(key))
	if err != nil {
		t.Fatalf("KeyFromBase64 failed: %v", err)
	}
	if string(decoded) != string(key) {
		t.Error("expected key to survive base64 roundtrip")
	}
}
