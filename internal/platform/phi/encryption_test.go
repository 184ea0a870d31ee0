package phi

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func TestNewEncryptorKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		if _, err := NewEncryptor(make([]byte, n)); err == nil {
			t.Errorf("expected error for %d-byte key", n)
		}
	}
	if _, err := NewEncryptor(testKey()); err != nil {
		t.Errorf("32-byte key rejected: %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}

	for _, plain := range []string{"", "Jane Doe", `{"firstName":"Jane","medicareNumber":"2950 12345 1"}`} {
		ct, err := enc.Encrypt(plain)
		if err != nil {
			t.Fatalf("encrypt %q: %v", plain, err)
		}
		if ct == plain && plain != "" {
			t.Errorf("ciphertext equals plaintext for %q", plain)
		}
		got, err := enc.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt %q: %v", plain, err)
		}
		if got != plain {
			t.Errorf("round trip: got %q, want %q", got, plain)
		}
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}
	a, _ := enc.Encrypt("Jane Doe")
	b, _ := enc.Encrypt("Jane Doe")
	if a == b {
		t.Error("two encryptions of the same plaintext must differ (random nonce)")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := enc.Decrypt("not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := enc.Decrypt("c2hvcnQ="); err == nil {
		t.Error("expected error for ciphertext shorter than the nonce")
	}

	// A valid ciphertext under a different key must fail authentication.
	otherKey := testKey()
	otherKey[0] ^= 0xff
	other, err := NewEncryptor(otherKey)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := other.Encrypt("Jane Doe")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Decrypt(ct); err == nil {
		t.Error("expected authentication failure under the wrong key")
	}
}

func TestFromHexKey(t *testing.T) {
	logger := zerolog.Nop()

	enc, err := FromHexKey("", logger)
	if err != nil || enc != nil {
		t.Errorf("empty key: got (%v, %v), want (nil, nil)", enc, err)
	}

	if _, err := FromHexKey("not-hex", logger); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := FromHexKey("abcd", logger); err == nil {
		t.Error("expected error for short key")
	}

	valid := strings.Repeat("ab", 32)
	enc, err = FromHexKey(valid, logger)
	if err != nil || enc == nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	ct, err := enc.Encrypt("Jane Doe")
	if err != nil {
		t.Fatal(err)
	}
	if got, err := enc.Decrypt(ct); err != nil || got != "Jane Doe" {
		t.Errorf("round trip through hex-derived key failed: %q, %v", got, err)
	}
}
