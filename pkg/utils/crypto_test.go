package utils

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	plaintext := "EAAB...platform-access-token"

	encrypted, err := Encrypt([]byte(plaintext), key)
	if err != nil {
		t.Fatal(err)
	}
	if encrypted == plaintext {
		t.Fatalf("ciphertext should not equal plaintext")
	}

	decrypted, err := Decrypt(encrypted, key)
	if err != nil {
		t.Fatal(err)
	}
	if decrypted != plaintext {
		t.Fatalf("round trip mismatch: %q", decrypted)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	other := []byte("fedcba9876543210fedcba9876543210")

	encrypted, err := Encrypt([]byte("secret"), key)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decrypt(encrypted, other); err == nil {
		t.Fatalf("decrypting with the wrong key must fail")
	}
}
