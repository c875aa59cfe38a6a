package auth

import (
	"strings"
	"testing"
)

func TestHashPasskey_RoundTrip(t *testing.T) {
	hash, err := HashPasskey("valve-passkey-1234")
	if err != nil {
		t.Fatalf("HashPasskey() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should start with $argon2id$, got %q", hash)
	}

	ok, err := VerifyPasskey("valve-passkey-1234", hash)
	if err != nil {
		t.Fatalf("VerifyPasskey() error = %v", err)
	}
	if !ok {
		t.Error("VerifyPasskey() should return true for the correct passkey")
	}

	ok, err = VerifyPasskey("valve-passkey-4321", hash)
	if err != nil {
		t.Fatalf("VerifyPasskey() error = %v", err)
	}
	if ok {
		t.Error("VerifyPasskey() should return false for a wrong passkey")
	}
}

func TestHashPasskey_UniqueSalts(t *testing.T) {
	hash1, err := HashPasskey("same")
	if err != nil {
		t.Fatal(err)
	}
	hash2, err := HashPasskey("same")
	if err != nil {
		t.Fatal(err)
	}
	if hash1 == hash2 {
		t.Error("two hashes of the same passkey should have different salts")
	}
}

func TestVerifyPasskey_InvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not PHC", "plaintext"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$salt$hash"},
		{"too few parts", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyPasskey("passkey", tt.hash); err == nil {
				t.Error("VerifyPasskey() should return error for invalid hash format")
			}
		})
	}
}

func TestHashPasskey_PHCFormat(t *testing.T) {
	hash, err := HashPasskey("test")
	if err != nil {
		t.Fatalf("HashPasskey() error = %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("PHC format should have 6 $-delimited parts, got %d: %q", len(parts), hash)
	}
	if parts[1] != "argon2id" || parts[2] != "v=19" || parts[3] != "m=65536,t=3,p=1" {
		t.Errorf("unexpected PHC header %q", strings.Join(parts[:4], "$"))
	}
}
