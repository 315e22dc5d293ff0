package security

import "testing"

func TestHashPassword_NeverPlaintextAndVerifies(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	if hash == "secret1" {
		t.Fatalf("hash must not equal the plaintext")
	}

	if !VerifyPassword(hash, "secret1") {
		t.Fatalf("expected plaintext to verify against its hash")
	}

	if VerifyPassword(hash, "secret2") {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	b, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	if a == b {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestVerifyPassword_MalformedHashIsMismatch(t *testing.T) {
	if VerifyPassword("not-a-bcrypt-hash", "secret1") {
		t.Fatalf("malformed hash must not verify")
	}

	if !IsMalformedHash("not-a-bcrypt-hash") {
		t.Fatalf("expected malformed hash to be detected")
	}
}

func TestBurnCompare(t *testing.T) {
	if BurnCompare("projecthub-dummy-password") {
		t.Fatalf("BurnCompare must always report false")
	}
}

func TestTemporaryPassword(t *testing.T) {
	a, err := TemporaryPassword()
	if err != nil {
		t.Fatalf("TemporaryPassword error: %v", err)
	}
	b, _ := TemporaryPassword()

	if len(a) < 12 || a == b {
		t.Fatalf("unexpected temporary passwords %q %q", a, b)
	}
}
