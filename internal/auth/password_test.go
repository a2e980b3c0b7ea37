package auth

import "testing"

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "hunter2" {
		t.Fatal("expected hash to differ from password")
	}
	if !VerifyPassword(hash, "hunter2") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "hunter3") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestVerifyPasswordRejectsGarbageHash(t *testing.T) {
	if VerifyPassword("not-a-bcrypt-hash", "hunter2") {
		t.Fatal("expected invalid hash to fail verification")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	if !ConstantTimeEquals("abc", "abc") {
		t.Fatalf("expected equal strings")
	}
	if ConstantTimeEquals("abc", "abd") {
		t.Fatalf("expected non-equal strings")
	}
	if ConstantTimeEquals("abc", "abcd") {
		t.Fatalf("expected different lengths to fail")
	}
}
