package security

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if hash == "correct horse" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !VerifyPassword("correct horse", hash) {
		t.Fatalf("expected password to match")
	}
	if VerifyPassword("wrong", hash) {
		t.Fatalf("expected password mismatch")
	}
}
