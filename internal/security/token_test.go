package security

import (
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := SignAccessToken(testSecret, "user-1", "student", true, time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	claims, err := ParseAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.Subject != "user-1" || claims.Role != "student" || !claims.IsProfileComplete {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestEmailTokenRoundTrip(t *testing.T) {
	token, err := SignEmailToken(testSecret, "a@b.com", PurposeVerify, time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	claims, err := ParseEmailToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.Email != "a@b.com" || claims.Purpose != PurposeVerify {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	access, err := SignAccessToken(testSecret, "user-1", "student", true, time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	if _, err := ParseRefreshToken(access, testSecret); err == nil {
		t.Fatalf("expected access token to be rejected by refresh parser")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	token, err := SignRefreshToken(testSecret, "user-1", "admin", time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	claims, err := ParseRefreshToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignAccessToken(testSecret, "user-1", "student", true, -time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	if _, err := ParseAccessToken(token, testSecret); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	token, err := SignAccessToken(testSecret, "user-1", "student", true, time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	if _, err := ParseAccessToken(token, "other-secret"); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}
