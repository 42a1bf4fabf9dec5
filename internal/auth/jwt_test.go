package auth

import (
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	pwd := "s3cr3t-password"
	hash, err := HashPassword(pwd)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if err := CheckPassword(hash, pwd); err != nil {
		t.Fatalf("CheckPassword failed when password should match: %v", err)
	}

	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("CheckPassword succeeded when it should have failed")
	}
}

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	token, _, err := m.GenerateToken("usr_1700000000000ABCDEFG", "test@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	if claims.UserID != "usr_1700000000000ABCDEFG" {
		t.Fatalf("claims.UserID mismatch: got %s", claims.UserID)
	}
	if claims.Email != "test@example.com" {
		t.Fatalf("claims.Email mismatch: got %s", claims.Email)
	}
}

func TestJWTManager_RejectsWrongSecret(t *testing.T) {
	m1 := NewJWTManager("secret-one", 5*time.Minute)
	m2 := NewJWTManager("secret-two", 5*time.Minute)

	token, _, err := m1.GenerateToken("usr_x", "x@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := m2.VerifyToken(token); err == nil {
		t.Fatal("expected verification failure for token signed with different secret")
	}
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -1*time.Minute)

	token, _, err := m.GenerateToken("usr_x", "x@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := m.VerifyToken(token); err == nil {
		t.Fatal("expected verification failure for expired token")
	}
}
