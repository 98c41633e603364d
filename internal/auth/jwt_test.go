package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/replyguy/backend/internal/models"
)

func jwtTestUser() *models.User {
	return &models.User{
		ID:    "u1",
		Email: "u1@example.com",
		Tier:  models.TierPro,
	}
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.Generate(jwtTestUser())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "u1" {
		t.Errorf("expected user u1, got %s", claims.UserID)
	}
	if claims.Email != "u1@example.com" {
		t.Errorf("expected email u1@example.com, got %s", claims.Email)
	}
	if claims.Tier != models.TierPro {
		t.Errorf("expected tier pro, got %s", claims.Tier)
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", time.Hour).Generate(jwtTestUser())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := NewJWTService("secret-b", time.Hour).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestJWTRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	for _, token := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := svc.Validate(token); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}

func TestJWTExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute)

	token, err := svc.Generate(jwtTestUser())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := svc.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTRefreshWithinGrace(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute)

	expired, err := svc.Generate(jwtTestUser())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	fresh := NewJWTService("test-secret", time.Hour)
	refreshed, err := fresh.Refresh(expired)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	claims, err := fresh.Validate(refreshed)
	if err != nil {
		t.Fatalf("refreshed token failed validation: %v", err)
	}
	if claims.UserID != "u1" {
		t.Errorf("expected user u1 in refreshed token, got %s", claims.UserID)
	}
}
