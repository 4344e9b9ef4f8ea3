package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJWT_RoundTrip(t *testing.T) {
	s := NewJWTService("secret", 10, 60)
	id := uuid.New()
	pair, err := s.Pair(id, "alice")
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}

	claims, err := s.Validate(pair.AccessToken, TokenAccess)
	if err != nil {
		t.Fatalf("Validate access: %v", err)
	}
	if claims.UserID != id || claims.Username != "alice" || claims.ID == "" {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := s.Validate(pair.RefreshToken, TokenRefresh); err != nil {
		t.Fatalf("Validate refresh: %v", err)
	}
}

func TestJWT_RejectsWrongType(t *testing.T) {
	s := NewJWTService("secret", 10, 60)
	pair, _ := s.Pair(uuid.New(), "alice")
	if _, err := s.Validate(pair.RefreshToken, TokenAccess); !errors.Is(err, ErrTokenType) {
		t.Fatalf("err = %v, want ErrTokenType", err)
	}
	if _, err := s.Validate(pair.AccessToken, TokenRefresh); !errors.Is(err, ErrTokenType) {
		t.Fatalf("err = %v, want ErrTokenType", err)
	}
}

func TestJWT_RejectsForeignSecretAndExpiry(t *testing.T) {
	s := NewJWTService("secret", 10, 60)
	tok, _ := s.Generate(uuid.New(), "alice", TokenAccess)

	other := NewJWTService("other", 10, 60)
	if _, err := other.Validate(tok, TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign secret err = %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	if _, err := s.Validate(tok, TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired err = %v", err)
	}
}

func TestJWT_UniqueIDs(t *testing.T) {
	s := NewJWTService("secret", 10, 60)
	id := uuid.New()
	a, _ := s.Generate(id, "alice", TokenAccess)
	b, _ := s.Generate(id, "alice", TokenAccess)
	ca, _ := s.Validate(a, TokenAccess)
	cb, _ := s.Validate(b, TokenAccess)
	if ca.ID == cb.ID {
		t.Fatalf("token ids repeat: %s", ca.ID)
	}
}
