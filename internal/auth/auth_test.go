package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xtrntr/nuamexchange/internal/memstore"
	"github.com/xtrntr/nuamexchange/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "my-secret-key"

func newTestService(t *testing.T) (*AuthService, *MemorySessionStore) {
	t.Helper()
	users := memstore.New()
	if _, err := SeedUsers(context.Background(), users, DefaultAccounts, bcrypt.MinCost); err != nil {
		t.Fatalf("Failed to seed users: %v", err)
	}
	sessions := NewMemorySessionStore()
	return NewAuthService(users, sessions, testSecret), sessions
}

func TestAuthService_Authenticate(t *testing.T) {
	s, sessions := newTestService(t)

	tests := []struct {
		name         string
		username     string
		password     string
		expectError  bool
		expectRole   models.Role
		expectMarket models.Market
	}{
		{
			name:         "Operador",
			username:     "MirtaAguilar",
			password:     "1234",
			expectRole:   models.RoleOperador,
			expectMarket: models.MarketCL,
		},
		{
			name:         "Admin",
			username:     "GabrielFuentes",
			password:     "admin",
			expectRole:   models.RoleAdmin,
			expectMarket: models.MarketRegional,
		},
		{
			name:        "WrongPassword",
			username:    "MirtaAguilar",
			password:    "wrongpass",
			expectError: true,
		},
		{
			name:        "NonExistentUser",
			username:    "bob",
			password:    "1234",
			expectError: true,
		},
		{
			name:        "EmptyPassword",
			username:    "MirtaAguilar",
			password:    "",
			expectError: true,
		},
		{
			name:        "LongPassword",
			username:    "MirtaAguilar",
			password:    strings.Repeat("p", 1000),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := sessions.Len()
			identity, token, err := s.Authenticate(context.Background(), tt.username, tt.password)
			if tt.expectError {
				if !errors.Is(err, models.ErrUnauthenticated) {
					t.Errorf("expected ErrUnauthenticated, got %v", err)
				}
				if sessions.Len() != before {
					t.Errorf("failed login opened a session")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if identity.Role != tt.expectRole || identity.Market != tt.expectMarket || identity.Username != tt.username {
				t.Errorf("unexpected identity: %+v", identity)
			}

			parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(testSecret), nil
			})
			if err != nil {
				t.Fatalf("invalid token: %v", err)
			}
			claims := parsed.Claims.(*jwt.RegisteredClaims)
			if claims.Subject != identity.UserID || claims.ID == "" {
				t.Errorf("invalid token claims: %+v", claims)
			}
			if claims.ExpiresAt != nil {
				t.Errorf("session tokens must not expire")
			}
		})
	}
}

func TestAuthService_Authenticate_DistinctTokens(t *testing.T) {
	s, sessions := newTestService(t)
	ctx := context.Background()

	_, first, err := s.Authenticate(ctx, "MirtaAguilar", "1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, second, err := s.Authenticate(ctx, "MirtaAguilar", "1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Error("expected a fresh token per login")
	}
	if sessions.Len() != 2 {
		t.Errorf("expected 2 sessions, got %d", sessions.Len())
	}
}

func TestAuthService_Resolve(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	identity, token, err := s.Authenticate(ctx, "GabrielFuentes", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ID: "unknown", Subject: identity.UserID})
	forgedStr, _ := forged.SignedString([]byte(testSecret))
	wrongKey, _ := forged.SignedString([]byte("wrong-key"))
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        "x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	expiredStr, _ := expired.SignedString([]byte(testSecret))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{ID: "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name        string
		token       string
		expectError bool
	}{
		{name: "Success", token: token},
		{name: "UnknownSession", token: forgedStr, expectError: true},
		{name: "InvalidSignature", token: wrongKey, expectError: true},
		{name: "Expired", token: expiredStr, expectError: true},
		{name: "NoneAlgorithm", token: unsigned, expectError: true},
		{name: "Garbage", token: "session_alice_123", expectError: true},
		{name: "EmptyToken", token: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Resolve(ctx, tt.token)
			if tt.expectError {
				if !errors.Is(err, models.ErrUnauthenticated) {
					t.Errorf("expected ErrUnauthenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != identity {
				t.Errorf("expected %+v, got %+v", identity, got)
			}
		})
	}
}

func TestAuthService_Revoke(t *testing.T) {
	s, sessions := newTestService(t)
	ctx := context.Background()
	_, token, err := s.Authenticate(ctx, "MirtaAguilar", "1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	identity, err := s.Revoke(ctx, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Username != "MirtaAguilar" {
		t.Errorf("unexpected identity: %+v", identity)
	}
	if sessions.Len() != 0 {
		t.Errorf("session not removed")
	}
	if _, err := s.Resolve(ctx, token); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("revoked token still resolves: %v", err)
	}
	if _, err := s.Revoke(ctx, token); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second revoke, got %v", err)
	}
	if _, err := s.Revoke(ctx, "garbage"); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for garbage token, got %v", err)
	}
}

type failingUsers struct{}

func (failingUsers) GetUserByUsername(context.Context, string) (*models.User, error) {
	return nil, models.Unavailable("mongodb", errors.New("connection refused"))
}

func TestAuthService_StoreUnavailable(t *testing.T) {
	s := NewAuthService(failingUsers{}, NewMemorySessionStore(), testSecret)
	_, _, err := s.Authenticate(context.Background(), "MirtaAguilar", "1234")
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSeedUsers(t *testing.T) {
	ctx := context.Background()
	users := memstore.New()

	n, err := SeedUsers(ctx, users, DefaultAccounts, bcrypt.MinCost)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 users created, got %d (err=%v)", n, err)
	}
	n, err = SeedUsers(ctx, users, DefaultAccounts, bcrypt.MinCost)
	if err != nil || n != 0 {
		t.Errorf("second seed should be a no-op, got %d (err=%v)", n, err)
	}

	user, err := users.GetUserByUsername(ctx, "GabrielFuentes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte("admin")); err != nil {
		t.Errorf("password hash mismatch")
	}

	bad := []Account{{Username: "x", Password: "y", Role: "Vendedor"}}
	if _, err := SeedUsers(ctx, memstore.New(), bad, bcrypt.MinCost); err == nil {
		t.Error("expected unknown role to be rejected")
	}
}
