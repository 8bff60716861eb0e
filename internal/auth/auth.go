package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xtrntr/nuamexchange/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore looks up stored accounts
type CredentialStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService handles user authentication and session tokens
type AuthService struct {
	Users    CredentialStore
	Sessions SessionStore
	secret   []byte
	now      func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users CredentialStore, sessions SessionStore, secret string) *AuthService {
	return &AuthService{Users: users, Sessions: sessions, secret: []byte(secret), now: time.Now}
}

// dummyHash is compared against when the username does not exist so both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

// Authenticate verifies credentials and opens a session. Tokens carry no
// expiry; they stay valid until revoked or the session store is reset.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (models.Identity, string, error) {
	if username == "" || password == "" {
		return models.Identity{}, "", fmt.Errorf("username and password required: %w", models.ErrUnauthenticated)
	}

	user, err := s.Users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return models.Identity{}, "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthenticated)
		}
		return models.Identity{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return models.Identity{}, "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthenticated)
	}

	identity := user.Identity()
	sessionID := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:       sessionID,
		Subject:  identity.UserID,
		IssuedAt: jwt.NewNumericDate(s.now()),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return models.Identity{}, "", fmt.Errorf("failed to sign token: %w", err)
	}

	if err := s.Sessions.Put(ctx, sessionID, identity); err != nil {
		return models.Identity{}, "", err
	}
	return identity, tokenString, nil
}

// Resolve returns the identity bound to a live session token
func (s *AuthService) Resolve(ctx context.Context, tokenString string) (models.Identity, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return models.Identity{}, err
	}

	identity, err := s.Sessions.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Identity{}, fmt.Errorf("session not found: %w", models.ErrUnauthenticated)
		}
		return models.Identity{}, err
	}
	if identity.UserID != claims.Subject {
		return models.Identity{}, fmt.Errorf("session subject mismatch: %w", models.ErrUnauthenticated)
	}
	return identity, nil
}

// Revoke closes the session behind a token. A well-formed token whose
// session is already gone yields ErrNotFound.
func (s *AuthService) Revoke(ctx context.Context, tokenString string) (models.Identity, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return models.Identity{}, err
	}
	identity, err := s.Sessions.Get(ctx, claims.ID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("session: %w", err)
	}
	if err := s.Sessions.Delete(ctx, claims.ID); err != nil {
		return models.Identity{}, fmt.Errorf("session: %w", err)
	}
	return identity, nil
}

func (s *AuthService) parse(tokenString string) (*jwt.RegisteredClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing session token: %w", models.ErrUnauthenticated)
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.ID == "" {
		return nil, fmt.Errorf("invalid session token: %w", models.ErrUnauthenticated)
	}
	return claims, nil
}
