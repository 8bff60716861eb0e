package auth

import (
	"context"
	"fmt"

	"github.com/xtrntr/nuamexchange/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// Account is a user to create at setup time
type Account struct {
	Username string
	Password string
	Role     models.Role
	Market   models.Market
}

// DefaultAccounts are the two users the simulator ships with
var DefaultAccounts = []Account{
	{Username: "MirtaAguilar", Password: "1234", Role: models.RoleOperador, Market: models.MarketCL},
	{Username: "GabrielFuentes", Password: "admin", Role: models.RoleAdmin, Market: models.MarketRegional},
}

// UserWriter is the store side of seeding
type UserWriter interface {
	CountUsers(ctx context.Context) (int64, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// SeedUsers creates accounts only when the store holds no users. It returns
// the number of users created.
func SeedUsers(ctx context.Context, w UserWriter, accounts []Account, cost int) (int, error) {
	n, err := w.CountUsers(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	for i, a := range accounts {
		if !a.Role.Valid() {
			return i, fmt.Errorf("account %q: unknown role %q", a.Username, a.Role)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), cost)
		if err != nil {
			return i, fmt.Errorf("failed to hash password for %q: %w", a.Username, err)
		}
		user := &models.User{Username: a.Username, PasswordHash: hash, Role: a.Role, Market: a.Market}
		if err := w.CreateUser(ctx, user); err != nil {
			return i, err
		}
	}
	return len(accounts), nil
}
