package auth

import (
	"context"
	"fmt"

	"helpdesk/internal/models"

	"github.com/rs/zerolog"
)

// UserBootstrapper creates the first staff account
type UserBootstrapper interface {
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// EnsureAdmin creates an admin from ADMIN_EMAIL/ADMIN_PASSWORD when no staff
// account exists yet. It is a no-op when either value is empty.
func EnsureAdmin(ctx context.Context, users UserBootstrapper, email, password string, logger zerolog.Logger) error {
	if email == "" || password == "" {
		return nil
	}

	count, err := users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	admin := &models.User{
		Email:        email,
		FullName:     "Administrator",
		Role:         models.RoleAdmin,
		PasswordHash: hash,
	}
	if err := users.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	logger.Info().Str("email", admin.Email).Msg("Created bootstrap admin account")
	return nil
}
