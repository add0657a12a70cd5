package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"license-server/internal/database"
	"license-server/internal/logging"
)

// SeedAdminUser ensures a developer account exists so a fresh deployment can
// be administered. It creates the account when missing and never overwrites
// an existing one.
func SeedAdminUser(ctx context.Context, repo *database.Repository, username, password string) error {
	if password == "" {
		return fmt.Errorf("admin password must be configured for seeding")
	}

	log := logging.Component("auth")

	existing, err := repo.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &database.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         database.RoleDeveloper,
		IsActive:     true,
	}

	if err := repo.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.Info().Str("username", username).Msg("seeded admin user")
	return nil
}
