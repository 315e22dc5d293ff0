package db

import (
	"context"
	"errors"

	"github.com/geocoder89/projecthub/internal/config"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/security"
)

type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, in user.NewUser) (user.User, error)
}

// EnsureAdminUser creates the bootstrap admin once. Existing accounts are left alone.
func EnsureAdminUser(ctx context.Context, store AdminStore, cfg config.Config) (bool, error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, nil
	}

	email := user.NormalizeEmail(cfg.AdminEmail)

	// check if the user exists

	_, err := store.GetByEmail(ctx, email)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return false, err
	}

	_, err = store.Create(ctx, user.NewUser{
		Username:     cfg.AdminUsername,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		IsVerified:   true,
		IsFirstLogin: false,
	})

	if err != nil {
		return false, err
	}

	return true, nil
}
