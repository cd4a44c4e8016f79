package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"medprep/api/internal/config"
	"medprep/api/internal/ids"
	"medprep/api/internal/models"
	"medprep/api/internal/repository"
	"medprep/api/internal/security"
)

// EnsureAdminUser seeds one admin account from configuration at startup.
// Idempotent: an existing row is only repaired (role and verified flag),
// never recreated, and missing config skips the seed with a warning.
func EnsureAdminUser(ctx context.Context, users *repository.UserRepository, cfg *config.AppConfig, log zerolog.Logger) error {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		log.Warn().Msg("admin seed skipped: admin email/password not configured")
		return nil
	}

	existing, err := users.FindByEmail(ctx, cfg.Admin.Email)
	if err == nil {
		if existing.Role != models.UserRoleAdmin || !existing.IsEmailVerified {
			if err := users.PromoteToAdmin(ctx, cfg.Admin.Email); err != nil {
				return err
			}
			log.Info().Msg("existing admin account repaired")
		}
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	passwordHash, err := security.HashPassword(cfg.Admin.Password, cfg.Security.BcryptCost)
	if err != nil {
		return err
	}

	admin := models.User{
		ID:                 ids.New(),
		Email:              cfg.Admin.Email,
		PasswordHash:       passwordHash,
		FirstName:          "MRCS",
		LastName:           "Admin",
		Role:               models.UserRoleAdmin,
		MedicalCollegeName: "SOMC",
		IsEmailVerified:    true,
		IsProfileCompleted: true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}

	log.Info().Str("email", cfg.Admin.Email).Msg("admin account created")
	return nil
}
