package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"training-portal/internal/auth"
	"training-portal/internal/config"
	"training-portal/internal/domain"
	"training-portal/internal/infra/local"
	pgstore "training-portal/internal/infra/postgres"
)

// NewSeedAdminCmd provisions (or re-provisions) a super admin account.
// Elevation happens here, never through the sign-in path.
func NewSeedAdminCmd(configPath *string) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Provision a super admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedAdmin(cmd.Context(), *configPath, email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func runSeedAdmin(ctx context.Context, configPath, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}
	if !auth.ValidatePassword(password).OK() {
		return fmt.Errorf("password does not meet the policy: 8+ chars, uppercase, number, special character")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured; seed-admin needs a database")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	creds := pgstore.NewCredentialStore(pool)
	profiles := pgstore.NewProfileStore(pool)

	subjectID := uuid.NewString()
	existing, err := creds.GetCredentialByEmail(ctx, email)
	switch {
	case err == nil:
		subjectID = existing.SubjectID
	case errors.Is(err, domain.ErrProfileNotFound):
	default:
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := creds.SaveCredential(ctx, local.StoredCredential{
		SubjectID:    subjectID,
		Email:        email,
		PasswordHash: hash,
	}); err != nil {
		return err
	}

	now := time.Now()
	if err := profiles.UpsertProfile(ctx, domain.Profile{
		ID:                     subjectID,
		Email:                  email,
		Role:                   domain.RoleSuperAdmin,
		PasswordChangeRequired: true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}); err != nil {
		return err
	}

	log.Printf("super admin provisioned: %s (%s)", email, subjectID)
	return nil
}
