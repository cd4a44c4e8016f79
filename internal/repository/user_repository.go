package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medprep/api/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `
	id, email, password_hash, first_name, last_name, role, medical_college_name,
	phone, mbbs_passing_year, avatar_url, is_email_verified, is_profile_completed,
	is_deleted, created_at, updated_at
`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name, role, medical_college_name,
			phone, mbbs_passing_year, avatar_url, is_email_verified, is_profile_completed,
			is_deleted, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.MedicalCollegeName,
		user.Phone,
		user.MBBSPassingYear,
		user.AvatarURL,
		user.IsEmailVerified,
		user.IsProfileCompleted,
		user.IsDeleted,
	)
	return err
}

// FindByEmail returns the row for an email regardless of the soft-delete
// flag. The unique-email constraint spans deleted rows, so signup needs to
// see them.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

// GetByID excludes soft-deleted rows: a deleted account is indistinguishable
// from a missing one everywhere except signup.
func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_deleted = FALSE`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) SetEmailVerified(ctx context.Context, email string) error {
	const query = `
		UPDATE users SET is_email_verified = TRUE, updated_at = NOW()
		WHERE email = $1 AND is_deleted = FALSE
	`
	cmd, err := r.pool.Exec(ctx, query, email)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CompleteProfile writes the one-shot profile-completion fields keyed by
// email and flips is_profile_completed.
func (r *UserRepository) CompleteProfile(ctx context.Context, user models.User) error {
	const query = `
		UPDATE users SET
			first_name = $2,
			last_name = $3,
			role = $4,
			medical_college_name = $5,
			phone = $6,
			mbbs_passing_year = $7,
			password_hash = $8,
			is_profile_completed = TRUE,
			updated_at = NOW()
		WHERE email = $1 AND is_deleted = FALSE
	`
	cmd, err := r.pool.Exec(ctx, query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.MedicalCollegeName,
		user.Phone,
		user.MBBSPassingYear,
		user.PasswordHash,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, email string, passwordHash string) error {
	const query = `
		UPDATE users SET password_hash = $2, updated_at = NOW()
		WHERE email = $1 AND is_deleted = FALSE
	`
	cmd, err := r.pool.Exec(ctx, query, email, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile applies the mutable profile fields by id.
func (r *UserRepository) UpdateProfile(ctx context.Context, user models.User) error {
	const query = `
		UPDATE users SET
			first_name = $2,
			last_name = $3,
			medical_college_name = $4,
			phone = $5,
			mbbs_passing_year = $6,
			updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`
	cmd, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.MedicalCollegeName,
		user.Phone,
		user.MBBSPassingYear,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateAvatarURL(ctx context.Context, id string, avatarURL string) error {
	const query = `
		UPDATE users SET avatar_url = $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`
	cmd, err := r.pool.Exec(ctx, query, id, avatarURL)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) PromoteToAdmin(ctx context.Context, email string) error {
	const query = `
		UPDATE users SET role = 'admin', is_email_verified = TRUE, updated_at = NOW()
		WHERE email = $1
	`
	_, err := r.pool.Exec(ctx, query, email)
	return err
}

// SoftDelete marks the row deleted; the email stays reserved by the unique
// constraint.
func (r *UserRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `
		UPDATE users SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns visible non-admin accounts, newest first.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_deleted = FALSE AND role <> 'admin'
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) scanOne(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.MedicalCollegeName,
		&user.Phone,
		&user.MBBSPassingYear,
		&user.AvatarURL,
		&user.IsEmailVerified,
		&user.IsProfileCompleted,
		&user.IsDeleted,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
