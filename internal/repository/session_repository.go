package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medprep/api/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `
	id, user_id, device_name, user_agent, ip_address, status,
	created_at, last_seen_at, revoked_at
`

// SessionRepository tracks one row per (user, device) pair and backs the
// single-active-session policy for students.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Upsert creates the row for (user_id, device_name, user_agent) or
// reactivates an existing one: status back to ACTIVE, revoked_at cleared,
// last-seen and ip refreshed. The stored id survives reactivation.
func (r *SessionRepository) Upsert(ctx context.Context, session models.Session) (models.Session, error) {
	query := `
		INSERT INTO sessions (
			id, user_id, device_name, user_agent, ip_address, status,
			created_at, last_seen_at, revoked_at
		) VALUES (
			$1, $2, $3, $4, $5, 'ACTIVE', NOW(), NOW(), NULL
		)
		ON CONFLICT (user_id, device_name, user_agent)
		DO UPDATE SET
			status = 'ACTIVE',
			revoked_at = NULL,
			ip_address = EXCLUDED.ip_address,
			last_seen_at = NOW()
		RETURNING ` + sessionColumns

	return r.scanOne(r.pool.QueryRow(ctx, query,
		session.ID,
		session.UserID,
		session.DeviceName,
		session.UserAgent,
		session.IPAddress,
	))
}

// FindActiveConflict returns an ACTIVE session of the user whose device
// identity differs from the one supplied, so re-login from the same device is
// never a conflict. When both deviceName and userAgent are given a session is
// only considered the same device if both match; with one field given, that
// field alone decides.
func (r *SessionRepository) FindActiveConflict(ctx context.Context, userID string, deviceName string, userAgent string) (models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
		  AND status = 'ACTIVE'
		  AND NOT (($2 = '' OR device_name = $2) AND ($3 = '' OR user_agent = $3))
		ORDER BY last_seen_at DESC
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, userID, deviceName, userAgent))
}

// Terminate revokes a single session, scoped to its owner.
func (r *SessionRepository) Terminate(ctx context.Context, userID string, sessionID string) error {
	const query = `
		UPDATE sessions SET status = 'TERMINATED', revoked_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	cmd, err := r.pool.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// TerminateAll revokes every ACTIVE session of the user and reports how many
// were affected.
func (r *SessionRepository) TerminateAll(ctx context.Context, userID string) (int64, error) {
	const query = `
		UPDATE sessions SET status = 'TERMINATED', revoked_at = NOW()
		WHERE user_id = $1 AND status = 'ACTIVE'
	`
	cmd, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
		ORDER BY last_seen_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// PurgeTerminated deletes TERMINATED rows revoked before the cutoff. Run by
// the nightly cleanup job.
func (r *SessionRepository) PurgeTerminated(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM sessions
		WHERE status = 'TERMINATED' AND revoked_at IS NOT NULL AND revoked_at < $1
	`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) scanOne(row pgx.Row) (models.Session, error) {
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceName,
		&session.UserAgent,
		&session.IPAddress,
		&session.Status,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.RevokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}
