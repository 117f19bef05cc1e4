package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/dbx"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query :=
		`INSERT INTO sessions (id, user_id, expires_at, created_at, is_remember_me, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.ExpiresAt, s.CreatedAt, s.IsRememberMe, s.IPAddress, s.UserAgent)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query :=
		`SELECT id, user_id, expires_at, created_at, is_remember_me, revoked_at, ip_address, user_agent
		 FROM sessions
		 WHERE id = $1
		 `

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt, &s.IsRememberMe, &s.RevokedAt, &s.IPAddress, &s.UserAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// UpdateExpiry slides the expiry of a session that has not been revoked.
func (r *PostgresRepository) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	query :=
		`UPDATE sessions SET expires_at = $2
		 WHERE id = $1 AND revoked_at IS NULL
		 `
	return r.execOne(ctx, query, id, expiresAt)
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	query :=
		`UPDATE sessions SET revoked_at = $2
		 WHERE id = $1 AND revoked_at IS NULL
		 `
	return r.execOne(ctx, query, id, at)
}

// RevokeForUser revokes a session only if it belongs to userID.
func (r *PostgresRepository) RevokeForUser(ctx context.Context, userID int64, id string, at time.Time) (bool, error) {
	query :=
		`UPDATE sessions SET revoked_at = $3
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
		 `
	return r.execOne(ctx, query, id, userID, at)
}

// RevokeAllForUser revokes every active session of userID except exceptID
// (empty means none) and returns how many were revoked.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID int64, exceptID string, at time.Time) (int64, error) {
	query :=
		`UPDATE sessions SET revoked_at = $2
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2 AND id <> $3
		 `

	res, err := r.db.ExecContext(ctx, query, userID, at, exceptID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, userID int64, now time.Time) ([]models.Session, error) {
	query :=
		`SELECT id, user_id, expires_at, created_at, is_remember_me, ip_address, user_agent
		 FROM sessions
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		 ORDER BY created_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt, &s.IsRememberMe, &s.IPAddress, &s.UserAgent); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// DeleteExpired removes rows whose expiry has passed, revoked or not.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Stats(ctx context.Context, now time.Time) (*models.SessionStats, error) {
	query :=
		`SELECT count(*),
		        count(DISTINCT user_id),
		        count(*) FILTER (WHERE is_remember_me),
		        count(*) FILTER (WHERE expires_at <= $1::timestamptz + interval '24 hours'),
		        COALESCE(avg(EXTRACT(EPOCH FROM (expires_at - created_at))), 0)
		 FROM sessions
		 WHERE revoked_at IS NULL AND expires_at > $1
		 `

	st := &models.SessionStats{}
	err := r.db.QueryRowContext(ctx, query, now).Scan(
		&st.TotalActiveSessions, &st.ActiveUsers, &st.RememberMeSessions, &st.ExpiringWithin24h, &st.AverageDurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}

// Footprints returns the users whose active sessions exceed any of the given
// thresholds.
func (r *PostgresRepository) Footprints(ctx context.Context, now time.Time, maxSessions, maxIPs, maxUserAgents int) ([]models.SessionFootprint, error) {
	query :=
		`SELECT user_id, count(*), count(DISTINCT ip_address), count(DISTINCT user_agent)
		 FROM sessions
		 WHERE revoked_at IS NULL AND expires_at > $1
		 GROUP BY user_id
		 HAVING count(*) > $2 OR count(DISTINCT ip_address) > $3 OR count(DISTINCT user_agent) > $4
		 ORDER BY user_id
		 `

	rows, err := r.db.QueryContext(ctx, query, now, maxSessions, maxIPs, maxUserAgents)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.SessionFootprint
	for rows.Next() {
		var f models.SessionFootprint
		if err := rows.Scan(&f.UserID, &f.ActiveSessions, &f.DistinctIPs, &f.DistinctUserAgents); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
