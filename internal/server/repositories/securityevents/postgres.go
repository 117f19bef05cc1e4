package securityevents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/dbx"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresRepository) Insert(ctx context.Context, e *models.SecurityEvent) error {
	query :=
		`INSERT INTO security_events (id, event_type, user_id, email, ip_address, user_agent, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 `

	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	var userID sql.NullInt64
	if e.UserID != nil {
		userID = sql.NullInt64{Int64: *e.UserID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query, e.ID, e.EventType, userID,
		nullString(e.Email), nullString(e.IPAddress), nullString(e.UserAgent), raw, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListBetween returns events with from <= created_at < to, oldest first.
func (r *PostgresRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.SecurityEvent, error) {
	query :=
		`SELECT id, event_type, user_id, email, ip_address, user_agent, details, created_at
		 FROM security_events
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at
		 `
	return r.list(ctx, query, from, to)
}

// ListRecent returns the newest events, optionally of a single type.
func (r *PostgresRepository) ListRecent(ctx context.Context, eventType string, limit int) ([]models.SecurityEvent, error) {
	query :=
		`SELECT id, event_type, user_id, email, ip_address, user_agent, details, created_at
		 FROM security_events
		 WHERE ($1 = '' OR event_type = $1)
		 ORDER BY created_at DESC
		 LIMIT $2
		 `
	return r.list(ctx, query, eventType, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.SecurityEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.SecurityEvent
	for rows.Next() {
		var (
			e             models.SecurityEvent
			userID        sql.NullInt64
			email, ip, ua sql.NullString
			details       []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &userID, &email, &ip, &ua, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			e.UserID = &id
		}
		e.Email, e.IPAddress, e.UserAgent = email.String, ip.String, ua.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
