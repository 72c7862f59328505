package query

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"uchat/internal/domain"
	"uchat/internal/models"
)

const sessionColumns = `id, user_id, expires_at, created_at, fingerprint`

// NewSession creates a session for the user, or refreshes the expiry of the
// one already issued for the same fingerprint.
func NewSession(ctx context.Context, db DB, user domain.UserID, duration time.Duration, fingerprint []byte) (models.Session, error) {
	rows, err := db.Query(ctx,
		`INSERT INTO sessions(id, user_id, expires_at, fingerprint)
		VALUES($1, $2, $3, $4)
		ON CONFLICT (user_id, fingerprint) DO UPDATE SET expires_at = EXCLUDED.expires_at
		RETURNING `+sessionColumns,
		domain.NewSessionID(), user, time.Now().Add(duration), fingerprint)
	if err != nil {
		return models.Session{}, mapErr(err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.Session])
	return s, mapErr(err)
}

// GetSession returns the session only while it has not expired.
func GetSession(ctx context.Context, db DB, id domain.SessionID) (models.Session, error) {
	rows, err := db.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND expires_at > now()`, id)
	if err != nil {
		return models.Session{}, err
	}
	s, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.Session])
	return s, mapErr(err)
}

func DeleteSession(ctx context.Context, db DB, id domain.SessionID) (DeleteStatus, error) {
	tag, err := db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return NotFound, err
	}
	return deleteStatus(tag), nil
}

// DeleteExpiredSessions returns how many rows were removed.
func DeleteExpiredSessions(ctx context.Context, db DB) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
