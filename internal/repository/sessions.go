package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/uwececa/dblayer/internal/database"
	"github.com/uwececa/dblayer/internal/errs"
	"github.com/uwececa/dblayer/internal/sqlerr"
)

// Session is a row of sessions.
type Session struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
}

// SessionRepository reads and writes sessions.
type SessionRepository struct{}

const sessionColumns = "id, user_id, token, expires_at"

// Create opens a session for userID. A missing user is reported against
// the user, everything else against the session.
func (r *SessionRepository) Create(ctx context.Context, ex database.Executor, userID int64, token string, expiresAt time.Time) (*Session, error) {
	rows, err := ex.Query(ctx,
		"insert into sessions (user_id, token, expires_at) values ($1, $2, $3) returning "+sessionColumns,
		userID, token, expiresAt)
	if err != nil {
		return nil, createSessionError(err)
	}
	session, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Session])
	if err != nil {
		return nil, createSessionError(err)
	}
	return session, nil
}

func createSessionError(err error) error {
	if sqlerr.KindOf(sqlerr.Classify(err)) == sqlerr.ForeignKeyViolation {
		return errs.FromDB(err, "user")
	}
	return errs.FromDB(err, "session")
}

// GetValid returns the unexpired session for token, or a 404.
func (r *SessionRepository) GetValid(ctx context.Context, ex database.Executor, token string, now time.Time) (*Session, error) {
	rows, err := ex.Query(ctx,
		"select "+sessionColumns+" from sessions where token = $1 and expires_at > $2", token, now)
	if err != nil {
		return nil, errs.FromDB(err, "session")
	}
	session, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Session])
	if err != nil {
		return nil, errs.FromDB(err, "session")
	}
	return session, nil
}

// DeleteExpired removes sessions that expired before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, ex database.Executor, now time.Time) (int64, error) {
	tag, err := ex.Exec(ctx, "delete from sessions where expires_at <= $1", now)
	if err != nil {
		return 0, errs.FromDB(err, "session")
	}
	return tag.RowsAffected(), nil
}
