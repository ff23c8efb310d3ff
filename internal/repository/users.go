package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/uwececa/dblayer/internal/database"
	"github.com/uwececa/dblayer/internal/errs"
)

// User is a row of users.
type User struct {
	ID         int64      `db:"id"`
	Email      string     `db:"email"`
	Password   string     `db:"password"`
	VerifiedAt *time.Time `db:"verified_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// UserRepository reads and writes users.
type UserRepository struct{}

const userColumns = "id, email, password, verified_at, created_at, updated_at"

// Create inserts a user. password must already be hashed.
func (r *UserRepository) Create(ctx context.Context, ex database.Executor, email, password string) (*User, error) {
	rows, err := ex.Query(ctx,
		"insert into users (email, password) values ($1, $2) returning "+userColumns,
		email, password)
	if err != nil {
		return nil, errs.FromDB(err, "user")
	}
	user, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[User])
	if err != nil {
		return nil, errs.FromDB(err, "user")
	}
	return user, nil
}

// GetByEmail returns the user with email, or a 404.
func (r *UserRepository) GetByEmail(ctx context.Context, ex database.Executor, email string) (*User, error) {
	rows, err := ex.Query(ctx, "select "+userColumns+" from users where email = $1", email)
	if err != nil {
		return nil, errs.FromDB(err, "user")
	}
	user, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[User])
	if err != nil {
		return nil, errs.FromDB(err, "user")
	}
	return user, nil
}

// MarkVerified stamps verified_at on the user, or returns a 404.
func (r *UserRepository) MarkVerified(ctx context.Context, ex database.Executor, id int64, at time.Time) error {
	tag, err := ex.Exec(ctx,
		"update users set verified_at = $2, updated_at = now() where id = $1", id, at)
	if err != nil {
		return errs.FromDB(err, "user")
	}
	if tag.RowsAffected() == 0 {
		return errs.FromDB(pgx.ErrNoRows, "user")
	}
	return nil
}
