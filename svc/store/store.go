package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("record not found")

// DB is the subset of *pgxpool.Pool used by the repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads and writes the business tables the job workers touch.
// Every write goes through Secure so that it leaves an audit trail.
type Repository struct {
	db     DB
	secure *Secure
	now    func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRepository creates the repository. Writes go through secure.
func NewRepository(db DB, secure *Secure, opts ...Option) *Repository {
	r := &Repository{db: db, secure: secure, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
