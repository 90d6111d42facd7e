// Package postgres opens sqlx connection pools backed by the pgx driver and
// applies embedded schema migrations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type poolSettings struct {
	connMaxIdleTime time.Duration
	connMaxLifetime time.Duration
	maxIdleConns    int
	maxOpenConns    int
}

var defaultPoolSettings = poolSettings{
	connMaxIdleTime: 5 * time.Minute,
	connMaxLifetime: 30 * time.Minute,
	maxIdleConns:    5,
	maxOpenConns:    25,
}

type Option func(*poolSettings)

func WithConnMaxIdleTime(d time.Duration) Option {
	return func(s *poolSettings) {
		if d > 0 {
			s.connMaxIdleTime = d
		}
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(s *poolSettings) {
		if d > 0 {
			s.connMaxLifetime = d
		}
	}
}

func WithMaxIdleConns(n int) Option {
	return func(s *poolSettings) {
		if n > 0 {
			s.maxIdleConns = n
		}
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *poolSettings) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// New connects to dsn and verifies the connection before returning the pool.
func New(ctx context.Context, dsn string, opts ...Option) (*sqlx.DB, error) {
	const op = "postgres.New"

	s := defaultPoolSettings
	for _, opt := range opts {
		opt(&s)
	}

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}

	db.SetConnMaxIdleTime(s.connMaxIdleTime)
	db.SetConnMaxLifetime(s.connMaxLifetime)
	db.SetMaxIdleConns(s.maxIdleConns)
	db.SetMaxOpenConns(s.maxOpenConns)

	return db, nil
}
