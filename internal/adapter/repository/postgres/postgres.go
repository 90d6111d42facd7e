// Package postgres stores shortened URLs in a single PostgreSQL table. It
// implements the same contract as the Bigtable repository.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/entity"
)

const (
	uniqueViolationErrCode = "23505"
	defaultOpTimeout       = 5 * time.Second
)

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

type urlDB struct {
	ID          string    `db:"id"`
	OriginalURL string    `db:"original_url"`
	CreatedAt   time.Time `db:"created_at"`
	ClickCount  int64     `db:"click_count"`
	LastAccess  time.Time `db:"last_access"`
}

func (u *urlDB) toEntity() *entity.URL {
	return &entity.URL{
		ID:          u.ID,
		OriginalURL: u.OriginalURL,
		CreatedAt:   u.CreatedAt.UTC(),
		URLStats: entity.URLStats{
			ClickCount: u.ClickCount,
			LastAccess: u.LastAccess.UTC(),
		},
	}
}

type Option func(*URLRepository)

func WithOpTimeout(d time.Duration) Option {
	return func(r *URLRepository) {
		if d > 0 {
			r.opTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *URLRepository) {
		r.now = now
	}
}

type URLRepository struct {
	db        *sqlx.DB
	opTimeout time.Duration
	now       func() time.Time
}

func NewURLRepository(db *sqlx.DB, opts ...Option) *URLRepository {
	r := &URLRepository{
		db:        db,
		opTimeout: defaultOpTimeout,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *URLRepository) Save(ctx context.Context, url *entity.URL) error {
	const op = "adapter.repository.postgres.URLRepository.Save"
	const query = `INSERT INTO urls (id, original_url, created_at, click_count, last_access)
		VALUES ($1, $2, $3, 0, $3)
		ON CONFLICT (id) DO UPDATE SET
			original_url = EXCLUDED.original_url,
			created_at = EXCLUDED.created_at,
			click_count = 0,
			last_access = EXCLUDED.last_access`

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	createdAt := url.CreatedAt.UTC().Truncate(time.Second)

	if _, err := r.db.ExecContext(ctx, query, url.ID, url.OriginalURL, createdAt); err != nil {
		return fmt.Errorf("%s: failed to upsert into urls table: %w", op, storeError(err))
	}

	return nil
}

func (r *URLRepository) Create(ctx context.Context, url *entity.URL) error {
	const op = "adapter.repository.postgres.URLRepository.Create"
	const query = `INSERT INTO urls (id, original_url, created_at, click_count, last_access)
		VALUES ($1, $2, $3, 0, $3)`

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	createdAt := url.CreatedAt.UTC().Truncate(time.Second)

	if _, err := r.db.ExecContext(ctx, query, url.ID, url.OriginalURL, createdAt); err != nil {
		if isUniqueViolationError(err) {
			return fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
		}

		return fmt.Errorf("%s: failed to insert into urls table: %w", op, storeError(err))
	}

	return nil
}

func (r *URLRepository) FindByID(ctx context.Context, id string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.FindByID"
	const query = `SELECT id, original_url, created_at, click_count, last_access FROM urls WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, storeError(err))
	}

	return url.toEntity(), nil
}

// IncrementClick is a single UPDATE, so concurrent increments never race.
// A missing row matches nothing and is not reported.
func (r *URLRepository) IncrementClick(ctx context.Context, id string) error {
	const op = "adapter.repository.postgres.URLRepository.IncrementClick"
	const query = `UPDATE urls SET click_count = click_count + 1, last_access = $2 WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, id, r.now().UTC()); err != nil {
		return fmt.Errorf("%s: failed to update urls table row: %w", op, storeError(err))
	}

	return nil
}

func (r *URLRepository) Delete(ctx context.Context, id string) error {
	const op = "adapter.repository.postgres.URLRepository.Delete"
	const query = `DELETE FROM urls WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%s: failed to delete from urls table: %w", op, storeError(err))
	}

	return nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, err)
}
