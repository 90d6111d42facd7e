// Package bigtable stores shortened URLs in a Cloud Bigtable table.
//
// Each short code is a row key with two column families: short_urls holds the
// destination URL and the creation time, metadata holds the click count and the
// last access time. The split lets a resolution rewrite only the metadata cells.
package bigtable

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"cloud.google.com/go/bigtable"
	"github.com/cenkalti/backoff/v4"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/entity"
)

const (
	familyContent  = "short_urls"
	colOriginalURL = "original_url"
	colCreatedAt   = "created_at"

	familyMetadata = "metadata"
	colClickCount  = "click_count"
	colLastAccess  = "last_access"
)

const (
	defaultOpTimeout         = 5 * time.Second
	maxIncrementAttempts     = 20
	incrementInitialInterval = 2 * time.Millisecond
	incrementMaxInterval     = 100 * time.Millisecond
)

// ColumnFamilies lists the families the table must have.
var ColumnFamilies = []string{familyContent, familyMetadata}

var (
	errMalformedRow = errors.New("malformed row")
	errCountChanged = errors.New("click count changed since read")
)

type Option func(*URLRepository)

// WithOpTimeout bounds every repository call.
func WithOpTimeout(d time.Duration) Option {
	return func(r *URLRepository) {
		if d > 0 {
			r.opTimeout = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *URLRepository) {
		r.now = now
	}
}

type URLRepository struct {
	tbl       *bigtable.Table
	opTimeout time.Duration
	now       func() time.Time
}

func NewURLRepository(client *bigtable.Client, table string, opts ...Option) *URLRepository {
	r := &URLRepository{
		tbl:       client.Open(table),
		opTimeout: defaultOpTimeout,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Save writes both column families of url in a single row mutation. The click
// count is reset to zero and the last access time to url.CreatedAt. An existing
// row with the same key is overwritten.
func (r *URLRepository) Save(ctx context.Context, url *entity.URL) error {
	const op = "adapter.repository.bigtable.URLRepository.Save"

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.tbl.Apply(ctx, url.ID, newURLMutation(url)); err != nil {
		return fmt.Errorf("%s: failed to apply row mutation: %w", op, storeError(err))
	}

	return nil
}

// Create is Save guarded by a row-existence check done atomically by Bigtable.
// It returns entity.ErrShortCodeExists when the row already has cells.
func (r *URLRepository) Create(ctx context.Context, url *entity.URL) error {
	const op = "adapter.repository.bigtable.URLRepository.Create"

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	var exists bool

	mut := bigtable.NewCondMutation(bigtable.PassAllFilter(), nil, newURLMutation(url))
	if err := r.tbl.Apply(ctx, url.ID, mut, bigtable.GetCondMutationResult(&exists)); err != nil {
		return fmt.Errorf("%s: failed to apply conditional mutation: %w", op, storeError(err))
	}

	if exists {
		return fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	return nil
}

func (r *URLRepository) FindByID(ctx context.Context, id string) (*entity.URL, error) {
	const op = "adapter.repository.bigtable.URLRepository.FindByID"

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	row, err := r.tbl.ReadRow(ctx, id, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read row: %w", op, storeError(err))
	}

	if len(row) == 0 {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url, err := r.toEntity(id, row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return url, nil
}

// IncrementClick adds one to the click count and stamps the last access time.
// Only the metadata family is written. A missing row is left alone.
//
// The write is a compare-and-set on the current count, so concurrent increments
// are not lost and an increment racing a delete does not bring the row back.
// Lost races are retried with jittered exponential backoff; once the attempts
// run out entity.ErrConcurrentUpdate is returned and the count is unchanged.
func (r *URLRepository) IncrementClick(ctx context.Context, id string) error {
	const op = "adapter.repository.bigtable.URLRepository.IncrementClick"

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	readFilter := bigtable.ChainFilters(
		bigtable.FamilyFilter(familyMetadata),
		bigtable.ColumnFilter(colClickCount),
		bigtable.LatestNFilter(1),
	)

	attempt := func() error {
		row, err := r.tbl.ReadRow(ctx, id, bigtable.RowFilter(readFilter))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read click count: %w", storeError(err)))
		}

		if len(row) == 0 {
			return nil
		}

		raw, ok := latestCells(row)[column(familyMetadata, colClickCount)]
		if !ok {
			return backoff.Permanent(fmt.Errorf("%w: missing %s", errMalformedRow, colClickCount))
		}

		count, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: bad %s: %w", errMalformedRow, colClickCount, err))
		}

		unchanged := bigtable.ChainFilters(readFilter, bigtable.ValueFilter(regexp.QuoteMeta(string(raw))))

		upd := bigtable.NewMutation()
		upd.Set(familyMetadata, colClickCount, bigtable.ServerTime, []byte(strconv.FormatInt(count+1, 10)))
		upd.Set(familyMetadata, colLastAccess, bigtable.ServerTime, []byte(formatTime(r.now())))

		var matched bool

		mut := bigtable.NewCondMutation(unchanged, upd, nil)
		if err := r.tbl.Apply(ctx, id, mut, bigtable.GetCondMutationResult(&matched)); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to apply click update: %w", storeError(err)))
		}

		if !matched {
			return errCountChanged
		}

		return nil
	}

	err := backoff.Retry(attempt, r.incrementBackOff(ctx))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errCountChanged):
		return fmt.Errorf("%s: %w: gave up after %d attempts", op, entity.ErrConcurrentUpdate, maxIncrementAttempts)
	case errors.Is(err, entity.ErrStoreUnavailable), errors.Is(err, errMalformedRow):
		return fmt.Errorf("%s: %w", op, err)
	default:
		// The context expired while waiting between attempts.
		return fmt.Errorf("%s: %w", op, storeError(err))
	}
}

// incrementBackOff allows maxIncrementAttempts tries in total and stops early
// when ctx is done.
func (r *URLRepository) incrementBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = incrementInitialInterval
	b.MaxInterval = incrementMaxInterval
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, maxIncrementAttempts-1), ctx)
}

// Delete drops the whole row. Deleting a missing row is not an error.
func (r *URLRepository) Delete(ctx context.Context, id string) error {
	const op = "adapter.repository.bigtable.URLRepository.Delete"

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	mut := bigtable.NewMutation()
	mut.DeleteRow()

	if err := r.tbl.Apply(ctx, id, mut); err != nil {
		return fmt.Errorf("%s: failed to delete row: %w", op, storeError(err))
	}

	return nil
}

// newURLMutation stamps cells with the server clock so that hosts with
// skewed clocks cannot shadow each other's writes.
func newURLMutation(url *entity.URL) *bigtable.Mutation {
	ts := bigtable.ServerTime
	createdAt := url.CreatedAt.UTC().Truncate(time.Second)

	mut := bigtable.NewMutation()
	mut.Set(familyContent, colOriginalURL, ts, []byte(url.OriginalURL))
	mut.Set(familyContent, colCreatedAt, ts, []byte(strconv.FormatInt(createdAt.Unix(), 10)))
	mut.Set(familyMetadata, colClickCount, ts, []byte("0"))
	mut.Set(familyMetadata, colLastAccess, ts, []byte(formatTime(createdAt)))

	return mut
}

func (r *URLRepository) toEntity(id string, row bigtable.Row) (*entity.URL, error) {
	cells := latestCells(row)

	originalURL, ok := cells[column(familyContent, colOriginalURL)]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", errMalformedRow, colOriginalURL)
	}

	var clickCount int64
	if raw, ok := cells[column(familyMetadata, colClickCount)]; ok {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s: %w", errMalformedRow, colClickCount, err)
		}
		clickCount = n
	}

	// Rows written before created_at existed only carry the creation time inside
	// last_access, which later resolutions overwrite. Those fall back to read time.
	createdAt := r.now().UTC().Truncate(time.Second)
	if raw, ok := cells[column(familyContent, colCreatedAt)]; ok {
		sec, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s: %w", errMalformedRow, colCreatedAt, err)
		}
		createdAt = time.Unix(sec, 0).UTC()
	}

	lastAccess := createdAt
	if raw, ok := cells[column(familyMetadata, colLastAccess)]; ok {
		t, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s: %w", errMalformedRow, colLastAccess, err)
		}
		lastAccess = t
	}

	return &entity.URL{
		ID:          id,
		OriginalURL: string(originalURL),
		CreatedAt:   createdAt,
		URLStats: entity.URLStats{
			ClickCount: clickCount,
			LastAccess: lastAccess,
		},
	}, nil
}

// latestCells flattens a row into "family:qualifier" -> value, keeping the
// newest cell of each column.
func latestCells(row bigtable.Row) map[string][]byte {
	cells := make(map[string][]byte)

	for _, items := range row {
		for _, item := range items {
			if _, ok := cells[item.Column]; !ok {
				cells[item.Column] = item.Value
			}
		}
	}

	return cells
}

func column(family, qualifier string) string {
	return family + ":" + qualifier
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, err)
}
