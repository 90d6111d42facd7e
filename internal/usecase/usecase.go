package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/httplog/v2"

	"github.com/vadimbarashkov/url-shortener-bigtable/internal/entity"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	alphabet               = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	defaultShortCodeLength = 7
	maxRetries             = 5
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
	ErrEmptyURL           = errors.New("url is empty")
)

type urlRepository interface {
	Create(ctx context.Context, url *entity.URL) error
	FindByID(ctx context.Context, id string) (*entity.URL, error)
	IncrementClick(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type Option func(*URLUseCase)

func WithShortCodeLength(n int) Option {
	return func(uc *URLUseCase) {
		if n > 0 {
			uc.shortCodeLength = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *URLUseCase) {
		uc.now = now
	}
}

type URLUseCase struct {
	shortCodeLength int
	now             func() time.Time
	urlRepo         urlRepository
}

func New(urlRepo urlRepository, opts ...Option) *URLUseCase {
	uc := &URLUseCase{
		shortCodeLength: defaultShortCodeLength,
		now:             time.Now,
		urlRepo:         urlRepo,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// ShortenURL stores originalURL under a freshly generated short code. A code
// that is already taken is never overwritten; a new one is drawn instead.
func (uc *URLUseCase) ShortenURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ShortenURL"

	if originalURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyURL)
	}

	for range maxRetries {
		shortCode, err := gonanoid.Generate(alphabet, uc.shortCodeLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		createdAt := uc.now().UTC().Truncate(time.Second)
		url := &entity.URL{
			ID:          shortCode,
			OriginalURL: originalURL,
			CreatedAt:   createdAt,
			URLStats: entity.URLStats{
				ClickCount: 0,
				LastAccess: createdAt,
			},
		}

		if err := uc.urlRepo.Create(ctx, url); err != nil {
			if errors.Is(err, entity.ErrShortCodeExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		return url, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveShortCode returns the record behind shortCode and counts the visit.
// The returned record already reflects that visit. A visit that loses the race
// for the click counter is logged and dropped; the record is still returned
// as it was read.
func (uc *URLUseCase) ResolveShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ResolveShortCode"

	url, err := uc.urlRepo.FindByID(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	if err := uc.urlRepo.IncrementClick(ctx, shortCode); err != nil {
		if errors.Is(err, entity.ErrConcurrentUpdate) {
			httplog.LogEntrySetField(ctx, "click_err", slog.AnyValue(err))
			return url, nil
		}

		return nil, fmt.Errorf("%s: failed to update url stats: %w", op, err)
	}

	url.ClickCount++
	url.LastAccess = uc.now().UTC()

	return url, nil
}

func (uc *URLUseCase) DeactivateURL(ctx context.Context, shortCode string) error {
	const op = "usecase.URLUseCase.DeactivateURL"

	err := uc.urlRepo.Delete(ctx, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to deactivate url: %w", op, err)
	}

	return nil
}

func (uc *URLUseCase) GetURLStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.GetURLStats"

	url, err := uc.urlRepo.FindByID(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return url, nil
}
