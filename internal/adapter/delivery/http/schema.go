package http

import (
	"time"

	"github.com/vadimbarashkov/url-shortener-bigtable/internal/entity"
)

// shortenRequest is bound from the query string of POST /api/shorten.
type shortenRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// shortenResponse carries the new short identifier and its absolute link.
type shortenResponse struct {
	ShortID  string `json:"shortId"`
	ShortURL string `json:"shortUrl"`
}

// urlStatsResponse describes a stored record and its click metadata.
type urlStatsResponse struct {
	ID          string    `json:"id"`
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	ClickCount  int64     `json:"clickCount"`
	LastAccess  time.Time `json:"lastAccess"`
}

func toURLStatsResponse(url *entity.URL) urlStatsResponse {
	return urlStatsResponse{
		ID:          url.ID,
		OriginalURL: url.OriginalURL,
		CreatedAt:   url.CreatedAt,
		ClickCount:  url.ClickCount,
		LastAccess:  url.LastAccess,
	}
}
