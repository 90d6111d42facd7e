// Package entity defines the entities and errors used in the application.
// It includes the URL struct, which represents a shortened URL, along with its
// click metadata, and the error taxonomy shared by the store and use case layers.
package entity

import (
	"errors"
	"time"
)

var (
	// ErrShortCodeExists is returned when attempting to create a URL with a short code that already exists.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrURLNotFound is returned when a URL with the specified short code cannot be found.
	ErrURLNotFound = errors.New("url not found")
	// ErrStoreUnavailable is returned when the backing store cannot be reached or does not answer in time.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConcurrentUpdate is returned when a click increment keeps losing to concurrent writers.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// URL represents a shortened URL.
type URL struct {
	ID          string    // ID is the short code; it is also the row key in the store.
	OriginalURL string    // OriginalURL is the full URL that the short code resolves to.
	CreatedAt   time.Time // CreatedAt is the creation time, with second precision.
	URLStats              // URLStats contains the click metadata of the URL.
}

// URLStats contains the click metadata of a shortened URL.
type URLStats struct {
	ClickCount int64     // ClickCount is the number of successful resolutions.
	LastAccess time.Time // LastAccess is the time of the latest resolution, or CreatedAt if none.
}
