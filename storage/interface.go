package storage

import (
	"context"
	"errors"
	"time"

	"github.com/johnwmail/pasties/models"
)

var (
	// ErrNotFound is returned when no paste has the requested URL
	ErrNotFound = errors.New("paste not found")

	// ErrAlreadyExists is returned when a write would duplicate a URL
	ErrAlreadyExists = errors.New("paste url already exists")
)

// opTimeout bounds every single backend call
const opTimeout = 10 * time.Second

// PasteStore defines the interface for paste storage backends
type PasteStore interface {
	// Create saves a new paste, failing with ErrAlreadyExists when its URL is taken
	Create(ctx context.Context, paste *models.Paste) error

	// GetByURL retrieves a paste by its URL
	GetByURL(ctx context.Context, url string) (*models.Paste, error)

	// Exists reports whether a paste with the URL is stored
	Exists(ctx context.Context, url string) (bool, error)

	// Update replaces the paste stored under oldURL. paste.URL may differ from
	// oldURL, in which case the paste is renamed.
	Update(ctx context.Context, oldURL string, paste *models.Paste) error

	// Delete removes a paste by URL
	Delete(ctx context.Context, url string) error

	// IncrementViews bumps the view counter of a paste
	IncrementViews(ctx context.Context, url string) error

	// List returns pastes newest first
	List(ctx context.Context, opts models.ListOptions) ([]*models.Paste, error)

	// DeleteExpired removes every paste whose expiry is at or before now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend's resources
	Close() error
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, opTimeout)
}
