package storage

import (
	"context"

	"github.com/bunchhieng/travelog/internal/model"
)

// Storage defines the local session store. Everything in it is wiped
// when the backend rejects the session.
type Storage interface {
	// SaveSession stores the bearer token and, when known, the user profile.
	SaveSession(ctx context.Context, session *model.Session) error

	// LoadSession returns the stored session or model.ErrNoSession.
	LoadSession(ctx context.Context) (*model.Session, error)

	// SaveUser caches the profile for the current session.
	SaveUser(ctx context.Context, user *model.User) error

	// RecordSearch remembers a submitted search query.
	RecordSearch(ctx context.Context, query string) error

	// RecentSearches returns up to limit distinct queries, newest first.
	RecentSearches(ctx context.Context, limit int) ([]string, error)

	// Clear removes all local session state.
	Clear(ctx context.Context) error

	// Close closes the storage connection.
	Close() error
}
