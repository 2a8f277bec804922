package source

import (
	"context"
	"errors"

	"github.com/orgball2608/story-viewer-engine/internal/domain"
)

var ErrNoActiveStories = errors.New("user has no active stories")

//go:generate go run go.uber.org/mock/mockgen -source=source.go -destination=mocks/mock.go

// Client provides the ordered item list for a viewing session and a live feed
// of deletions observed while the session runs.
type Client interface {
	// FetchItems returns the owner's current active stories, oldest first.
	FetchItems(ctx context.Context, ownerUsername string) ([]*domain.StoryItem, error)

	// Deletions emits the ids of items that disappear from the owner's active
	// set (owner deletion or store-side expiry). The channel closes when ctx
	// is cancelled or the feed fails.
	Deletions(ctx context.Context, ownerUsername string) (<-chan string, error)
}
