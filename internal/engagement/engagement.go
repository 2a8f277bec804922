package engagement

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("story item not found")

//go:generate go run go.uber.org/mock/mockgen -source=engagement.go -destination=mocks/mock.go

// Store accepts the engine's idempotent engagement requests. Each call may
// fail; the engine never retries automatically (the user can retry through
// another action).
type Store interface {
	MarkViewed(ctx context.Context, itemID, viewerID string) error
	SetLiked(ctx context.Context, itemID, userID string, liked bool) error
	AppendMention(ctx context.Context, itemID, userID string) error
	DeleteItem(ctx context.Context, itemID string) error
}
