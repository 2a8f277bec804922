package notifier

import (
	"context"

	"github.com/orgball2608/story-viewer-engine/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=notifier.go -destination=mocks/mock.go

// Sink delivers fire-and-forget engagement notifications. Failures are logged
// by the caller and never surfaced to the user.
type Sink interface {
	Notify(ctx context.Context, n domain.Notification) error
}
