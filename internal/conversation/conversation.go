package conversation

import (
	"context"

	"github.com/orgball2608/story-viewer-engine/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=mocks/mock.go

// Sink appends the auxiliary direct message created when a user is mentioned
// on a story. An empty ConversationID on the message implies creating a new
// conversation between the two users; the created or existing id is returned.
type Sink interface {
	AppendMessage(ctx context.Context, msg domain.ConversationMessage) (string, error)
}
