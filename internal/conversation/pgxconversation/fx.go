package pgxconversation

import (
	"github.com/orgball2608/story-viewer-engine/internal/conversation"
	"go.uber.org/fx"
)

var Module = fx.Provide(
	fx.Annotate(
		New,
		fx.As(new(conversation.Sink)),
	),
)
