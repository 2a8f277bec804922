package telegramnotifier

import (
	"github.com/orgball2608/story-viewer-engine/internal/notifier"
	"go.uber.org/fx"
)

var Module = fx.Provide(
	fx.Annotate(
		New,
		fx.As(new(notifier.Sink)),
	),
)
