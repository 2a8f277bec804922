package mpvplayer

import (
	"github.com/orgball2608/story-viewer-engine/internal/media"
	"go.uber.org/fx"
)

var Module = fx.Module("mpvplayer",
	fx.Provide(
		fx.Annotate(
			NewFactory,
			fx.As(new(media.Factory)),
		),
	),
)
