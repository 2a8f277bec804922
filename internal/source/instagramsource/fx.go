package instagramsource

import (
	"github.com/orgball2608/story-viewer-engine/internal/source"
	"go.uber.org/fx"
)

// Module provides the concrete source (the app drives its login) and binds it
// to the source.Client interface the session manager consumes.
var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(func(s *IgSource) source.Client { return s }),
)
