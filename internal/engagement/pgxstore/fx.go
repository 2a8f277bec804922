package pgxstore

import (
	"github.com/orgball2608/story-viewer-engine/internal/engagement"
	"go.uber.org/fx"
)

// Module provides the concrete store (the app schedules its retention sweep)
// and binds it to the engagement.Store interface the engine consumes.
var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(func(p *Pgx) engagement.Store { return p }),
)
