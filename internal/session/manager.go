package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-viewer-engine/internal/audiopreview"
	"github.com/orgball2608/story-viewer-engine/internal/conversation"
	"github.com/orgball2608/story-viewer-engine/internal/engage"
	"github.com/orgball2608/story-viewer-engine/internal/engagement"
	"github.com/orgball2608/story-viewer-engine/internal/media"
	"github.com/orgball2608/story-viewer-engine/internal/notifier"
	"github.com/orgball2608/story-viewer-engine/internal/playback"
	"github.com/orgball2608/story-viewer-engine/internal/ratelimit"
	"github.com/orgball2608/story-viewer-engine/internal/source"
	"github.com/orgball2608/story-viewer-engine/pkg/config"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"go.uber.org/fx"
)

// Manager opens viewing sessions: it fetches the owner's active stories,
// assembles the per-session playback components, and forwards the source's
// deletion feed into the controller until the session ends.
type Manager struct {
	Source     source.Client
	Players    media.Factory
	Resolver   audiopreview.Resolver
	EngageDeps engage.Deps
	Logger     logger.Logger
	Config     *config.Config
	Clock      clockwork.Clock
}

type ManagerOpts struct {
	fx.In

	Source        source.Client
	Players       media.Factory
	Resolver      audiopreview.Resolver
	Store         engagement.Store
	Notifier      notifier.Sink
	Conversations conversation.Sink
	Limiter       ratelimit.Limiter
	Logger        logger.Logger
	Config        *config.Config
	Clock         clockwork.Clock
}

func NewManager(opts ManagerOpts) *Manager {
	return &Manager{
		Source:   opts.Source,
		Players:  opts.Players,
		Resolver: opts.Resolver,
		EngageDeps: engage.Deps{
			Store:         opts.Store,
			Notifier:      opts.Notifier,
			Conversations: opts.Conversations,
			Limiter:       opts.Limiter,
			Logger:        opts.Logger,
		},
		Logger: opts.Logger,
		Config: opts.Config,
		Clock:  opts.Clock,
	}
}

// Open starts a session for viewerID over ownerUsername's current stories.
// The preview-audio cache lives for the session; concurrent lookups for the
// same (title, artist) key are deduplicated inside it.
func (m *Manager) Open(ctx context.Context, viewerID, ownerUsername string) (*Controller, error) {
	items, err := m.Source.FetchItems(ctx, ownerUsername)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, source.ErrNoActiveStories
	}

	gate := playback.NewGate(playback.GateOpts{
		Clock:     m.Clock,
		HoldDelay: time.Duration(m.Config.Playback.HoldDelayMs) * time.Millisecond,
	})
	scheduler := playback.NewScheduler(playback.SchedulerOpts{
		Clock:    m.Clock,
		Logger:   m.Logger,
		Gate:     gate,
		Interval: time.Duration(m.Config.Playback.TickIntervalMs) * time.Millisecond,
	})
	synchronizer := playback.NewSynchronizer(playback.SynchronizerOpts{
		Clock:    m.Clock,
		Logger:   m.Logger,
		Resolver: audiopreview.NewCached(m.Resolver),
		Players:  m.Players,
		Muted:    m.Config.Playback.Muted,
	})

	ctrl := NewController(ControllerOpts{
		ViewerID:      viewerID,
		Items:         items,
		Clock:         m.Clock,
		Logger:        m.Logger,
		Gate:          gate,
		Scheduler:     scheduler,
		Synchronizer:  synchronizer,
		EngageDeps:    m.EngageDeps,
		ImageDuration: time.Duration(m.Config.Playback.ImageDurationMs) * time.Millisecond,
		VideoDuration: time.Duration(m.Config.Playback.VideoDurationMs) * time.Millisecond,
	})

	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}

	deletions, err := m.Source.Deletions(ctx, ownerUsername)
	if err != nil {
		// A dead source feed leaves no way to observe deletions; end cleanly
		// rather than play a list that can drift from reality.
		ctrl.End()
		return nil, fmt.Errorf("failed to subscribe to deletion feed: %w", err)
	}

	go func() {
		for id := range deletions {
			ctrl.RemoveItem(id)
		}
	}()

	return ctrl, nil
}
