package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-viewer-engine/internal/domain"
	"github.com/orgball2608/story-viewer-engine/internal/engage"
	"github.com/orgball2608/story-viewer-engine/internal/media"
	"github.com/orgball2608/story-viewer-engine/internal/playback"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu      sync.Mutex
	views   []string
	deleted []string
}

func (s *recordingStore) MarkViewed(_ context.Context, itemID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, itemID)
	return nil
}

func (s *recordingStore) SetLiked(context.Context, string, string, bool) error { return nil }
func (s *recordingStore) AppendMention(context.Context, string, string) error  { return nil }

func (s *recordingStore) DeleteItem(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, itemID)
	return nil
}

func (s *recordingStore) viewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

type nopConversations struct{}

func (nopConversations) AppendMessage(context.Context, domain.ConversationMessage) (string, error) {
	return "", nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(string) bool { return true }

type silentPlayer struct{}

func (silentPlayer) Load(context.Context, string) error { return nil }
func (silentPlayer) Play() error                        { return nil }
func (silentPlayer) Pause() error                       { return nil }
func (silentPlayer) Seek(float64) error                 { return nil }
func (silentPlayer) Position() (float64, error)         { return 0, nil }
func (silentPlayer) SetMuted(bool) error                { return nil }
func (silentPlayer) Close() error                       { return nil }

type silentFactory struct{}

func (silentFactory) NewPlayer() media.AudioPlayer { return silentPlayer{} }

type sessionHarness struct {
	ctrl  *Controller
	clock *clockwork.FakeClock
	store *recordingStore
	gate  *playback.Gate
}

func newSessionHarness(t *testing.T, viewerID string, items []*domain.StoryItem) *sessionHarness {
	t.Helper()

	clock := clockwork.NewFakeClock()
	log := logger.New(logger.Opts{})
	store := &recordingStore{}

	gate := playback.NewGate(playback.GateOpts{Clock: clock, HoldDelay: 200 * time.Millisecond})
	scheduler := playback.NewScheduler(playback.SchedulerOpts{
		Clock:    clock,
		Logger:   log,
		Gate:     gate,
		Interval: 16 * time.Millisecond,
	})
	synchronizer := playback.NewSynchronizer(playback.SynchronizerOpts{
		Clock:   clock,
		Logger:  log,
		Players: silentFactory{},
	})

	ctrl := NewController(ControllerOpts{
		ViewerID:     viewerID,
		Items:        items,
		Clock:        clock,
		Logger:       log,
		Gate:         gate,
		Scheduler:    scheduler,
		Synchronizer: synchronizer,
		EngageDeps: engage.Deps{
			Store:         store,
			Notifier:      &recordingNotifier{},
			Conversations: nopConversations{},
			Limiter:       allowAllLimiter{},
			Logger:        log,
		},
		ImageDuration: 10 * time.Second,
		VideoDuration: 15 * time.Second,
	})

	return &sessionHarness{ctrl: ctrl, clock: clock, store: store, gate: gate}
}

func storyItems(ids ...string) []*domain.StoryItem {
	items := make([]*domain.StoryItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, &domain.StoryItem{
			ID:        id,
			OwnerID:   "owner",
			MediaRef:  "https://cdn/" + id + ".jpg",
			MediaKind: domain.MediaKindImage,
		})
	}
	return items
}

func isEnded(ctrl *Controller) bool {
	select {
	case <-ctrl.Done():
		return true
	default:
		return false
	}
}

func TestStartActivatesFirstItemOnce(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, StatePlaying, h.ctrl.State())
	assert.Equal(t, "s1", h.ctrl.ActiveItem().ID)

	require.Eventually(t, func() bool {
		return h.store.viewCount() == 1
	}, time.Second, 5*time.Millisecond, "activation marks the item viewed")

	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrAlreadyStarted)
}

func TestAdvancePastLastItemEndsSession(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.Advance()
	assert.Equal(t, "s2", h.ctrl.ActiveItem().ID)
	assert.False(t, isEnded(h.ctrl))

	h.ctrl.Advance()
	assert.Equal(t, StateEnded, h.ctrl.State())
	assert.Nil(t, h.ctrl.ActiveItem())
	assert.True(t, isEnded(h.ctrl))
}

func TestRetreatAtFirstItemIsNoop(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.Retreat()
	assert.Equal(t, "s1", h.ctrl.ActiveItem().ID)
	assert.Equal(t, StatePlaying, h.ctrl.State())
	assert.False(t, isEnded(h.ctrl))
}

func TestRetreatReturnsToPreviousItem(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2", "s3"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.Advance()
	h.ctrl.Advance()
	require.Equal(t, "s3", h.ctrl.ActiveItem().ID)

	h.ctrl.Retreat()
	assert.Equal(t, "s2", h.ctrl.ActiveItem().ID)
	assert.Equal(t, StatePlaying, h.ctrl.State())
}

func TestItemCompletionAutoAdvances(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.clock.BlockUntil(1)
	h.clock.Advance(10 * time.Second)

	require.Eventually(t, func() bool {
		item := h.ctrl.ActiveItem()
		return item != nil && item.ID == "s2"
	}, time.Second, 5*time.Millisecond, "an elapsed image duration advances the sequence")
}

func TestRemoveInactiveItemKeepsActiveOne(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2", "s3"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.RemoveItem("s2")
	assert.Equal(t, "s1", h.ctrl.ActiveItem().ID)

	h.ctrl.Advance()
	assert.Equal(t, "s3", h.ctrl.ActiveItem().ID)
}

func TestRemoveActiveItemActivatesSuccessor(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2", "s3"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.Advance()
	require.Equal(t, "s2", h.ctrl.ActiveItem().ID)

	h.ctrl.RemoveItem("s2")
	assert.Equal(t, "s3", h.ctrl.ActiveItem().ID)
	assert.Equal(t, StatePlaying, h.ctrl.State())
}

func TestRemoveActiveLastItemActivatesNewLast(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2", "s3"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.Advance()
	h.ctrl.Advance()
	require.Equal(t, "s3", h.ctrl.ActiveItem().ID)

	h.ctrl.RemoveItem("s3")
	assert.Equal(t, "s2", h.ctrl.ActiveItem().ID, "deleting the active last item falls back, not forward")
	assert.False(t, isEnded(h.ctrl))
}

func TestRemovingEveryItemEndsSession(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.RemoveItem("s1")
	assert.Equal(t, StateEnded, h.ctrl.State())
	assert.True(t, isEnded(h.ctrl))
}

func TestRemoveUnknownItemIsNoop(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.RemoveItem("missing")
	assert.Equal(t, "s1", h.ctrl.ActiveItem().ID)
	assert.Len(t, h.ctrl.Snapshot(), 2)
}

func TestSnapshotFillsByPosition(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2", "s3"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.Advance()

	segments := h.ctrl.Snapshot()
	require.Len(t, segments, 3)
	assert.Equal(t, "s1", segments[0].ItemID)
	assert.Equal(t, 100.0, segments[0].Fill, "items before the active one are full")
	assert.Equal(t, 0.0, segments[1].Fill, "the active item starts empty")
	assert.Equal(t, 0.0, segments[2].Fill, "items after the active one are empty")
}

func TestPanelPausesAndResumesPlayback(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.OpenPanel(playback.SourcePanelViewers)
	assert.Equal(t, StatePaused, h.ctrl.State())

	// The full item duration elapsing while paused must not advance.
	h.clock.BlockUntil(1)
	h.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "s1", h.ctrl.ActiveItem().ID)

	h.ctrl.ClosePanel(playback.SourcePanelViewers)
	assert.Equal(t, StatePlaying, h.ctrl.State())
}

func TestTwoPanelsKeepPlaybackPaused(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.OpenPanel(playback.SourcePanelViewers)
	h.ctrl.OpenPanel(playback.SourcePanelLikers)

	h.ctrl.ClosePanel(playback.SourcePanelViewers)
	assert.Equal(t, StatePaused, h.ctrl.State(), "one open panel still holds the gate")

	h.ctrl.ClosePanel(playback.SourcePanelLikers)
	assert.Equal(t, StatePlaying, h.ctrl.State())
}

func TestAdvanceClosesOpenPanels(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.OpenPanel(playback.SourcePanelLikers)
	require.Equal(t, StatePaused, h.ctrl.State())

	h.ctrl.Advance()
	assert.Equal(t, "s2", h.ctrl.ActiveItem().ID)
	assert.Equal(t, StatePlaying, h.ctrl.State(), "panels are per-item and close on transition")
}

func TestHoldPausesAfterDelay(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.BeginHold()
	assert.Equal(t, StatePlaying, h.ctrl.State())

	h.clock.Advance(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		return h.ctrl.State() == StatePaused
	}, time.Second, 5*time.Millisecond)

	h.ctrl.EndHold()
	assert.Equal(t, StatePlaying, h.ctrl.State())
}

func TestDeleteActiveRequiresOwnership(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	err := h.ctrl.DeleteActive(context.Background())
	assert.ErrorIs(t, err, engage.ErrNotOwner)
	assert.Equal(t, "s1", h.ctrl.ActiveItem().ID)
}

func TestDeleteActiveByOwnerRemovesItem(t *testing.T) {
	h := newSessionHarness(t, "owner", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.NoError(t, h.ctrl.DeleteActive(context.Background()))
	assert.Equal(t, []string{"s1"}, h.store.deleted)
	assert.Equal(t, "s2", h.ctrl.ActiveItem().ID)
}

func TestEndIsTerminal(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1", "s2"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.End()
	assert.Equal(t, StateEnded, h.ctrl.State())
	assert.True(t, isEnded(h.ctrl))

	h.ctrl.Advance()
	h.ctrl.Retreat()
	assert.Equal(t, StateEnded, h.ctrl.State())

	_, err := h.ctrl.ToggleLike(context.Background())
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.ErrorIs(t, h.ctrl.Mention(context.Background(), "friend"), ErrSessionEnded)
}

func TestMuteFlagRoundTrips(t *testing.T) {
	h := newSessionHarness(t, "viewer1", storyItems("s1"))
	require.NoError(t, h.ctrl.Start(context.Background()))

	assert.False(t, h.ctrl.Muted())
	h.ctrl.SetMuted(true)
	assert.True(t, h.ctrl.Muted())
}
