package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-viewer-engine/internal/domain"
	"github.com/orgball2608/story-viewer-engine/internal/engage"
	"github.com/orgball2608/story-viewer-engine/internal/playback"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
)

var (
	ErrSessionEnded   = errors.New("viewing session has ended")
	ErrAlreadyStarted = errors.New("viewing session was already started")
)

// ProgressSegment is one cell of the progress-indicator strip: fully filled
// for items already shown, partially filled for the active item, empty for
// items not yet reached. Purely derived, never tracked separately.
type ProgressSegment struct {
	ItemID string
	Fill   float64
}

// Controller owns the ordered item list and the current position for one
// viewing session. It is the only component allowed to change which item is
// active, and it serializes every transition: the outgoing item's audio is
// fully torn down before the incoming item's setup begins, and the scheduler
// reset is visible before the first tick of the new item.
type Controller struct {
	mu sync.Mutex

	id       uuid.UUID
	viewerID string
	log      logger.Logger
	clock    clockwork.Clock

	items []*domain.StoryItem
	index int
	state State

	scheduler    *playback.Scheduler
	synchronizer *playback.Synchronizer
	gate         *playback.Gate
	effects      *engage.Effects

	imageDuration time.Duration
	videoDuration time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	audioCh chan audioRequest
	done    chan struct{}

	onEnded func()
}

type audioRequest struct {
	item     *domain.StoryItem
	duration time.Duration
}

type ControllerOpts struct {
	ViewerID      string
	Items         []*domain.StoryItem
	Clock         clockwork.Clock
	Logger        logger.Logger
	Gate          *playback.Gate
	Scheduler     *playback.Scheduler
	Synchronizer  *playback.Synchronizer
	EngageDeps    engage.Deps
	ImageDuration time.Duration
	VideoDuration time.Duration
	OnEnded       func()
}

const (
	defaultImageDuration = 10 * time.Second
	defaultVideoDuration = 15 * time.Second
)

func NewController(opts ControllerOpts) *Controller {
	if opts.ImageDuration <= 0 {
		opts.ImageDuration = defaultImageDuration
	}
	if opts.VideoDuration <= 0 {
		opts.VideoDuration = defaultVideoDuration
	}

	c := &Controller{
		id:            uuid.New(),
		viewerID:      opts.ViewerID,
		clock:         opts.Clock,
		items:         opts.Items,
		state:         StateIdle,
		scheduler:     opts.Scheduler,
		synchronizer:  opts.Synchronizer,
		gate:          opts.Gate,
		imageDuration: opts.ImageDuration,
		videoDuration: opts.VideoDuration,
		audioCh:       make(chan audioRequest, 1),
		done:          make(chan struct{}),
		onEnded:       opts.OnEnded,
	}
	c.log = opts.Logger.With("session", c.id.String())
	c.effects = engage.New(opts.EngageDeps, opts.ViewerID, c.dispatch)

	// The gate is the single pause authority; state transitions it triggers
	// touch only the scheduler and synchronizer, never the controller lock.
	c.gate.OnChange(func(paused bool) {
		if paused {
			c.scheduler.Pause()
			c.synchronizer.Pause()
		} else {
			c.scheduler.Resume()
			c.synchronizer.Resume()
		}
	})
	c.scheduler.OnComplete(c.onItemComplete)

	return c
}

// ID returns the session identifier.
func (c *Controller) ID() uuid.UUID { return c.id }

// Done is closed when the session ends, by any path.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Start activates the first item. A session starts exactly once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrAlreadyStarted
	}
	if len(c.items) == 0 {
		c.endLocked()
		return ErrSessionEnded
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.audioLoop()

	c.activateLocked(0)
	return nil
}

// State reports the current session state. Paused is derived from the gate.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePlaying && c.gate.Paused() {
		return StatePaused
	}
	return c.state
}

// ActiveItem returns the currently displayed item, or nil after the session
// ended.
func (c *Controller) ActiveItem() *domain.StoryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded || c.state == StateIdle || len(c.items) == 0 {
		return nil
	}
	return c.items[c.index]
}

// Snapshot derives the progress-indicator strip for every item in order.
func (c *Controller) Snapshot() []ProgressSegment {
	c.mu.Lock()
	defer c.mu.Unlock()

	segments := make([]ProgressSegment, len(c.items))
	for i, item := range c.items {
		fill := 0.0
		switch {
		case i < c.index:
			fill = 100
		case i == c.index && c.state != StateIdle:
			fill = c.scheduler.Progress()
		}
		segments[i] = ProgressSegment{ItemID: item.ID, Fill: fill}
	}
	return segments
}

// Advance moves to the next item; past the last item the session ends. This
// asymmetry with Retreat mirrors swiping past the final story closing the
// viewer.
func (c *Controller) Advance() {
	c.mu.Lock()
	if c.state == StateEnded || c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	if c.index+1 >= len(c.items) {
		c.endLocked()
		c.mu.Unlock()
		c.fireEnded()
		return
	}
	c.state = StateAdvancing
	c.activateLocked(c.index + 1)
	c.mu.Unlock()
}

// Retreat moves to the previous item; at the first item it is a no-op and the
// session stays open.
func (c *Controller) Retreat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded || c.state == StateIdle {
		return
	}
	if c.index == 0 {
		return
	}
	c.state = StateRetreating
	c.activateLocked(c.index - 1)
}

// RemoveItem drops an item deleted while viewing. Removing the active item
// behaves like Advance, except at the end of the list where the new last item
// becomes active instead of closing the session. An emptied list ends the
// session.
func (c *Controller) RemoveItem(id string) {
	c.mu.Lock()
	if c.state == StateEnded || c.state == StateIdle {
		c.mu.Unlock()
		return
	}

	removed := -1
	for i, item := range c.items {
		if item.ID == id {
			removed = i
			break
		}
	}
	if removed == -1 {
		c.mu.Unlock()
		return
	}

	c.items = append(c.items[:removed], c.items[removed+1:]...)

	if len(c.items) == 0 {
		c.endLocked()
		c.mu.Unlock()
		c.fireEnded()
		return
	}

	switch {
	case removed < c.index:
		c.index--
	case removed == c.index:
		if c.index >= len(c.items) {
			c.index = len(c.items) - 1
		}
		c.state = StateAdvancing
		c.activateLocked(c.index)
	}
	c.mu.Unlock()
}

// End terminates the session (viewer closed it).
func (c *Controller) End() {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.endLocked()
	c.mu.Unlock()
	c.fireEnded()
}

// OpenPanel engages a side-panel pause source. Panels are per-item; item
// transitions close them.
func (c *Controller) OpenPanel(src playback.PauseSource) {
	if !src.IsPanel() {
		return
	}
	c.gate.Engage(src)
}

// ClosePanel releases a side-panel pause source. Playback resumes only when
// no other pause source remains.
func (c *Controller) ClosePanel(src playback.PauseSource) {
	if !src.IsPanel() {
		return
	}
	c.gate.Release(src)
}

// BeginHold starts the press-and-hold gesture; the pause arms after the
// gate's hold delay. The press also counts as the user gesture that may
// unblock a refused autoplay.
func (c *Controller) BeginHold() {
	c.synchronizer.OnUserGesture()
	c.gate.BeginHold()
}

// EndHold releases the press-and-hold gesture.
func (c *Controller) EndHold() {
	c.gate.EndHold()
}

// Tap is a short navigation gesture; it also counts as a user gesture for the
// autoplay retry.
func (c *Controller) Tap() {
	c.synchronizer.OnUserGesture()
}

// SetMuted applies the global mute flag to the background clip and, through
// Muted, to the primary video's native track.
func (c *Controller) SetMuted(muted bool) {
	c.synchronizer.SetMuted(muted)
}

func (c *Controller) Muted() bool {
	return c.synchronizer.Muted()
}

// ToggleLike flips the viewer's like on the active item.
func (c *Controller) ToggleLike(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded || c.state == StateIdle {
		return false, ErrSessionEnded
	}
	return c.effects.ToggleLike(ctx, c.items[c.index])
}

// Mention issues a mention of toUser on the active item.
func (c *Controller) Mention(ctx context.Context, toUser string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded || c.state == StateIdle {
		return ErrSessionEnded
	}
	return c.effects.Mention(ctx, c.items[c.index], toUser)
}

// DeleteActive deletes the active item (owner only) and removes it from the
// sequence. Store failure is surfaced and nothing changes locally.
func (c *Controller) DeleteActive(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateEnded || c.state == StateIdle {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	item := c.items[c.index]
	c.mu.Unlock()

	if err := c.effects.Delete(ctx, item); err != nil {
		return err
	}
	c.RemoveItem(item.ID)
	return nil
}

// dispatch runs a mutation on the session's logical thread; rollbacks from
// asynchronous store completions come through here. Mutations for an ended
// session are dropped.
func (c *Controller) dispatch(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded {
		return
	}
	fn()
}

// activateLocked makes items[i] the active item. The scheduler reset is
// synchronous; audio setup is queued to the serialized audio loop, which
// guarantees the outgoing clip is released before the incoming one loads.
func (c *Controller) activateLocked(i int) {
	c.index = i
	item := c.items[i]
	duration := c.itemDuration(item)

	c.gate.CloseAllPanels()
	c.scheduler.Start(duration)
	c.queueAudio(audioRequest{item: item, duration: duration})
	c.effects.MarkViewed(c.ctx, item)

	c.state = StatePlaying
	c.log.Debug("Activated story item", "item", item.ID, "index", i, "duration", duration)
}

func (c *Controller) itemDuration(item *domain.StoryItem) time.Duration {
	if item.MediaKind == domain.MediaKindVideo {
		return c.videoDuration
	}
	return c.imageDuration
}

func (c *Controller) onItemComplete() {
	c.mu.Lock()
	playing := c.state == StatePlaying && !c.gate.Paused()
	c.mu.Unlock()
	if !playing {
		return
	}
	c.Advance()
}

// queueAudio hands the latest activation to the audio loop, replacing any
// pending one: only the newest item's audio matters.
func (c *Controller) queueAudio(req audioRequest) {
	for {
		select {
		case c.audioCh <- req:
			return
		default:
			select {
			case <-c.audioCh:
			default:
			}
		}
	}
}

// audioLoop serializes synchronizer activations so clip lifetimes never
// overlap even when transitions outrun slow loads.
func (c *Controller) audioLoop() {
	for {
		select {
		case <-c.ctx.Done():
			c.synchronizer.Deactivate()
			return
		case req := <-c.audioCh:
			if err := c.synchronizer.Activate(c.ctx, req.item, req.duration); err != nil {
				c.log.Warn("Audio clip setup failed, item plays silently", "item", req.item.ID, "error", err)
			}
		}
	}
}

func (c *Controller) endLocked() {
	c.state = StateEnded
	c.scheduler.Stop()
	c.synchronizer.Deactivate()
	if c.cancel != nil {
		c.cancel()
	}
	c.log.Info("Viewing session ended")
}

func (c *Controller) fireEnded() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if c.onEnded != nil {
		c.onEnded()
	}
}
