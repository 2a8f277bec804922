package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-viewer-engine/internal/audiopreview"
	"github.com/orgball2608/story-viewer-engine/internal/domain"
	"github.com/orgball2608/story-viewer-engine/internal/media"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
)

// SyncStage names one stage of the clip setup pipeline. Each stage has a
// single documented failure transition instead of ad hoc nested handlers.
type SyncStage string

const (
	StageResolve SyncStage = "resolve"
	StageLoad    SyncStage = "load"
	StageSeek    SyncStage = "seek"
	StagePlay    SyncStage = "play"
)

// PipelineError reports which setup stage failed for an audio clip.
type PipelineError struct {
	Stage SyncStage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("audio pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// watchInterval is how often the end-offset watch loop samples the clip's own
// playback clock.
const watchInterval = 50 * time.Millisecond

// Synchronizer binds an optional background audio clip to the currently
// visible story item: it seeks the clip to its start offset, begins playback
// once metadata is loaded, and stops it when the trim window or the item's
// duration elapses, independent of the primary media's native length.
//
// Clip lifetimes never overlap: Activate fully releases the outgoing clip
// before any setup for the incoming one begins, and the single-resource slot
// enforces that centrally. Every watcher is bound to the activation generation
// that created it, so a stale watcher firing after an item switch is a
// guaranteed no-op.
type Synchronizer struct {
	mu    sync.Mutex
	clock clockwork.Clock
	log   logger.Logger

	resolver audiopreview.Resolver
	players  media.Factory
	slot     slot

	gen    uint64
	muted  bool
	paused bool

	// one-shot autoplay retry, scoped to the activation that armed it
	retryArmed     bool
	retryGen       uint64
	retryClip      *domain.AudioClip
	retryEffective float64

	// start deferred because a pause source was engaged during activation
	deferredStart     bool
	deferredGen       uint64
	deferredClip      *domain.AudioClip
	deferredEffective float64

	// stop target on the clip's own clock, seconds
	stopTarget float64
	fallback   clockwork.Timer
}

type SynchronizerOpts struct {
	Clock    clockwork.Clock
	Logger   logger.Logger
	Resolver audiopreview.Resolver
	Players  media.Factory
	Muted    bool
}

func NewSynchronizer(opts SynchronizerOpts) *Synchronizer {
	return &Synchronizer{
		clock:    opts.Clock,
		log:      opts.Logger,
		resolver: opts.Resolver,
		players:  opts.Players,
		muted:    opts.Muted,
	}
}

// Activate switches the synchronizer to a new item. The outgoing clip is
// stopped and released before any setup for the incoming clip starts. Items
// without an audio clip simply leave the slot empty. Autoplay refusal is not
// an error; it arms a one-shot retry on the next user gesture instead.
func (s *Synchronizer) Activate(ctx context.Context, item *domain.StoryItem, itemDuration time.Duration) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.retryArmed = false
	s.deferredStart = false
	s.cancelFallbackLocked()
	s.mu.Unlock()

	// Teardown completes before setup begins; two clips must never play at
	// the same time.
	s.slot.release()

	if item == nil || item.AudioClip == nil {
		return nil
	}
	clip := item.AudioClip
	effective := item.EffectiveAudioSeconds(itemDuration)
	if effective <= 0 {
		return nil
	}

	url, err := s.resolveSource(ctx, clip)
	if err != nil {
		return &PipelineError{Stage: StageResolve, Err: err}
	}
	if url == "" {
		s.log.Debug("No audio source for clip, playing item silently", "item", item.ID, "title", clip.Title)
		return nil
	}

	player := s.players.NewPlayer()
	if err := s.slot.acquire(player); err != nil {
		_ = player.Close()
		return err
	}

	if err := player.Load(ctx, url); err != nil {
		// A direct source that fails to load falls back to the preview
		// resolver once; any further failure abandons audio for this item.
		url = s.alternateSource(ctx, clip, url)
		if url == "" {
			s.slot.release()
			return &PipelineError{Stage: StageLoad, Err: err}
		}
		if err := player.Load(ctx, url); err != nil {
			s.slot.release()
			return &PipelineError{Stage: StageLoad, Err: err}
		}
	}

	s.mu.Lock()
	if s.gen != gen {
		// The session moved on while the clip was loading; the newer
		// activation already released this player through the slot.
		s.mu.Unlock()
		return nil
	}
	muted := s.muted
	s.mu.Unlock()

	if err := player.Seek(clip.StartOffsetSeconds); err != nil {
		s.slot.release()
		return &PipelineError{Stage: StageSeek, Err: err}
	}
	if err := player.SetMuted(muted); err != nil {
		s.log.Warn("Failed to apply mute state to clip", "item", item.ID, "error", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	if s.paused {
		// A pause source is still engaged, for example a hold surviving the
		// item switch. The clip stays loaded and parked at its start offset;
		// Resume begins playback so stop enforcement measures from the moment
		// audio actually starts.
		s.deferredStart = true
		s.deferredGen = gen
		s.deferredClip = clip
		s.deferredEffective = effective
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := player.Play(); err != nil {
		if err == media.ErrAutoplayBlocked {
			s.armRetry(gen, clip, effective)
			return nil
		}
		s.slot.release()
		return &PipelineError{Stage: StagePlay, Err: err}
	}

	s.beginWatch(gen, player, clip, effective)
	return nil
}

// Deactivate stops and releases any live clip and invalidates all watchers.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	s.gen++
	s.retryArmed = false
	s.deferredStart = false
	s.cancelFallbackLocked()
	s.mu.Unlock()

	s.slot.release()
}

// Pause suspends the live clip. Idempotent.
func (s *Synchronizer) Pause() {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.cancelFallbackLocked()
	s.mu.Unlock()

	if p := s.slot.current(); p != nil {
		_ = p.Pause()
	}
}

// Resume restarts the live clip and re-arms the fallback stop timer from the
// clip's current position. A clip whose start was deferred by Activate begins
// playing here instead. Idempotent.
func (s *Synchronizer) Resume() {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	gen := s.gen
	target := s.stopTarget
	deferred := s.deferredStart && s.deferredGen == gen
	clip := s.deferredClip
	effective := s.deferredEffective
	s.deferredStart = false
	s.mu.Unlock()

	p := s.slot.current()
	if p == nil {
		return
	}
	if err := p.Play(); err != nil {
		if deferred && err == media.ErrAutoplayBlocked {
			s.armRetry(gen, clip, effective)
			return
		}
		s.log.Debug("Failed to resume clip", "error", err)
		return
	}
	if deferred {
		s.beginWatch(gen, p, clip, effective)
		return
	}
	if target > 0 {
		s.rearmFallback(gen, p, target)
	}
}

// SetMuted applies the global mute flag to the live clip synchronously. The
// embedding surface reads Muted for the primary video's native track so both
// follow the same flag.
func (s *Synchronizer) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()

	if p := s.slot.current(); p != nil {
		_ = p.SetMuted(muted)
	}
}

// Muted returns the global mute flag.
func (s *Synchronizer) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// OnUserGesture retries a playback start that the runtime refused, once. The
// retry is scoped to the activation that armed it; gestures landing after an
// item switch do nothing.
func (s *Synchronizer) OnUserGesture() {
	s.mu.Lock()
	// A gesture landing while a pause source is engaged must not start audio;
	// it leaves the retry armed for the next one.
	if !s.retryArmed || s.retryGen != s.gen || s.paused {
		s.mu.Unlock()
		return
	}
	s.retryArmed = false
	gen := s.gen
	clip := s.retryClip
	effective := s.retryEffective
	s.mu.Unlock()

	p := s.slot.current()
	if p == nil {
		return
	}
	if err := p.Play(); err != nil {
		// One retry only; give up silently.
		s.log.Debug("Autoplay retry failed, abandoning clip", "error", err)
		return
	}
	s.beginWatch(gen, p, clip, effective)
}

func (s *Synchronizer) resolveSource(ctx context.Context, clip *domain.AudioClip) (string, error) {
	if clip.SourceRef != "" {
		return clip.SourceRef, nil
	}
	if s.resolver == nil {
		return "", nil
	}
	return s.resolver.Resolve(ctx, clip.Title, clip.Artist)
}

// alternateSource returns a fallback URL after a load failure, or "" when no
// alternative exists.
func (s *Synchronizer) alternateSource(ctx context.Context, clip *domain.AudioClip, failed string) string {
	if s.resolver == nil || failed == "" || failed != clip.SourceRef {
		return ""
	}
	url, err := s.resolver.Resolve(ctx, clip.Title, clip.Artist)
	if err != nil || url == failed {
		return ""
	}
	return url
}

func (s *Synchronizer) armRetry(gen uint64, clip *domain.AudioClip, effective float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.retryArmed = true
	s.retryGen = gen
	s.retryClip = clip
	s.retryEffective = effective
	s.log.Debug("Autoplay blocked, armed one-shot retry on next user gesture")
}

// beginWatch starts stop enforcement measured from the moment playback
// actually started: a watch loop on the clip's own clock when an explicit end
// offset exists, plus a fallback timer for runtimes that starve the loop.
func (s *Synchronizer) beginWatch(gen uint64, player media.AudioPlayer, clip *domain.AudioClip, effective float64) {
	target := clip.StartOffsetSeconds + effective

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.stopTarget = target
	s.mu.Unlock()

	if clip.EndOffsetSeconds == nil {
		// Without an explicit trim end the clip simply runs until item
		// teardown releases it.
		return
	}

	go s.watchLoop(gen, player, target)
	s.rearmFallback(gen, player, target)
}

func (s *Synchronizer) watchLoop(gen uint64, player media.AudioPlayer, target float64) {
	ticker := s.clock.NewTicker(watchInterval)
	defer ticker.Stop()

	for range ticker.Chan() {
		s.mu.Lock()
		stale := s.gen != gen
		paused := s.paused
		s.mu.Unlock()
		if stale {
			return
		}
		if paused {
			continue
		}

		pos, err := player.Position()
		if err != nil {
			continue
		}
		if pos >= target {
			s.stopClip(gen)
			return
		}
	}
}

// rearmFallback schedules the fallback stop for the remaining clip time. When
// it fires it verifies against the clip clock: if playback stalled or was
// paused the timer re-arms for the remainder instead of cutting early.
func (s *Synchronizer) rearmFallback(gen uint64, player media.AudioPlayer, target float64) {
	pos, err := player.Position()
	if err != nil {
		pos = target // position unknown; fire soon and re-check
	}
	remaining := time.Duration((target - pos) * float64(time.Second))
	if remaining < 0 {
		remaining = 0
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.cancelFallbackLocked()
	s.fallback = s.clock.AfterFunc(remaining+watchInterval, func() {
		s.fallbackFired(gen, player, target)
	})
	s.mu.Unlock()
}

func (s *Synchronizer) fallbackFired(gen uint64, player media.AudioPlayer, target float64) {
	s.mu.Lock()
	stale := s.gen != gen
	paused := s.paused
	s.mu.Unlock()
	if stale || paused {
		return
	}

	pos, err := player.Position()
	if err != nil || pos >= target-watchInterval.Seconds() {
		s.stopClip(gen)
		return
	}
	s.rearmFallback(gen, player, target)
}

// stopClip ends playback for the current activation only.
func (s *Synchronizer) stopClip(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.stopTarget = 0
	s.cancelFallbackLocked()
	s.mu.Unlock()

	s.slot.release()
}

func (s *Synchronizer) cancelFallbackLocked() {
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
}
