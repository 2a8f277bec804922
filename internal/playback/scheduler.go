package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
)

// Scheduler owns per-item elapsed time for the active story item. It runs a
// tick loop that accumulates wall time only while playback is allowed,
// converts the total to a 0-100 progress value, and fires the completion
// callback exactly once when the item's duration has elapsed.
//
// Every tick loop is bound to the generation that started it; Start and Stop
// bump the generation, so a loop that lost its generation exits without
// touching state. That guard, not a boolean, is what keeps a dangling tick
// from mutating a session that has already moved on.
type Scheduler struct {
	mu    sync.Mutex
	clock clockwork.Clock
	log   logger.Logger

	interval time.Duration
	gate     *Gate

	gen       uint64
	duration  time.Duration
	elapsed   time.Duration
	lastTick  time.Time
	running   bool
	paused    bool
	completed bool

	onComplete func()
}

type SchedulerOpts struct {
	Clock    clockwork.Clock
	Logger   logger.Logger
	Gate     *Gate
	Interval time.Duration
}

const defaultTickInterval = 16 * time.Millisecond

func NewScheduler(opts SchedulerOpts) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = defaultTickInterval
	}
	return &Scheduler{
		clock:    opts.Clock,
		log:      opts.Logger,
		interval: opts.Interval,
		gate:     opts.Gate,
	}
}

// OnComplete registers the completion callback. It is invoked outside the
// scheduler's lock, at most once per started item.
func (s *Scheduler) OnComplete(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// Start resets elapsed time to zero and begins timing a new item. The reset is
// visible synchronously: Progress reports 0 before any tick for the new item
// can fire. A pause in effect when Start is called carries over to the new
// item.
func (s *Scheduler) Start(duration time.Duration) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.duration = duration
	s.elapsed = 0
	s.lastTick = s.clock.Now()
	s.running = true
	s.completed = false
	s.mu.Unlock()

	go s.tickLoop(gen)
}

// Stop halts timing for the current item. Any in-flight tick loop observes the
// generation change and exits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.running = false
}

// Pause freezes elapsed-time accumulation, banking time accrued up to now.
// Pausing an already-paused scheduler is a no-op.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	if s.running {
		now := s.clock.Now()
		s.elapsed += now.Sub(s.lastTick)
		s.lastTick = now
	}
	s.paused = true
}

// Resume restarts accumulation from the moment of the call. Resuming an
// already-running scheduler is a no-op.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	s.lastTick = s.clock.Now()
}

// Progress returns the current item's completion percentage in [0, 100].
func (s *Scheduler) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duration <= 0 {
		return 0
	}
	p := float64(s.elapsed) / float64(s.duration) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Elapsed returns accumulated playing time for the current item.
func (s *Scheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

func (s *Scheduler) tickLoop(gen uint64) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for range ticker.Chan() {
		complete, alive := s.tick(gen)
		if complete {
			s.fireComplete(gen)
			return
		}
		if !alive {
			return
		}
	}
}

// tick advances elapsed time by the wall delta since the previous tick. A tick
// that arrives while paused, or after its generation moved on, is discarded,
// never queued. The gate is consulted before the tick is accepted; s.paused
// mirrors the gate through the pause/resume wiring and covers the window
// between a gate transition and the next delivered tick.
func (s *Scheduler) tick(gen uint64) (complete, alive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || !s.running || s.completed {
		return false, false
	}

	now := s.clock.Now()
	delta := now.Sub(s.lastTick)
	s.lastTick = now

	if s.paused || (s.gate != nil && s.gate.Paused()) {
		return false, true
	}

	s.elapsed += delta
	if s.elapsed >= s.duration {
		s.elapsed = s.duration
		s.completed = true
		s.running = false
		return true, false
	}
	return false, true
}

func (s *Scheduler) fireComplete(gen uint64) {
	s.mu.Lock()
	fn := s.onComplete
	stale := s.gen != gen
	s.mu.Unlock()

	if stale || fn == nil {
		return
	}
	fn()
}
