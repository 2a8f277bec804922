package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

// PauseSource is one independent reason playback must be suspended. Sources
// compose as a logical OR: playback runs only while the active set is empty.
type PauseSource string

const (
	SourcePanelViewers PauseSource = "panel:viewers"
	SourcePanelLikers  PauseSource = "panel:likers"
	SourcePanelMention PauseSource = "panel:mention"
	SourceHold         PauseSource = "hold"
)

var panelSources = []PauseSource{SourcePanelViewers, SourcePanelLikers, SourcePanelMention}

// IsPanel reports whether the source is a side panel (panels are per-item and
// get force-closed on item transitions).
func (s PauseSource) IsPanel() bool {
	return lo.Contains(panelSources, s)
}

// Gate is the single authority for "should playback be advancing right now".
// The scheduler and synchronizer never read pause flags anywhere else.
//
// Press-and-hold arms after a short delay so a tap-to-navigate gesture does
// not flicker the pause state; releasing before the delay fires cancels the
// pending pause outright.
type Gate struct {
	mu    sync.Mutex
	clock clockwork.Clock

	holdDelay time.Duration
	sources   map[PauseSource]struct{}

	holdGen   uint64
	holdTimer clockwork.Timer

	onChange func(paused bool)
}

type GateOpts struct {
	Clock     clockwork.Clock
	HoldDelay time.Duration
}

const defaultHoldDelay = 200 * time.Millisecond

func NewGate(opts GateOpts) *Gate {
	if opts.HoldDelay <= 0 {
		opts.HoldDelay = defaultHoldDelay
	}
	return &Gate{
		clock:     opts.Clock,
		holdDelay: opts.HoldDelay,
		sources:   make(map[PauseSource]struct{}),
	}
}

// OnChange registers the listener invoked (outside the gate's lock) whenever
// the effective paused state flips.
func (g *Gate) OnChange(fn func(paused bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

// Paused reports whether any pause source is currently active.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sources) > 0
}

// Engage activates a pause source. Activating an already-active source is a
// no-op.
func (g *Gate) Engage(src PauseSource) {
	g.mu.Lock()
	if _, ok := g.sources[src]; ok {
		g.mu.Unlock()
		return
	}
	wasEmpty := len(g.sources) == 0
	g.sources[src] = struct{}{}
	fn := g.onChange
	g.mu.Unlock()

	if wasEmpty && fn != nil {
		fn(true)
	}
}

// Release deactivates a pause source. Playback resumes only when no source
// remains active, so closing one panel while another is open keeps the gate
// shut.
func (g *Gate) Release(src PauseSource) {
	g.mu.Lock()
	if _, ok := g.sources[src]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.sources, src)
	nowEmpty := len(g.sources) == 0
	fn := g.onChange
	g.mu.Unlock()

	if nowEmpty && fn != nil {
		fn(false)
	}
}

// BeginHold starts the press-and-hold arming delay. The pause engages only if
// the press is still held when the delay elapses.
func (g *Gate) BeginHold() {
	g.mu.Lock()
	g.holdGen++
	gen := g.holdGen
	if g.holdTimer != nil {
		g.holdTimer.Stop()
	}
	g.holdTimer = g.clock.AfterFunc(g.holdDelay, func() {
		g.armHold(gen)
	})
	g.mu.Unlock()
}

// EndHold releases the press. If the arming delay has not fired yet the
// pending pause is cancelled, never applied.
func (g *Gate) EndHold() {
	g.mu.Lock()
	g.holdGen++
	if g.holdTimer != nil {
		g.holdTimer.Stop()
		g.holdTimer = nil
	}
	g.mu.Unlock()

	g.Release(SourceHold)
}

func (g *Gate) armHold(gen uint64) {
	g.mu.Lock()
	stale := g.holdGen != gen
	g.mu.Unlock()
	if stale {
		return
	}
	g.Engage(SourceHold)
}

// CloseAllPanels releases every panel source. Called on item transitions;
// panels are per-item, not global. A hold in progress is left alone.
func (g *Gate) CloseAllPanels() {
	for _, src := range panelSources {
		g.Release(src)
	}
}
