package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateSourcesComposeAsOR(t *testing.T) {
	g := NewGate(GateOpts{Clock: clockwork.NewFakeClock()})

	assert.False(t, g.Paused())

	g.Engage(SourcePanelViewers)
	g.Engage(SourcePanelLikers)
	assert.True(t, g.Paused())

	g.Release(SourcePanelViewers)
	assert.True(t, g.Paused(), "one remaining source keeps the gate shut")

	g.Release(SourcePanelLikers)
	assert.False(t, g.Paused())
}

func TestGateOnChangeFiresOnlyOnFlips(t *testing.T) {
	g := NewGate(GateOpts{Clock: clockwork.NewFakeClock()})

	var mu sync.Mutex
	var flips []bool
	g.OnChange(func(paused bool) {
		mu.Lock()
		flips = append(flips, paused)
		mu.Unlock()
	})

	g.Engage(SourcePanelViewers)
	g.Engage(SourcePanelMention)
	g.Engage(SourcePanelViewers) // re-engage is a no-op
	g.Release(SourcePanelViewers)
	g.Release(SourcePanelMention)
	g.Release(SourcePanelMention) // re-release is a no-op

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, flips)
}

func TestGateHoldArmsAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := NewGate(GateOpts{Clock: clock, HoldDelay: 200 * time.Millisecond})

	g.BeginHold()
	assert.False(t, g.Paused(), "hold must not engage before the delay")

	clock.Advance(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		return g.Paused()
	}, time.Second, 5*time.Millisecond)

	g.EndHold()
	assert.False(t, g.Paused())
}

func TestGateHoldReleasedBeforeDelayNeverPauses(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := NewGate(GateOpts{Clock: clock, HoldDelay: 200 * time.Millisecond})

	g.BeginHold()
	g.EndHold()

	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, g.Paused(), "a tap shorter than the delay must not flicker the pause state")
}

func TestGateCloseAllPanelsLeavesHoldAlone(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := NewGate(GateOpts{Clock: clock, HoldDelay: 100 * time.Millisecond})

	g.Engage(SourcePanelViewers)
	g.BeginHold()
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return g.Paused() }, time.Second, 5*time.Millisecond)

	g.CloseAllPanels()
	assert.True(t, g.Paused(), "the hold source survives panel force-close")

	g.EndHold()
	assert.False(t, g.Paused())
}

func TestPauseSourceIsPanel(t *testing.T) {
	assert.True(t, SourcePanelViewers.IsPanel())
	assert.True(t, SourcePanelLikers.IsPanel())
	assert.True(t, SourcePanelMention.IsPanel())
	assert.False(t, SourceHold.IsPanel())
}
