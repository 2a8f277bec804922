package playback

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.Logger {
	return logger.New(logger.Opts{})
}

func TestSchedulerCompletesExactlyOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var completions atomic.Int32

	s := NewScheduler(SchedulerOpts{Clock: clock, Logger: testLogger(), Interval: 16 * time.Millisecond})
	s.OnComplete(func() { completions.Add(1) })

	s.Start(100 * time.Millisecond)
	clock.BlockUntil(1)

	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool {
		return completions.Load() == 1
	}, time.Second, 5*time.Millisecond, "completion should fire once the duration elapses")

	assert.Equal(t, 100.0, s.Progress())

	// Further time never produces a second completion.
	clock.Advance(200 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), completions.Load())
}

func TestSchedulerPauseFreezesElapsedTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var completions atomic.Int32

	s := NewScheduler(SchedulerOpts{Clock: clock, Logger: testLogger(), Interval: 16 * time.Millisecond})
	s.OnComplete(func() { completions.Add(1) })

	s.Start(10 * time.Second)
	clock.BlockUntil(1)

	clock.Advance(3 * time.Second)
	s.Pause()
	assert.Equal(t, 30.0, s.Progress(), "pause banks exactly the time accrued so far")

	// Time spent paused is discarded, not queued.
	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 30.0, s.Progress())
	assert.Equal(t, int32(0), completions.Load())

	s.Resume()
	clock.Advance(7 * time.Second)
	require.Eventually(t, func() bool {
		return completions.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 100.0, s.Progress())
}

func TestSchedulerPauseAndResumeAreIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()

	s := NewScheduler(SchedulerOpts{Clock: clock, Logger: testLogger(), Interval: 16 * time.Millisecond})

	s.Start(10 * time.Second)
	clock.BlockUntil(1)

	clock.Advance(2 * time.Second)
	s.Pause()
	clock.Advance(time.Second)
	s.Pause()
	assert.Equal(t, 20.0, s.Progress(), "second pause must not bank paused time")

	s.Resume()
	s.Resume()
	assert.Equal(t, 20.0, s.Progress())
}

func TestSchedulerStartResetsSynchronously(t *testing.T) {
	clock := clockwork.NewFakeClock()

	s := NewScheduler(SchedulerOpts{Clock: clock, Logger: testLogger(), Interval: 16 * time.Millisecond})

	s.Start(10 * time.Second)
	clock.BlockUntil(1)
	clock.Advance(4 * time.Second)
	s.Pause()
	assert.Equal(t, 40.0, s.Progress())

	// The reset is visible before any tick for the new item can land.
	s.Start(20 * time.Second)
	assert.Equal(t, 0.0, s.Progress())

	// A pause in effect when Start was called carries over.
	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0.0, s.Progress())

	s.Resume()
	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool {
		return s.Progress() == 25.0
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerStopDiscardsPendingCompletion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var completions atomic.Int32

	s := NewScheduler(SchedulerOpts{Clock: clock, Logger: testLogger(), Interval: 16 * time.Millisecond})
	s.OnComplete(func() { completions.Add(1) })

	s.Start(time.Second)
	clock.BlockUntil(1)
	s.Stop()

	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), completions.Load())
}

func TestSchedulerGatePauseDiscardsTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gate := NewGate(GateOpts{Clock: clock})

	s := NewScheduler(SchedulerOpts{Clock: clock, Logger: testLogger(), Gate: gate, Interval: 16 * time.Millisecond})

	s.Start(10 * time.Second)
	clock.BlockUntil(1)

	gate.Engage(SourcePanelViewers)
	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0.0, s.Progress(), "ticks while the gate is shut are discarded")
}
