package playback

import (
	"errors"
	"sync"

	"github.com/orgball2608/story-viewer-engine/internal/media"
)

// ErrSlotOccupied is returned when a second live audio resource is acquired
// before the first was released.
var ErrSlotOccupied = errors.New("audio slot already holds a live resource")

// slot enforces the single-live-resource invariant for background audio: at
// most one AudioPlayer exists across the whole session, and ownership moves
// between items only through a full release/acquire cycle.
type slot struct {
	mu     sync.Mutex
	player media.AudioPlayer
}

func (s *slot) acquire(p media.AudioPlayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return ErrSlotOccupied
	}
	s.player = p
	return nil
}

// release stops and frees the current resource, if any. The outgoing clip is
// paused and its position reset before Close so backends that pool handles
// never leak a playing stream.
func (s *slot) release() {
	s.mu.Lock()
	p := s.player
	s.player = nil
	s.mu.Unlock()

	if p == nil {
		return
	}
	_ = p.Pause()
	_ = p.Seek(0)
	_ = p.Close()
}

// current returns the live resource, or nil when the slot is empty.
func (s *slot) current() media.AudioPlayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}
