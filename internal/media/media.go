// Package media defines the abstraction over audio playback backends used for
// background story clips. The primary implementation targets mpv via its
// JSON-IPC interface.
package media

import (
	"context"
	"errors"
)

// ErrAutoplayBlocked is returned by Play when the runtime refuses to start
// playback without a user gesture.
var ErrAutoplayBlocked = errors.New("autoplay blocked by runtime")

//go:generate go run go.uber.org/mock/mockgen -source=media.go -destination=mocks/mock.go

// AudioPlayer is one playable audio resource. Implementations are single-use:
// Load once, then control playback until Close releases the backend resource.
type AudioPlayer interface {
	// Load fetches the source and returns once metadata is available. Seeking
	// before Load returns is undefined on most backends.
	Load(ctx context.Context, url string) error

	// Play starts or resumes playback. May return ErrAutoplayBlocked.
	Play() error

	// Pause suspends playback. Pausing a paused player is a no-op.
	Pause() error

	// Seek moves the playback position to an absolute offset in seconds.
	Seek(seconds float64) error

	// Position reports the current playback position in seconds, measured on
	// the clip's own playback clock.
	Position() (float64, error)

	// SetMuted toggles the audio track without reloading.
	SetMuted(muted bool) error

	// Close stops playback and releases the underlying resource. Safe to call
	// more than once.
	Close() error
}

// Factory creates fresh players; the synchronizer acquires one per item with
// an audio clip and never reuses instances across items.
type Factory interface {
	NewPlayer() AudioPlayer
}
