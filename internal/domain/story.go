package domain

import (
	"time"

	"github.com/samber/lo"
)

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// RetentionWindow is how long a story stays visible after creation. Expiry is
// enforced by the engagement store, not by the playback engine.
const RetentionWindow = 12 * time.Hour

// AudioClip is an optional background-audio binding for a story item. The clip
// is trimmed to [StartOffsetSeconds, EndOffsetSeconds); when EndOffsetSeconds
// is nil the clip plays until the item's own duration elapses.
type AudioClip struct {
	Title              string
	Artist             string
	SourceRef          string
	StartOffsetSeconds float64
	EndOffsetSeconds   *float64
}

// Mention records a user mentioned on a story item, in issue order.
type Mention struct {
	UserID string
}

// StoryItem is one ephemeral media post within a sequence. Media fields are
// immutable after creation; the engagement fields (ViewedBy, LikedBy,
// Mentions) are mutated optimistically by the engine and reconciled against
// the engagement store.
type StoryItem struct {
	ID               string
	OwnerID          string
	OwnerDisplayName string
	OwnerAvatarRef   string

	MediaRef  string
	MediaKind MediaKind
	CreatedAt time.Time

	ViewedBy []string
	LikedBy  []string
	Mentions []Mention

	AudioClip *AudioClip
}

func (s *StoryItem) ViewedByUser(userID string) bool {
	return lo.Contains(s.ViewedBy, userID)
}

func (s *StoryItem) LikedByUser(userID string) bool {
	return lo.Contains(s.LikedBy, userID)
}

func (s *StoryItem) MentionsUser(userID string) bool {
	return lo.SomeBy(s.Mentions, func(m Mention) bool { return m.UserID == userID })
}

func (s *StoryItem) LikeCount() int {
	return len(s.LikedBy)
}

// EffectiveAudioSeconds returns how long the item's clip should play given the
// item duration, honoring the trim window. Returns 0 when there is no clip.
func (s *StoryItem) EffectiveAudioSeconds(itemDuration time.Duration) float64 {
	if s.AudioClip == nil {
		return 0
	}
	limit := itemDuration.Seconds()
	if s.AudioClip.EndOffsetSeconds == nil {
		return limit
	}
	window := *s.AudioClip.EndOffsetSeconds - s.AudioClip.StartOffsetSeconds
	if window < limit {
		return window
	}
	return limit
}
