// Package engage translates scheduler and user events into idempotent,
// best-effort requests against the engagement collaborators, applying every
// change optimistically to the in-memory item first.
package engage

import (
	"context"
	"errors"

	"github.com/orgball2608/story-viewer-engine/internal/conversation"
	"github.com/orgball2608/story-viewer-engine/internal/domain"
	"github.com/orgball2608/story-viewer-engine/internal/engagement"
	"github.com/orgball2608/story-viewer-engine/internal/notifier"
	"github.com/orgball2608/story-viewer-engine/internal/ratelimit"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"github.com/samber/lo"
	"go.uber.org/fx"
)

var (
	// ErrDuplicateMention rejects mentioning a user already mentioned on the
	// item. Surfaced to the requester; no state changes.
	ErrDuplicateMention = errors.New("user is already mentioned on this story")

	// ErrNotOwner rejects deletion requests from anyone but the item owner.
	ErrNotOwner = errors.New("only the story owner can delete it")

	// ErrRateLimited rejects engagement actions arriving faster than the
	// per-user budget allows.
	ErrRateLimited = errors.New("too many engagement actions, slow down")
)

// Deps are the collaborator handles shared by all sessions.
type Deps struct {
	fx.In

	Store         engagement.Store
	Notifier      notifier.Sink
	Conversations conversation.Sink
	Limiter       ratelimit.Limiter
	Logger        logger.Logger
}

// Effects is the per-session side-effect emitter. All exported methods must be
// called on the session's logical thread (the controller invokes them under
// its lock); asynchronous completions re-enter that thread through dispatch.
type Effects struct {
	store         engagement.Store
	notifier      notifier.Sink
	conversations conversation.Sink
	limiter       ratelimit.Limiter
	log           logger.Logger

	viewerID string
	dispatch func(fn func())
}

// New builds the side-effect emitter for one session. dispatch runs a state
// mutation back on the session thread; rollbacks go through it.
func New(deps Deps, viewerID string, dispatch func(fn func())) *Effects {
	return &Effects{
		store:         deps.Store,
		notifier:      deps.Notifier,
		conversations: deps.Conversations,
		limiter:       deps.Limiter,
		log:           deps.Logger,
		viewerID:      viewerID,
		dispatch:      dispatch,
	}
}

// MarkViewed records the viewer on the item, exactly once per (viewer, item)
// pair. Silent best-effort: the local append sticks even when the store call
// fails.
func (e *Effects) MarkViewed(ctx context.Context, item *domain.StoryItem) {
	if item.ViewedByUser(e.viewerID) {
		return
	}
	item.ViewedBy = append(item.ViewedBy, e.viewerID)

	go func() {
		if err := e.store.MarkViewed(ctx, item.ID, e.viewerID); err != nil {
			e.log.Warn("Failed to persist story view", "item", item.ID, "viewer", e.viewerID, "error", err)
		}
	}()
}

// ToggleLike optimistically flips the viewer's membership in the item's like
// set and requests the store update. On store failure both the membership and
// the derived counter revert exactly to their pre-toggle values. A transition
// to liked notifies the item owner; unlikes and self-likes never do.
func (e *Effects) ToggleLike(ctx context.Context, item *domain.StoryItem) (bool, error) {
	if !e.limiter.Allow(e.viewerID) {
		return item.LikedByUser(e.viewerID), ErrRateLimited
	}

	wasLiked := item.LikedByUser(e.viewerID)
	liked := !wasLiked
	if liked {
		item.LikedBy = append(item.LikedBy, e.viewerID)
	} else {
		item.LikedBy = lo.Without(item.LikedBy, e.viewerID)
	}

	go func() {
		if err := e.store.SetLiked(ctx, item.ID, e.viewerID, liked); err != nil {
			e.log.Warn("Failed to persist like toggle, rolling back", "item", item.ID, "liked", liked, "error", err)
			e.dispatch(func() {
				if wasLiked {
					if !item.LikedByUser(e.viewerID) {
						item.LikedBy = append(item.LikedBy, e.viewerID)
					}
				} else {
					item.LikedBy = lo.Without(item.LikedBy, e.viewerID)
				}
			})
			return
		}

		if liked && e.viewerID != item.OwnerID {
			e.sendNotification(ctx, domain.Notification{
				Kind:         domain.NotificationLike,
				FromUser:     e.viewerID,
				ToUser:       item.OwnerID,
				ItemRef:      item.ID,
				ItemPostedAt: item.CreatedAt,
			})
		}
	}()

	return liked, nil
}

// Mention appends a mention of toUser on the item. A user already mentioned on
// the item is rejected with ErrDuplicateMention and nothing changes. The store
// append, the notification, and the auxiliary conversation message are
// independent outcomes: a failed chat message never rolls back the mention.
func (e *Effects) Mention(ctx context.Context, item *domain.StoryItem, toUser string) error {
	if !e.limiter.Allow(e.viewerID) {
		return ErrRateLimited
	}
	if item.MentionsUser(toUser) {
		return ErrDuplicateMention
	}

	item.Mentions = append(item.Mentions, domain.Mention{UserID: toUser})

	go func() {
		if err := e.store.AppendMention(ctx, item.ID, toUser); err != nil {
			e.log.Warn("Failed to persist mention, rolling back", "item", item.ID, "user", toUser, "error", err)
			e.dispatch(func() {
				item.Mentions = lo.Reject(item.Mentions, func(m domain.Mention, _ int) bool {
					return m.UserID == toUser
				})
			})
			return
		}

		e.sendNotification(ctx, domain.Notification{
			Kind:         domain.NotificationMention,
			FromUser:     e.viewerID,
			ToUser:       toUser,
			ItemRef:      item.ID,
			ItemPostedAt: item.CreatedAt,
		})

		if _, err := e.conversations.AppendMessage(ctx, domain.ConversationMessage{
			FromUser: item.OwnerID,
			ToUser:   toUser,
			Payload:  item.MediaRef,
		}); err != nil {
			// Best-effort only; mention success and chat delivery are
			// independent outcomes.
			e.log.Warn("Failed to append mention chat message", "item", item.ID, "user", toUser, "error", err)
		}
	}()

	return nil
}

// Delete requests external deletion of the item. Owner-only; a store failure
// is surfaced to the requester with no local change. The caller removes the
// item from the sequence after a successful return.
func (e *Effects) Delete(ctx context.Context, item *domain.StoryItem) error {
	if e.viewerID != item.OwnerID {
		return ErrNotOwner
	}
	if err := e.store.DeleteItem(ctx, item.ID); err != nil {
		return err
	}
	return nil
}

func (e *Effects) sendNotification(ctx context.Context, n domain.Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.log.Warn("Failed to deliver notification", "kind", n.Kind, "to", n.ToUser, "error", err)
	}
}
