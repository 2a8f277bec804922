package instagramsource

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Davincible/goinsta/v3"
	"github.com/orgball2608/story-viewer-engine/internal/domain"
	apperrors "github.com/orgball2608/story-viewer-engine/pkg/errors"
)

// FetchItems loads the owner's current story reel and maps it into the
// engine's item model, oldest first.
func (s *IgSource) FetchItems(ctx context.Context, ownerUsername string) ([]*domain.StoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.Logger.Info("Fetching stories", "username", ownerUsername)
	profile, err := s.Client.VisitProfile(ownerUsername)
	if err != nil {
		return nil, apperrors.WrapWithCode(err, "IG_FETCH", fmt.Sprintf("failed to visit profile %s", ownerUsername))
	}

	reel := profile.Stories.Reel
	items := make([]*domain.StoryItem, 0, len(reel.Items))
	for _, raw := range reel.Items {
		item, err := mapItem(raw)
		if err != nil {
			s.Logger.Warn("Skipping unmappable story item", "username", ownerUsername, "error", err)
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func mapItem(raw *goinsta.Item) (*domain.StoryItem, error) {
	id, ok := raw.ID.(string)
	if !ok {
		return nil, fmt.Errorf("invalid story ID type: expected string, got %T", raw.ID)
	}

	item := &domain.StoryItem{
		ID:               id,
		OwnerID:          fmt.Sprint(raw.User.ID),
		OwnerDisplayName: raw.User.Username,
		OwnerAvatarRef:   raw.User.ProfilePicURL,
		CreatedAt:        time.Unix(raw.TakenAt, 0),
	}

	switch {
	case len(raw.Videos) > 0:
		item.MediaKind = domain.MediaKindVideo
		item.MediaRef = raw.Videos[0].URL
	case len(raw.Images.Versions) > 0:
		item.MediaKind = domain.MediaKindImage
		item.MediaRef = raw.Images.Versions[0].URL
	default:
		return nil, fmt.Errorf("story item %s has no media", id)
	}

	return item, nil
}
