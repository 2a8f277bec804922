package instagramsource

import (
	"context"
	"time"

	"github.com/orgball2608/story-viewer-engine/internal/domain"
	"github.com/samber/lo"
)

// Deletions polls the owner's story reel and emits the id of every item that
// disappears from it, whether the owner deleted it or it aged out server
// side. The channel closes when ctx is cancelled.
func (s *IgSource) Deletions(ctx context.Context, ownerUsername string) (<-chan string, error) {
	initial, err := s.FetchItems(ctx, ownerUsername)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go s.pollDeletions(ctx, ownerUsername, itemIDs(initial), out)
	return out, nil
}

func (s *IgSource) pollDeletions(ctx context.Context, ownerUsername string, known []string, out chan<- string) {
	defer close(out)

	interval := time.Duration(s.Config.Instagram.PollSeconds) * time.Second
	ticker := s.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		current, err := s.FetchItems(ctx, ownerUsername)
		if err != nil {
			s.Logger.Warn("Deletion poll failed, keeping last known reel", "username", ownerUsername, "error", err)
			continue
		}

		currentIDs := itemIDs(current)
		removed, _ := lo.Difference(known, currentIDs)
		for _, id := range removed {
			select {
			case out <- id:
			case <-ctx.Done():
				return
			}
		}
		known = currentIDs
	}
}

func itemIDs(items []*domain.StoryItem) []string {
	return lo.Map(items, func(item *domain.StoryItem, _ int) string { return item.ID })
}
