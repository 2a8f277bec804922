package pgxstore

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-co-op/gocron/v2"
	"github.com/orgball2608/story-viewer-engine/internal/domain"
)

// CleanupExpired removes stories past the retention window along with their
// engagement rows, and returns how many stories were purged. The engagement
// tables cascade from stories, so one delete covers all of them.
func (p *Pgx) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	query, args, err := sqBuilder.
		Delete("stories").
		Where(sq.Lt{"created_at": time.Now().Add(-retention)}).
		ToSql()
	if err != nil {
		return 0, ErrBadQuery
	}

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired stories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ScheduleRetentionSweep runs CleanupExpired every hour until ctx is
// cancelled. This is the store-side enforcement of the 12-hour story
// lifetime; the playback engine never checks expiry itself.
func (p *Pgx) ScheduleRetentionSweep(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create retention scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				p.logger.Info("Context cancelled, stopping retention sweep job")
				return
			}

			sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()

			purged, err := p.CleanupExpired(sweepCtx, domain.RetentionWindow)
			if err != nil {
				p.logger.Error("Retention sweep failed", "error", err)
				return
			}
			if purged > 0 {
				p.logger.Info("Retention sweep completed", "stories_purged", purged)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	scheduler.Start()

	go func() {
		<-ctx.Done()
		p.logger.Info("Stopping retention sweep scheduler")
		if err := scheduler.Shutdown(); err != nil {
			p.logger.Error("Failed to shut down retention scheduler", "error", err)
		}
	}()

	return nil
}
