package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orgball2608/story-viewer-engine/internal/engagement"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"go.uber.org/fx"
)

var sqBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var ErrBadQuery = errors.New("bad query")

type Opts struct {
	fx.In

	Pool   *pgxpool.Pool
	Logger logger.Logger
}

// Pgx persists engagement state in postgres. All writes are idempotent so the
// engine's best-effort requests can land more than once without harm.
type Pgx struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

func New(opts Opts) *Pgx {
	return &Pgx{
		pool:   opts.Pool,
		logger: opts.Logger,
	}
}

var _ engagement.Store = (*Pgx)(nil)

// ensureStory upserts the parent stories row so engagement rows always have
// something to cascade from. created_at here is first-seen time, which the
// retention sweep treats as the start of the story's lifetime.
func (p *Pgx) ensureStory(ctx context.Context, itemID string) error {
	query, args, err := sqBuilder.
		Insert("stories").
		Columns("id", "created_at").
		Values(itemID, time.Now()).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to register story: %w", err)
	}
	return nil
}

func (p *Pgx) MarkViewed(ctx context.Context, itemID, viewerID string) error {
	if err := p.ensureStory(ctx, itemID); err != nil {
		return err
	}

	query, args, err := sqBuilder.
		Insert("story_views").
		Columns("item_id", "viewer_id", "created_at").
		Values(itemID, viewerID, time.Now()).
		Suffix("ON CONFLICT (item_id, viewer_id) DO NOTHING").
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark story viewed: %w", err)
	}
	return nil
}

func (p *Pgx) SetLiked(ctx context.Context, itemID, userID string, liked bool) error {
	if err := p.ensureStory(ctx, itemID); err != nil {
		return err
	}

	if liked {
		query, args, err := sqBuilder.
			Insert("story_likes").
			Columns("item_id", "user_id", "created_at").
			Values(itemID, userID, time.Now()).
			Suffix("ON CONFLICT (item_id, user_id) DO NOTHING").
			ToSql()
		if err != nil {
			return ErrBadQuery
		}
		if _, err := p.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to record story like: %w", err)
		}
		return nil
	}

	query, args, err := sqBuilder.
		Delete("story_likes").
		Where(sq.Eq{"item_id": itemID, "user_id": userID}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove story like: %w", err)
	}
	return nil
}

func (p *Pgx) AppendMention(ctx context.Context, itemID, userID string) error {
	if err := p.ensureStory(ctx, itemID); err != nil {
		return err
	}

	// Position keeps issue order; the unique index rejects duplicates for the
	// same (item, user) pair, which the engine already filters locally.
	query, args, err := sqBuilder.
		Insert("story_mentions").
		Columns("item_id", "user_id", "position", "created_at").
		Values(itemID, userID, sq.Expr(
			"(SELECT COALESCE(MAX(position), 0) + 1 FROM story_mentions WHERE item_id = ?)", itemID,
		), time.Now()).
		Suffix("ON CONFLICT (item_id, user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to append story mention: %w", err)
	}
	return nil
}

func (p *Pgx) DeleteItem(ctx context.Context, itemID string) error {
	query, args, err := sqBuilder.
		Delete("stories").
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engagement.ErrNotFound
	}
	return nil
}
