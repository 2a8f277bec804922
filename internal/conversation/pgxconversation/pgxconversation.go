package pgxconversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orgball2608/story-viewer-engine/internal/conversation"
	"github.com/orgball2608/story-viewer-engine/internal/domain"
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

// Pgx stores the direct-message side channel used by story mentions. A
// conversation is keyed by its unordered user pair; appending a message with
// no conversation id finds or creates the pair's conversation.
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

var _ conversation.Sink = (*Pgx)(nil)

func (p *Pgx) AppendMessage(ctx context.Context, msg domain.ConversationMessage) (string, error) {
	conversationID := msg.ConversationID
	if conversationID == "" {
		id, err := p.findOrCreate(ctx, msg.FromUser, msg.ToUser)
		if err != nil {
			return "", err
		}
		conversationID = id
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query, args, err := sqBuilder.
		Insert("conversation_messages").
		Columns("id", "conversation_id", "from_user", "to_user", "payload", "created_at").
		Values(uuid.NewString(), conversationID, msg.FromUser, msg.ToUser, msg.Payload, createdAt).
		ToSql()
	if err != nil {
		return "", ErrBadQuery
	}

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to append conversation message: %w", err)
	}
	return conversationID, nil
}

// findOrCreate resolves the conversation for an unordered user pair, creating
// it when the pair has never talked.
func (p *Pgx) findOrCreate(ctx context.Context, userA, userB string) (string, error) {
	if userB < userA {
		userA, userB = userB, userA
	}

	query, args, err := sqBuilder.
		Select("id").
		From("conversations").
		Where(sq.Eq{"user_a": userA, "user_b": userB}).
		ToSql()
	if err != nil {
		return "", ErrBadQuery
	}

	var id string
	err = p.pool.QueryRow(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to look up conversation: %w", err)
	}

	id = uuid.NewString()
	query, args, err = sqBuilder.
		Insert("conversations").
		Columns("id", "user_a", "user_b", "created_at").
		Values(id, userA, userB, time.Now()).
		Suffix("ON CONFLICT (user_a, user_b) DO UPDATE SET user_a = EXCLUDED.user_a RETURNING id").
		ToSql()
	if err != nil {
		return "", ErrBadQuery
	}

	if err := p.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}
