package telegramnotifier

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-viewer-engine/internal/domain"
	"github.com/orgball2608/story-viewer-engine/internal/notifier"
	"github.com/orgball2608/story-viewer-engine/pkg/config"
	"github.com/orgball2608/story-viewer-engine/pkg/formatter"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
	Clock  clockwork.Clock
}

// Telegram delivers engagement notifications to a Telegram channel. Delivery
// is fire-and-forget from the engine's point of view; a failed send is logged
// by the caller and never retried here.
type Telegram struct {
	TgBot  *tgbotapi.BotAPI
	Logger logger.Logger
	Config *config.Config
	Clock  clockwork.Clock
}

func New(opts Opts) (*Telegram, error) {
	tgBot, err := tgbotapi.NewBotAPI(opts.Config.Telegram.BotToken)
	if err != nil {
		opts.Logger.Error("Error creating bot", "Error", err)
		return nil, err
	}

	return &Telegram{
		TgBot:  tgBot,
		Logger: opts.Logger,
		Config: opts.Config,
		Clock:  opts.Clock,
	}, nil
}

var _ notifier.Sink = (*Telegram)(nil)

func (t *Telegram) Notify(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessageToChannel(t.Config.Telegram.Channel, t.render(n))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := t.TgBot.Send(msg); err != nil {
		return fmt.Errorf("failed to send notification message: %w", err)
	}
	return nil
}

func (t *Telegram) render(n domain.Notification) string {
	from := formatter.EscapeMarkdownV2(n.FromUser)
	to := formatter.EscapeMarkdownV2(n.ToUser)
	ref := formatter.EscapeMarkdownV2(n.ItemRef)

	var body string
	switch n.Kind {
	case domain.NotificationLike:
		body = fmt.Sprintf("❤️ *%s* liked a story by *%s* \\(%s\\)", from, to, ref)
	case domain.NotificationMention:
		body = fmt.Sprintf("💬 *%s* mentioned *%s* on a story \\(%s\\)", from, to, ref)
	default:
		body = fmt.Sprintf("*%s* → *%s* \\(%s\\)", from, to, ref)
	}

	if !n.ItemPostedAt.IsZero() {
		age := formatter.EscapeMarkdownV2(formatter.Age(n.ItemPostedAt, t.Clock.Now()))
		body = fmt.Sprintf("%s, posted %s", body, age)
	}
	return body
}
