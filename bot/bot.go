// Package bot is the Telegram transport adapter: it long-polls for updates,
// feeds message text and callback data to the conversation engine, and renders
// the engine's replies as Telegram messages with the appropriate keyboards.
package bot

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/tventura/livecastbot/conversation"
	"github.com/tventura/livecastbot/telemetry"
)

// Bot wraps the Telegram API client and the conversation engine. Updates are
// processed one at a time; the engine serializes per-user state itself but the
// sequential loop keeps reply ordering predictable within a chat.
type Bot struct {
	api    *tgbotapi.BotAPI
	engine *conversation.Engine

	pollTimeout   time.Duration
	handleTimeout time.Duration
}

// New authenticates against the Telegram Bot API and returns a ready bot.
// pollTimeout is the long-poll window; handleTimeout bounds the processing of a
// single update, including any platform API calls the engine makes.
func New(token string, engine *conversation.Engine, pollTimeout, handleTimeout time.Duration) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:           api,
		engine:        engine,
		pollTimeout:   pollTimeout,
		handleTimeout: handleTimeout,
	}, nil
}

// Run polls for updates until ctx is cancelled. It always returns ctx's error.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(b.pollTimeout / time.Second)
	updates := b.api.GetUpdatesChan(cfg)
	slog.Info("telegram bot started", slog.String("bot_username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			slog.Info("telegram bot stopping")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if telemetry.TelegramUpdates != nil {
		telemetry.TelegramUpdates.Inc()
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, b.handleTimeout)
	defer cancel()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	replies := b.engine.HandleMessage(ctx, msg.From.ID, msg.Text)
	b.send(ctx, msg.Chat.ID, replies)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Acknowledge first so the client stops showing the spinner even if the
	// engine takes a while.
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("callback ack failed", slog.Any("err", err))
	}
	if cq.Message == nil {
		return
	}
	replies := b.engine.HandleCallback(ctx, cq.From.ID, cq.Data)
	b.send(ctx, cq.Message.Chat.ID, replies)
}

func (b *Bot) send(ctx context.Context, chatID int64, replies []conversation.Reply) {
	for _, r := range replies {
		msg := tgbotapi.NewMessage(chatID, r.Text)
		if kb := keyboardFor(r.Markup); kb != nil {
			msg.ReplyMarkup = kb
		}
		if _, err := b.api.Send(msg); err != nil {
			telemetry.LoggerWithCorr(ctx).Error("telegram send failed",
				slog.Int64("chat_id", chatID), slog.Any("err", err))
		}
	}
}
