// Package telegram connects the router to a Telegram bot through long polling.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"github.com/illarion/lockbot/internal/router"
)

const (
	// maxMessageLen stays under Telegram's hard limit of 4096
	maxMessageLen = 4000

	// menuDescriptionLen is the limit for setMyCommands descriptions
	menuDescriptionLen = 256
)

// Handler turns a trigger into a response
type Handler interface {
	Handle(ctx context.Context, t router.Trigger) router.Response
}

// Bot receives updates and sends responses
type Bot struct {
	bot     *telego.Bot
	handler Handler
	log     *zap.Logger
}

// New creates a bot for token. Telego's own diagnostics go to log.
func New(token string, handler Handler, log *zap.Logger) (*Bot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("telegram")

	bot, err := telego.NewBot(token, telego.WithLogger(log.Sugar()))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Bot{bot: bot, handler: handler, log: log}, nil
}

// SyncCommands publishes the command menu shown by Telegram clients
func (b *Bot) SyncCommands(ctx context.Context, descriptors []router.Descriptor) error {
	commands := make([]telego.BotCommand, 0, len(descriptors))
	for _, d := range descriptors {
		desc := d.Description
		if len(desc) > menuDescriptionLen {
			desc = desc[:menuDescriptionLen]
		}
		commands = append(commands, telego.BotCommand{Command: d.Name, Description: desc})
	}
	if len(commands) == 0 {
		return b.bot.DeleteMyCommands(ctx, nil)
	}
	return b.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands})
}

// Run polls for updates until ctx is done. Updates are handled one at a
// time in arrival order.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	if me, err := b.bot.GetMe(ctx); err == nil {
		b.log.Info("polling started", zap.String("bot", me.Username))
	}

	for update := range updates {
		b.dispatch(ctx, update)
	}
	b.log.Info("polling stopped")
	return nil
}

func (b *Bot) dispatch(ctx context.Context, update telego.Update) {
	t, ok := triggerFrom(update)
	if !ok {
		return
	}

	if q := update.CallbackQuery; q != nil {
		if err := b.bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(q.ID)); err != nil {
			b.log.Debug("failed to answer callback", zap.Error(err))
		}
	}

	resp := b.handler.Handle(ctx, t)

	if resp.DeleteInput && t.Kind != router.KindButton {
		err := b.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    tu.ID(t.Chat),
			MessageID: t.MessageID,
		})
		if err != nil {
			b.log.Warn("failed to delete secret message", zap.Error(err))
		}
	}

	if err := b.Notify(ctx, t.Chat, resp); err != nil {
		b.log.Error("failed to send response", zap.Int64("chat", t.Chat), zap.Error(err))
	}
}

// Notify sends resp to chat, splitting long text. Buttons go with the last part.
func (b *Bot) Notify(ctx context.Context, chat int64, resp router.Response) error {
	if resp.Text == "" {
		return nil
	}
	parts := chunk(resp.Text, maxMessageLen)
	for i, part := range parts {
		msg := tu.Message(tu.ID(chat), part)
		if i == len(parts)-1 {
			if kb := keyboard(resp.Buttons); kb != nil {
				msg = msg.WithReplyMarkup(kb)
			}
		}
		if _, err := b.bot.SendMessage(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// triggerFrom extracts a router trigger from an update
func triggerFrom(update telego.Update) (router.Trigger, bool) {
	switch {
	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Text == "" {
			return router.Trigger{}, false
		}
		return router.ParseText(m.From.ID, m.Chat.ID, m.MessageID, m.Text), true

	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		chat, messageID := q.From.ID, 0
		if q.Message != nil {
			chat = q.Message.GetChat().ID
			messageID = q.Message.GetMessageID()
		}
		return router.ParseButton(q.From.ID, chat, messageID, q.Data), true
	}
	return router.Trigger{}, false
}

func keyboard(rows [][]router.Button) *telego.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kbRows := make([][]telego.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tu.InlineKeyboardButton(btn.Label).WithCallbackData(btn.ID))
		}
		kbRows = append(kbRows, tu.InlineKeyboardRow(buttons...))
	}
	return tu.InlineKeyboard(kbRows...)
}

// chunk splits text into parts of at most limit bytes, preferring line breaks
func chunk(text string, limit int) []string {
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			// Never split a UTF-8 sequence
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
