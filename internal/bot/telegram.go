package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relaygate/internal/models"
)

// clearHistorySweep is how many recent messages a history-clear attempt
// tries to delete. Bots have no bulk wipe; deleting backwards from the
// last known id is the best available approximation.
const clearHistorySweep = 30

// Telegram implements Transport on the Bot API and owns the
// long-polling update loop.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// Compile-time check that Telegram implements Transport
var _ Transport = (*Telegram)(nil)

// NewTelegram authorizes against the Bot API.
func NewTelegram(token string, debug bool, logger *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize bot: %w", err)
	}
	api.Debug = debug

	logger.Info("authorized on bot account", "username", api.Self.UserName)

	return &Telegram{api: api, logger: logger}, nil
}

// Send delivers one outgoing message and returns its message id.
func (t *Telegram) Send(ctx context.Context, msg Outgoing) (int, error) {
	var chattable tgbotapi.Chattable

	switch msg.Kind {
	case models.KindPhoto:
		c := tgbotapi.NewPhoto(msg.ChatID, tgbotapi.FileID(msg.FileID))
		c.Caption = msg.Caption
		c.ReplyToMessageID = msg.ReplyTo
		chattable = c
	case models.KindDocument:
		c := tgbotapi.NewDocument(msg.ChatID, tgbotapi.FileID(msg.FileID))
		c.Caption = msg.Caption
		c.ReplyToMessageID = msg.ReplyTo
		chattable = c
	case models.KindVideo:
		c := tgbotapi.NewVideo(msg.ChatID, tgbotapi.FileID(msg.FileID))
		c.Caption = msg.Caption
		c.ReplyToMessageID = msg.ReplyTo
		chattable = c
	case models.KindVoice:
		c := tgbotapi.NewVoice(msg.ChatID, tgbotapi.FileID(msg.FileID))
		c.Caption = msg.Caption
		c.ReplyToMessageID = msg.ReplyTo
		chattable = c
	default:
		c := tgbotapi.NewMessage(msg.ChatID, msg.Text)
		c.ReplyToMessageID = msg.ReplyTo
		if len(msg.Buttons) > 0 {
			rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
			for _, btn := range msg.Buttons {
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data),
				))
			}
			c.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
		}
		chattable = c
	}

	sent, err := t.api.Send(chattable)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}

	return sent.MessageID, nil
}

// AnswerCallback acknowledges an inline-keyboard press.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// ClearHistory deletes recent messages in the chat, newest first,
// ignoring per-message failures. Many ids will not exist or be too old
// to delete; that is expected.
func (t *Telegram) ClearHistory(ctx context.Context, chatID int64, lastMessageID int) error {
	for id := lastMessageID; id > 0 && id > lastMessageID-clearHistorySweep; id-- {
		if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, id)); err != nil {
			t.logger.Debug("delete message failed", "chat_id", chatID, "message_id", id, "error", err)
		}
	}
	return nil
}

// Run long-polls for updates and dispatches them to the handlers until
// the context is cancelled.
func (t *Telegram) Run(ctx context.Context, b *Bot) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := t.api.GetUpdatesChan(u)
	t.logger.Info("long polling started")

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.dispatch(ctx, b, update)
		}
	}
}

// dispatch converts one platform update into a handler call.
func (t *Telegram) dispatch(ctx context.Context, b *Bot, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil || cb.Message == nil {
			return
		}
		b.HandleCallback(ctx, Callback{
			ID:         cb.ID,
			SenderID:   cb.From.ID,
			SenderName: cb.From.FirstName,
			ChatID:     cb.Message.Chat.ID,
			MessageID:  cb.Message.MessageID,
			Data:       cb.Data,
		})
	case update.Message != nil:
		if update.Message.From == nil || update.Message.Chat == nil {
			return
		}
		b.HandleMessage(ctx, incomingFromMessage(update.Message))
	}
}

// incomingFromMessage normalizes a platform message into the
// transport-agnostic Incoming shape.
func incomingFromMessage(msg *tgbotapi.Message) Incoming {
	in := Incoming{
		ChatID:     msg.Chat.ID,
		ChatType:   msg.Chat.Type,
		SenderID:   msg.From.ID,
		SenderName: msg.From.FirstName,
		MessageID:  msg.MessageID,
		Kind:       models.KindText,
		Text:       msg.Text,
	}

	if msg.ReplyToMessage != nil {
		in.ReplyToID = msg.ReplyToMessage.MessageID
	}
	if msg.IsCommand() {
		in.Command = msg.Command()
		in.CommandArgs = msg.CommandArguments()
	}

	switch {
	case len(msg.Photo) > 0:
		// Highest resolution is last.
		in.Kind = models.KindPhoto
		in.FileID = msg.Photo[len(msg.Photo)-1].FileID
		in.Text = msg.Caption
	case msg.Document != nil:
		in.Kind = models.KindDocument
		in.FileID = msg.Document.FileID
		in.Text = msg.Caption
	case msg.Video != nil:
		in.Kind = models.KindVideo
		in.FileID = msg.Video.FileID
		in.Text = msg.Caption
	case msg.Voice != nil:
		in.Kind = models.KindVoice
		in.FileID = msg.Voice.FileID
		in.Text = msg.Caption
	}

	return in
}
