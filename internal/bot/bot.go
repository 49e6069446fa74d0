// Package bot contains the relay logic: inbound messages are gated by
// the session store, forwarded to the administrator, mirrored to the
// backup group, and linked through the correlator so admin actions can
// be routed back to the original sender.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"relaygate/internal/archive"
	"relaygate/internal/correlator"
	"relaygate/internal/models"
	"relaygate/internal/session"
)

const (
	msgNotAuthenticated = "You're not authenticated. Use /start to authenticate."
	msgBlocked          = "You are not allowed to use this bot."
	msgSessionExpired   = "Your session has expired. Use /start to authenticate again."
	msgChallengeFailed  = "Authentication failed. Use /start to try again."
	msgReplyToPrompt    = "Please answer by replying directly to the question message."
	msgLinkNotFound     = "Could not find details for that message."
	msgRelayed          = "Relayed to the admin."
	msgDeliveryFailed   = "Your message could not be delivered right now. Please try again."

	callbackClassPrefix = "class:"
	previewLimit        = 120
)

// Bot wires the session store, correlator, archive and transport
// together. Handlers are synchronous: one inbound event is fully
// processed (store read, mutation, persistence, outbound sends) before
// the next is dispatched.
type Bot struct {
	logger    *slog.Logger
	transport Transport
	sessions  *session.Store
	links     correlator.Store
	archive   archive.Store

	adminID  int64
	adminKey string
}

// New constructs a Bot. archive may be nil; /history then reports that
// no archive is configured.
func New(transport Transport, sessions *session.Store, links correlator.Store, arc archive.Store, adminID int64, logger *slog.Logger) *Bot {
	return &Bot{
		logger:    logger,
		transport: transport,
		sessions:  sessions,
		links:     links,
		archive:   arc,
		adminID:   adminID,
		adminKey:  strconv.FormatInt(adminID, 10),
	}
}

// HandleMessage processes one inbound message.
func (b *Bot) HandleMessage(ctx context.Context, in Incoming) {
	if in.Command != "" {
		b.handleCommand(ctx, in)
		return
	}

	// Non-command traffic in group chats is never relayed.
	if in.ChatType != "private" {
		return
	}

	if in.SenderID == b.adminID {
		b.handleAdminMessage(ctx, in)
		return
	}

	b.handleUserMessage(ctx, in)
}

// HandleCallback processes an inline-keyboard press; the only callbacks
// the bot issues are the session-class choices after a solved
// challenge.
func (b *Bot) HandleCallback(ctx context.Context, cb Callback) {
	if err := b.transport.AnswerCallback(ctx, cb.ID); err != nil {
		b.logger.Debug("failed to answer callback", "error", err)
	}

	class, ok := strings.CutPrefix(cb.Data, callbackClassPrefix)
	if !ok {
		return
	}

	userKey := strconv.FormatInt(cb.SenderID, 10)
	sess, err := b.sessions.FinalizeSession(ctx, userKey, cb.SenderName, models.SessionClass(class))
	if err != nil {
		b.send(ctx, Outgoing{ChatID: cb.ChatID, Text: msgNotAuthenticated})
		return
	}

	b.logger.Info("session established",
		"user_id", userKey,
		"name", sess.Name,
		"class", string(sess.Class),
	)
	b.send(ctx, Outgoing{
		ChatID: cb.ChatID,
		Text: fmt.Sprintf("Authentication successful. Your %s session expires after %s of inactivity.",
			sess.Class, formatDuration(sess.Timeout())),
	})
}

// handleAdminMessage routes admin input. A reply to a relayed message
// is delivered back to the original sender via the correlator link;
// anything else is just acknowledged.
func (b *Bot) handleAdminMessage(ctx context.Context, in Incoming) {
	if in.ReplyToID == 0 {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Message received. Reply to a relayed message to answer its sender."})
		return
	}

	link, err := b.links.Resolve(ctx, in.ReplyToID)
	if err != nil {
		if errors.Is(err, correlator.ErrLinkNotFound) {
			b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgLinkNotFound})
			return
		}
		b.logger.Error("failed to resolve message link", "admin_message_id", in.ReplyToID, "error", err)
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgLinkNotFound})
		return
	}

	if in.Kind != models.KindText {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Only text replies can be routed back to the sender."})
		return
	}

	target, err := strconv.ParseInt(link.SenderID, 10, 64)
	if err != nil {
		b.logger.Error("message link has malformed sender id", "sender_id", link.SenderID)
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgLinkNotFound})
		return
	}

	if _, err := b.transport.Send(ctx, Outgoing{ChatID: target, Text: in.Text}); err != nil {
		b.reportDeliveryFailure(ctx, "reply to sender", err)
		return
	}
	b.send(ctx, Outgoing{ChatID: in.ChatID, Text: fmt.Sprintf("Delivered to %s.", link.SenderName)})
}

// handleUserMessage gates a non-admin message behind the session store:
// valid sessions relay, everyone else is in (or pushed into) the
// challenge flow.
func (b *Bot) handleUserMessage(ctx context.Context, in Incoming) {
	userKey := strconv.FormatInt(in.SenderID, 10)

	if b.sessions.IsBlocked(userKey) {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgBlocked})
		return
	}

	if b.sessions.IsValid(userKey) {
		b.relay(ctx, in, userKey)
		return
	}

	if in.Kind != models.KindText {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgNotAuthenticated})
		return
	}

	err := b.sessions.SubmitAnswer(userKey, in.Text, in.ReplyToID)
	switch {
	case err == nil:
		b.send(ctx, Outgoing{
			ChatID: in.ChatID,
			Text:   "Correct. Choose your session type:",
			Buttons: []Button{
				{Label: "Standard (15 min)", Data: callbackClassPrefix + string(models.SessionStandard)},
				{Label: "Extended (24 h)", Data: callbackClassPrefix + string(models.SessionExtended)},
			},
		})
	case errors.Is(err, session.ErrNotAReply):
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgReplyToPrompt})
	case errors.Is(err, session.ErrChallengeMismatch):
		b.logger.Info("challenge failed", "user_id", userKey)
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgChallengeFailed})
	default:
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgNotAuthenticated})
	}
}

// relay forwards an authorized message: plain copy to the admin, a
// mirror with sender metadata to the backup group, then the correlator
// link and archive record. The session is touched first, so the
// activity counts even if delivery fails afterwards.
func (b *Bot) relay(ctx context.Context, in Incoming, userKey string) {
	if err := b.sessions.Touch(ctx, userKey); err != nil {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgSessionExpired})
		return
	}

	// Admin-facing copy: content only, no sender metadata inline.
	adminOut := Outgoing{ChatID: b.adminID, Kind: in.Kind, FileID: in.FileID}
	if in.Kind == models.KindText {
		adminOut.Text = in.Text
	} else {
		adminOut.Caption = in.Text
	}

	adminMsgID, err := b.transport.Send(ctx, adminOut)
	if err != nil {
		b.logger.Error("failed to forward message to admin", "user_id", userKey, "error", err)
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgDeliveryFailed})
		return
	}

	// Group mirror carries the provenance header.
	var groupMsgID int
	if groupID := b.sessions.BackupGroup(); groupID != 0 {
		header := fmt.Sprintf("From %s (ID: %s)", in.SenderName, userKey)
		groupOut := Outgoing{ChatID: groupID, Kind: in.Kind, FileID: in.FileID}
		if in.Kind == models.KindText {
			groupOut.Text = header + "\n\n" + in.Text
		} else {
			groupOut.Caption = header
			if in.Text != "" {
				groupOut.Caption += "\n\n" + in.Text
			}
		}

		groupMsgID, err = b.transport.Send(ctx, groupOut)
		if err != nil {
			groupMsgID = 0
			b.reportDeliveryFailure(ctx, "backup-group mirror", err)
		}
	}

	link := &models.MessageLink{
		AdminMessageID: adminMsgID,
		GroupMessageID: groupMsgID,
		SenderID:       userKey,
		SenderName:     in.SenderName,
		Kind:           in.Kind,
	}
	if err := b.links.Record(ctx, link); err != nil {
		b.logger.Warn("failed to record message link", "admin_message_id", adminMsgID, "error", err)
	}

	if b.archive != nil {
		event := &models.RelayEvent{
			ID:             uuid.New().String(),
			SenderID:       userKey,
			SenderName:     in.SenderName,
			Kind:           in.Kind,
			AdminMessageID: adminMsgID,
			GroupMessageID: groupMsgID,
			Preview:        preview(in.Text),
			CreatedAt:      time.Now().UTC(),
		}
		if err := b.archive.RecordRelay(ctx, event); err != nil {
			b.logger.Warn("failed to archive relay event", "error", err)
		}
	}

	b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgRelayed})
}

// reportDeliveryFailure logs a transport failure and notifies the
// admin. Never propagated: delivery problems must not crash the bot or
// roll back session state.
func (b *Bot) reportDeliveryFailure(ctx context.Context, what string, err error) {
	b.logger.Error("delivery failed", "target", what, "error", err)
	if _, nerr := b.transport.Send(ctx, Outgoing{
		ChatID: b.adminID,
		Text:   fmt.Sprintf("Delivery failed (%s): %v", what, err),
	}); nerr != nil {
		b.logger.Error("failed to notify admin about delivery failure", "error", nerr)
	}
}

// send delivers a message, logging a failure instead of returning it.
// Used for acknowledgements and prompts where the caller has no better
// recovery than logging anyway.
func (b *Bot) send(ctx context.Context, msg Outgoing) int {
	id, err := b.transport.Send(ctx, msg)
	if err != nil {
		b.logger.Error("failed to send message", "chat_id", msg.ChatID, "error", err)
		return 0
	}
	return id
}

// preview truncates relayed text for the archive record.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "…"
}

// formatDuration renders a timeout in the shortest natural unit.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return d.String()
	}
}
