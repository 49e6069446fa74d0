package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"relaygate/internal/session"
)

const helpText = `Available commands:
/start - Start the bot and authenticate
/help - Show this help message
/status - Check your authentication status
/logout - End your session

Just send any message and it will be relayed to the admin.`

const adminHelpText = helpText + `

Admin commands:
/setupgroup - Set the current group as backup mirror
/setquestion <prompt> | <answer> - Replace the challenge
/block, /unblock, /terminate - Manage users (id or reply)
/whois - Show provenance of a relayed message (reply)
/history [n] - Show recent relay events`

// handleCommand dispatches a slash command.
func (b *Bot) handleCommand(ctx context.Context, in Incoming) {
	switch in.Command {
	case "start":
		b.cmdStart(ctx, in)
	case "help":
		b.cmdHelp(ctx, in)
	case "status":
		b.cmdStatus(ctx, in)
	case "logout":
		b.cmdLogout(ctx, in)
	case "setupgroup":
		b.cmdSetupGroup(ctx, in)
	case "setquestion":
		b.cmdSetQuestion(ctx, in)
	case "block":
		b.cmdModerate(ctx, in, "block")
	case "unblock":
		b.cmdModerate(ctx, in, "unblock")
	case "terminate":
		b.cmdModerate(ctx, in, "terminate")
	case "whois":
		b.cmdWhois(ctx, in)
	case "history":
		b.cmdHistory(ctx, in)
	default:
		if in.ChatType == "private" {
			b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Unknown command. Use /help."})
		}
	}
}

// cmdStart begins the challenge flow, or greets already-valid users.
func (b *Bot) cmdStart(ctx context.Context, in Incoming) {
	if in.ChatType != "private" {
		return
	}

	if in.SenderID == b.adminID {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Welcome back, Admin! You're always authenticated."})
		return
	}

	userKey := strconv.FormatInt(in.SenderID, 10)
	if b.sessions.IsValid(userKey) {
		if err := b.sessions.Touch(ctx, userKey); err == nil {
			b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "You're already authenticated. Just send a message to relay it."})
			return
		}
	}

	challenge, err := b.sessions.BeginChallenge(userKey)
	if err != nil {
		if errors.Is(err, session.ErrBlocked) {
			b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgBlocked})
			return
		}
		b.logger.Error("failed to begin challenge", "user_id", userKey, "error", err)
		return
	}

	promptID := b.send(ctx, Outgoing{
		ChatID: in.ChatID,
		Text: "Welcome to the relay bot. Please authenticate yourself.\n\n" +
			"Reply to this message with the answer:\n\n" + challenge.Prompt,
	})
	if promptID != 0 {
		b.sessions.RegisterPrompt(userKey, promptID)
	}
}

func (b *Bot) cmdHelp(ctx context.Context, in Incoming) {
	text := helpText
	if in.SenderID == b.adminID {
		text = adminHelpText
	}
	b.send(ctx, Outgoing{ChatID: in.ChatID, Text: text})
}

// cmdStatus reports authentication state. A status check counts as
// activity and extends the session.
func (b *Bot) cmdStatus(ctx context.Context, in Incoming) {
	if in.SenderID == b.adminID {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "You are the admin. Always authenticated."})
		return
	}

	userKey := strconv.FormatInt(in.SenderID, 10)
	if err := b.sessions.Touch(ctx, userKey); err != nil {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgNotAuthenticated})
		return
	}

	sess, ok := b.sessions.Session(userKey)
	if !ok {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgNotAuthenticated})
		return
	}
	b.send(ctx, Outgoing{
		ChatID: in.ChatID,
		Text: fmt.Sprintf("You are authenticated (%s session, expires after %s of inactivity).",
			sess.Class, formatDuration(sess.Timeout())),
	})
}

// cmdLogout ends the caller's own session and fires a best-effort
// history clear at the transport.
func (b *Bot) cmdLogout(ctx context.Context, in Incoming) {
	if in.SenderID == b.adminID {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Admin sessions never expire."})
		return
	}

	userKey := strconv.FormatInt(in.SenderID, 10)
	if err := b.sessions.Terminate(ctx, userKey); err != nil {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "You don't have an active session."})
		return
	}

	b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Session ended. Use /start to authenticate again."})

	// No reliable success signal exists for this; ignore the outcome.
	if err := b.transport.ClearHistory(ctx, in.ChatID, in.MessageID); err != nil {
		b.logger.Debug("history clear attempt failed", "chat_id", in.ChatID, "error", err)
	}
}

// cmdSetupGroup learns the backup-group id from the chat the command
// was issued in and persists it through the state document.
func (b *Bot) cmdSetupGroup(ctx context.Context, in Incoming) {
	if in.SenderID != b.adminID {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Only the admin can set up the backup group."})
		return
	}
	if in.ChatType != "group" && in.ChatType != "supergroup" {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "This command should only be used in a group chat."})
		return
	}

	b.sessions.SetBackupGroup(ctx, in.ChatID)
	b.logger.Info("backup group configured", "chat_id", in.ChatID)
	b.send(ctx, Outgoing{
		ChatID: in.ChatID,
		Text:   fmt.Sprintf("Backup group configured (ID: %d). Relayed messages will be mirrored here.", in.ChatID),
	})
}

// cmdSetQuestion replaces the active challenge:
// /setquestion <prompt> | <answer>
func (b *Bot) cmdSetQuestion(ctx context.Context, in Incoming) {
	if in.SenderID != b.adminID {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Only the admin can change the security question."})
		return
	}

	prompt, answer, ok := strings.Cut(in.CommandArgs, "|")
	if !ok {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Usage: /setquestion <prompt> | <answer>"})
		return
	}

	if err := b.sessions.SetChallenge(ctx, prompt, answer); err != nil {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Usage: /setquestion <prompt> | <answer>"})
		return
	}

	b.logger.Info("challenge replaced")
	b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Security question updated. Pending authentications were reset."})
}

// cmdModerate implements /block, /unblock and /terminate. The target is
// a numeric id argument, or the sender of the relayed message being
// replied to.
func (b *Bot) cmdModerate(ctx context.Context, in Incoming, action string) {
	if in.SenderID != b.adminID {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Only the admin can manage users."})
		return
	}

	userKey, err := b.resolveTarget(ctx, in)
	if err != nil {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: fmt.Sprintf("Usage: /%s <user id>, or reply to a relayed message.", action)})
		return
	}

	switch action {
	case "block":
		if err := b.sessions.Block(ctx, userKey); err != nil {
			b.logger.Error("block failed", "user_id", userKey, "error", err)
			return
		}
		b.logger.Info("user blocked", "user_id", userKey)
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: fmt.Sprintf("User %s is blocked and their session is terminated.", userKey)})
	case "unblock":
		if err := b.sessions.Unblock(ctx, userKey); err != nil {
			b.logger.Error("unblock failed", "user_id", userKey, "error", err)
			return
		}
		b.logger.Info("user unblocked", "user_id", userKey)
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: fmt.Sprintf("User %s is unblocked.", userKey)})
	case "terminate":
		if err := b.sessions.Terminate(ctx, userKey); err != nil {
			b.send(ctx, Outgoing{ChatID: in.ChatID, Text: fmt.Sprintf("User %s has no active session.", userKey)})
			return
		}
		b.logger.Info("session terminated by admin", "user_id", userKey)
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: fmt.Sprintf("Session of user %s is terminated.", userKey)})
	}
}

// resolveTarget extracts the target user key from a command: an
// explicit numeric argument wins, otherwise the correlator link of the
// replied-to message.
func (b *Bot) resolveTarget(ctx context.Context, in Incoming) (string, error) {
	arg := strings.TrimSpace(in.CommandArgs)
	if arg != "" {
		if _, err := strconv.ParseInt(arg, 10, 64); err != nil {
			return "", fmt.Errorf("invalid user id %q", arg)
		}
		return arg, nil
	}

	if in.ReplyToID == 0 {
		return "", errors.New("no target given")
	}

	link, err := b.links.Resolve(ctx, in.ReplyToID)
	if err != nil {
		return "", err
	}
	return link.SenderID, nil
}

// cmdWhois shows the provenance of a relayed message.
func (b *Bot) cmdWhois(ctx context.Context, in Incoming) {
	if in.SenderID != b.adminID {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Only the admin can inspect messages."})
		return
	}
	if in.ReplyToID == 0 {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Reply to a relayed message with /whois."})
		return
	}

	link, err := b.links.Resolve(ctx, in.ReplyToID)
	if err != nil {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: msgLinkNotFound})
		return
	}

	text := fmt.Sprintf("From: %s\nID: %s\nContent: %s", link.SenderName, link.SenderID, link.Kind)
	if link.GroupMessageID != 0 {
		text += fmt.Sprintf("\nGroup copy: message %d", link.GroupMessageID)
	}
	b.send(ctx, Outgoing{ChatID: in.ChatID, Text: text})
}

// cmdHistory lists recent relay events from the archive.
func (b *Bot) cmdHistory(ctx context.Context, in Incoming) {
	if in.SenderID != b.adminID {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Only the admin can browse history."})
		return
	}
	if b.archive == nil {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "No archive is configured."})
		return
	}

	limit := 10
	if arg := strings.TrimSpace(in.CommandArgs); arg != "" {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	events, err := b.archive.ListRecent(ctx, limit)
	if err != nil {
		b.logger.Error("failed to list relay history", "error", err)
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "Could not read the archive."})
		return
	}
	if len(events) == 0 {
		b.send(ctx, Outgoing{ChatID: in.ChatID, Text: "No relayed messages yet."})
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %d relay events:\n", len(events))
	for _, ev := range events {
		fmt.Fprintf(&sb, "\n%s  %s (%s) [%s]", ev.CreatedAt.Format("2006-01-02 15:04"), ev.SenderName, ev.SenderID, ev.Kind)
		if ev.Preview != "" {
			fmt.Fprintf(&sb, "\n  %s", ev.Preview)
		}
	}
	b.send(ctx, Outgoing{ChatID: in.ChatID, Text: sb.String()})
}
