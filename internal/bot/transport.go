package bot

import (
	"context"

	"relaygate/internal/models"
)

// Button is one inline-keyboard choice.
type Button struct {
	Label string
	Data  string
}

// Outgoing is a message handed to the transport for delivery. Text
// messages carry Text; media messages carry the platform file id plus
// an optional caption.
type Outgoing struct {
	ChatID  int64
	ReplyTo int // message id to reply to, 0 for none
	Kind    models.ContentKind
	Text    string
	FileID  string
	Caption string
	Buttons []Button // rendered one per row
}

// Transport is the messaging collaborator. Delivery is best-effort:
// failures are recoverable errors to log and report, never a reason to
// lose committed session state.
type Transport interface {
	// Send delivers a message and returns its durable message id.
	Send(ctx context.Context, msg Outgoing) (int, error)

	// AnswerCallback acknowledges an inline-keyboard callback so the
	// client stops showing a spinner.
	AnswerCallback(ctx context.Context, callbackID string) error

	// ClearHistory asks the platform to wipe the conversation,
	// best effort. There is no reliable success signal; callers must
	// treat it as fire-and-forget.
	ClearHistory(ctx context.Context, chatID int64, lastMessageID int) error
}

// Incoming is a received message, already normalized from the platform
// update format.
type Incoming struct {
	ChatID      int64
	ChatType    string // "private", "group" or "supergroup"
	SenderID    int64
	SenderName  string
	MessageID   int
	ReplyToID   int // message id this replies to, 0 for none
	Command     string
	CommandArgs string
	Kind        models.ContentKind
	Text        string // body for text, caption for media
	FileID      string
}

// Callback is an inline-keyboard button press.
type Callback struct {
	ID         string
	SenderID   int64
	SenderName string
	ChatID     int64
	MessageID  int
	Data       string
}
