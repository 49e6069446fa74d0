package models

import "time"

// ContentKind classifies what a relayed message carried.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindPhoto    ContentKind = "photo"
	KindDocument ContentKind = "document"
	KindVideo    ContentKind = "video"
	KindVoice    ContentKind = "voice"
)

// MessageLink ties a message delivered to the admin back to its
// backup-group mirror and the original sender. The admin-facing copy
// carries no sender metadata inline; this link is the only way back.
type MessageLink struct {
	AdminMessageID int         `json:"-"`
	GroupMessageID int         `json:"group_message_id"`
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	Kind           ContentKind `json:"kind"`
}

// RelayEvent is one archived relay: who sent what, when, and where the
// forwarded copies ended up.
type RelayEvent struct {
	ID             string      `json:"id"`
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	Kind           ContentKind `json:"kind"`
	AdminMessageID int         `json:"admin_message_id"`
	GroupMessageID int         `json:"group_message_id"`
	Preview        string      `json:"preview"`
	CreatedAt      time.Time   `json:"created_at"`
}
