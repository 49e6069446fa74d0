package models

import "time"

// SessionClass selects which inactivity timeout applies to a session.
type SessionClass string

const (
	// SessionStandard is the short-lived tier (15 minutes by default).
	SessionStandard SessionClass = "standard"
	// SessionExtended is the long-lived tier (24 hours by default).
	SessionExtended SessionClass = "extended"
)

// Valid reports whether c is one of the known session classes.
func (c SessionClass) Valid() bool {
	return c == SessionStandard || c == SessionExtended
}

// UserSession represents an authenticated relay user.
//
// The JSON tags follow the persisted state document layout, so the struct
// can be embedded in the document as-is. UserID is the map key in the
// document and therefore not serialized inside the record.
type UserSession struct {
	UserID          string       `json:"-"`
	Name            string       `json:"name"`
	AuthenticatedAt time.Time    `json:"authenticated_at"`
	LastActivity    time.Time    `json:"last_activity"`
	Class           SessionClass `json:"session_type"`
	TimeoutSeconds  int64        `json:"session_timeout"`
}

// Timeout returns the inactivity timeout for this session.
func (s *UserSession) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Expired reports whether the session is past its inactivity timeout at
// the given instant. A session is valid up to and including the exact
// timeout boundary.
func (s *UserSession) Expired(now time.Time) bool {
	return now.Sub(s.LastActivity) > s.Timeout()
}

// State is the single persisted document owned by the session store:
// authenticated users keyed by their opaque string id, the block list,
// the active challenge, and the learned backup-group id.
//
// Blocked users are serialized as JSON numbers; everywhere in process a
// user id is an opaque string key.
type State struct {
	AuthenticatedUsers map[string]UserSession `json:"authenticated_users"`
	BlockedUsers       []int64                `json:"blocked_users"`
	SecurityQuestions  map[string]string      `json:"security_questions"`
	BackupGroupID      int64                  `json:"backup_group_id,omitempty"`
}

// NewState returns an empty state document with allocated maps.
func NewState() *State {
	return &State{
		AuthenticatedUsers: make(map[string]UserSession),
		BlockedUsers:       []int64{},
		SecurityQuestions:  make(map[string]string),
	}
}
