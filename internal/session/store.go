package session

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaygate/internal/models"
	"relaygate/internal/storage"
)

// Default inactivity timeouts for the two session classes.
const (
	DefaultStandardTimeout = 15 * time.Minute
	DefaultExtendedTimeout = 1440 * time.Minute
)

// Default challenge installed when no persisted state exists yet.
// Operators are expected to replace it immediately via /setquestion or
// the set-secret command.
const (
	DefaultPrompt = "What's your secret phrase?"
	DefaultAnswer = "your_secret_answer_here"
)

// Challenge is the single active prompt/answer pair gating
// authentication. Setting a new one discards the old.
type Challenge struct {
	Prompt string
	Answer string
}

// Config configures the session store.
type Config struct {
	// AdminID is the distinguished administrator identity. It is always
	// valid, unconditionally.
	AdminID string
	// StandardTimeout is the inactivity timeout for standard sessions.
	// Zero means 15 minutes.
	StandardTimeout time.Duration
	// ExtendedTimeout is the inactivity timeout for extended sessions.
	// Zero means 1440 minutes.
	ExtendedTimeout time.Duration
}

// pendingAuth tracks an authentication flow that has started but not
// produced a session yet. Never persisted: a restart simply restarts
// the flow.
type pendingAuth struct {
	promptMessageID int
	solved          bool
}

// Store owns the authenticated-user map, the block list and the active
// challenge. It decides whether an identity may currently relay
// messages and persists itself on every mutation.
//
// All mutations are serialized behind one mutex; the persistence write
// happens before the lock is released so concurrent handlers never race
// on the temp-file-replace step. Expiry is lazy: expired sessions are
// invisible to IsValid and removed on the next mutating access, never
// swept by a background timer.
type Store struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	storage storage.StateStorage

	adminID         string
	standardTimeout time.Duration
	extendedTimeout time.Duration

	sessions      map[string]*models.UserSession
	blocked       map[string]struct{}
	challenge     Challenge
	backupGroupID int64
	pending       map[string]*pendingAuth

	now func() time.Time // overridable in tests
}

// New creates a session store and loads persisted state. A load failure
// is logged and falls back to an empty store with the default
// challenge; it never prevents startup.
func New(ctx context.Context, st storage.StateStorage, cfg Config, logger *slog.Logger) *Store {
	if cfg.StandardTimeout <= 0 {
		cfg.StandardTimeout = DefaultStandardTimeout
	}
	if cfg.ExtendedTimeout <= 0 {
		cfg.ExtendedTimeout = DefaultExtendedTimeout
	}

	s := &Store{
		logger:          logger,
		storage:         st,
		adminID:         cfg.AdminID,
		standardTimeout: cfg.StandardTimeout,
		extendedTimeout: cfg.ExtendedTimeout,
		sessions:        make(map[string]*models.UserSession),
		blocked:         make(map[string]struct{}),
		challenge:       Challenge{Prompt: DefaultPrompt, Answer: DefaultAnswer},
		pending:         make(map[string]*pendingAuth),
		now:             time.Now,
	}
	s.load(ctx)

	return s
}

// load restores sessions, block list, challenge and backup-group id
// from storage. Best effort only.
func (s *Store) load(ctx context.Context) {
	if s.storage == nil {
		return
	}

	state, err := s.storage.Load(ctx)
	if err != nil {
		if err != storage.ErrStateNotFound {
			s.logger.Warn("failed to load persisted state, starting empty", "error", err)
		}
		return
	}

	for id, sess := range state.AuthenticatedUsers {
		sess := sess
		sess.UserID = id
		s.sessions[id] = &sess
	}
	for _, id := range state.BlockedUsers {
		s.blocked[strconv.FormatInt(id, 10)] = struct{}{}
	}
	for prompt, answer := range state.SecurityQuestions {
		s.challenge = Challenge{Prompt: prompt, Answer: answer}
		break // at most one active challenge
	}
	s.backupGroupID = state.BackupGroupID

	s.logger.Info("restored persisted state",
		"sessions", len(s.sessions),
		"blocked", len(s.blocked),
	)
}

// IsValid reports whether the identity may currently relay messages.
// The administrator is always valid. For anyone else: a session must
// exist and its last activity must be within the class timeout. No side
// effect; expired entries are removed lazily by the next mutation.
func (s *Store) IsValid(userID string) bool {
	if userID == s.adminID {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}

	return !sess.Expired(s.now())
}

// IsBlocked reports whether the identity is on the block list.
func (s *Store) IsBlocked(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blocked[userID]
	return ok
}

// Session returns a copy of the user's session if one exists and is not
// expired.
func (s *Store) Session(userID string) (models.UserSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok || sess.Expired(s.now()) {
		return models.UserSession{}, false
	}

	return *sess, true
}

// BeginChallenge starts (or restarts) the authentication flow for the
// user and returns the active challenge. Blocked users are rejected
// before the challenge is even offered.
func (s *Store) BeginChallenge(userID string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocked[userID]; ok {
		return Challenge{}, ErrBlocked
	}

	s.pending[userID] = &pendingAuth{}

	return s.challenge, nil
}

// RegisterPrompt records the message id the challenge prompt was
// delivered as. SubmitAnswer only accepts direct replies to this
// message, so unrelated input cannot be misread as an answer.
func (s *Store) RegisterPrompt(userID string, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[userID]; ok {
		p.promptMessageID = messageID
	}
}

// SubmitAnswer checks a challenge answer. The message must be a direct
// reply to the recorded prompt (ErrNotAReply otherwise, retryable).
// Comparison is case-insensitive. A wrong answer ends the attempt
// (ErrChallengeMismatch); a correct one advances the flow to
// session-class selection, it does not create a session yet.
func (s *Store) SubmitAnswer(userID, text string, replyToID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	if !ok {
		return ErrNoChallenge
	}

	if p.promptMessageID == 0 || replyToID != p.promptMessageID {
		return ErrNotAReply
	}

	if !strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(s.challenge.Answer)) {
		delete(s.pending, userID)
		return ErrChallengeMismatch
	}

	p.solved = true

	return nil
}

// FinalizeSession creates (or overwrites) the session record after the
// user solved the challenge and picked a class, persists it and returns
// a copy for notification purposes.
func (s *Store) FinalizeSession(ctx context.Context, userID, displayName string, class models.SessionClass) (models.UserSession, error) {
	if !class.Valid() {
		return models.UserSession{}, ErrNoChallenge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	if !ok || !p.solved {
		return models.UserSession{}, ErrNoChallenge
	}
	delete(s.pending, userID)

	now := s.now()
	sess := &models.UserSession{
		UserID:          userID,
		Name:            displayName,
		AuthenticatedAt: now,
		LastActivity:    now,
		Class:           class,
		TimeoutSeconds:  int64(s.timeoutFor(class) / time.Second),
	}
	s.sessions[userID] = sess
	s.persistLocked(ctx)

	return *sess, nil
}

// Touch refreshes the session's last-activity timestamp and persists.
// Must be called on every accepted relay and on explicit status checks:
// activity, not wall-clock since authentication, extends a session.
// Returns ErrSessionExpired (and removes the record) if the timeout has
// already elapsed.
func (s *Store) Touch(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNotAuthenticated
	}

	if sess.Expired(s.now()) {
		delete(s.sessions, userID)
		s.persistLocked(ctx)
		return ErrSessionExpired
	}

	sess.LastActivity = s.now()
	s.persistLocked(ctx)

	return nil
}

// Terminate removes the user's session.
func (s *Store) Terminate(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[userID]; !ok {
		return ErrNotAuthenticated
	}

	delete(s.sessions, userID)
	s.persistLocked(ctx)

	return nil
}

// Block adds the user to the block list and force-terminates any
// existing session or in-flight challenge.
func (s *Store) Block(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocked[userID] = struct{}{}
	delete(s.sessions, userID)
	delete(s.pending, userID)
	s.persistLocked(ctx)

	return nil
}

// Unblock removes the user from the block list.
func (s *Store) Unblock(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocked, userID)
	s.persistLocked(ctx)

	return nil
}

// SetChallenge replaces the active challenge. All in-flight
// authentication attempts are discarded: an answer to the old prompt
// must not pass against the new one.
func (s *Store) SetChallenge(ctx context.Context, prompt, answer string) error {
	prompt = strings.TrimSpace(prompt)
	answer = strings.TrimSpace(answer)
	if prompt == "" || answer == "" {
		return ErrNoChallenge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenge = Challenge{Prompt: prompt, Answer: answer}
	s.pending = make(map[string]*pendingAuth)
	s.persistLocked(ctx)

	return nil
}

// ChallengePrompt returns the active challenge prompt.
func (s *Store) ChallengePrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.challenge.Prompt
}

// SetBackupGroup persists the learned backup-group chat id into the
// state document the store already owns.
func (s *Store) SetBackupGroup(ctx context.Context, chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.backupGroupID = chatID
	s.persistLocked(ctx)
}

// BackupGroup returns the backup-group chat id, or zero if none is
// configured.
func (s *Store) BackupGroup() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.backupGroupID
}

// timeoutFor maps a session class to its configured timeout.
func (s *Store) timeoutFor(class models.SessionClass) time.Duration {
	if class == models.SessionExtended {
		return s.extendedTimeout
	}
	return s.standardTimeout
}

// persistLocked serializes the full state and hands it to storage.
// Persistence failures are logged and swallowed: the in-memory state
// remains authoritative for the current process lifetime.
func (s *Store) persistLocked(ctx context.Context) {
	if s.storage == nil {
		return
	}

	state := models.NewState()
	for id, sess := range s.sessions {
		state.AuthenticatedUsers[id] = *sess
	}
	for id := range s.blocked {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			// Cannot happen with platform-issued ids; skip rather than
			// corrupt the document.
			s.logger.Warn("skipping non-numeric blocked id", "user_id", id)
			continue
		}
		state.BlockedUsers = append(state.BlockedUsers, n)
	}
	sort.Slice(state.BlockedUsers, func(i, j int) bool {
		return state.BlockedUsers[i] < state.BlockedUsers[j]
	})
	state.SecurityQuestions[s.challenge.Prompt] = s.challenge.Answer
	state.BackupGroupID = s.backupGroupID

	if err := s.storage.Save(ctx, state); err != nil {
		s.logger.Error("failed to persist state", "error", err)
	}
}
