package session

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaygate/internal/models"
	"relaygate/internal/storage"
)

const adminID = "42"

// mockStateStorage implements storage.StateStorage for testing
type mockStateStorage struct {
	state   *models.State
	loadErr error
	saveErr error
	saves   int
}

func (m *mockStateStorage) Load(ctx context.Context) (*models.State, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.state == nil {
		return nil, storage.ErrStateNotFound
	}
	return m.state, nil
}

func (m *mockStateStorage) Save(ctx context.Context, state *models.State) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = state
	return nil
}

func newTestStore(t *testing.T) (*Store, *mockStateStorage) {
	t.Helper()

	mock := &mockStateStorage{}
	s := New(context.Background(), mock, Config{AdminID: adminID}, slog.Default())

	return s, mock
}

// authenticate walks a user through the full flow and returns the
// created session.
func authenticate(t *testing.T, s *Store, userID string, class models.SessionClass) models.UserSession {
	t.Helper()

	_, err := s.BeginChallenge(userID)
	require.NoError(t, err)
	s.RegisterPrompt(userID, 10)
	require.NoError(t, s.SubmitAnswer(userID, DefaultAnswer, 10))

	sess, err := s.FinalizeSession(context.Background(), userID, "Alice", class)
	require.NoError(t, err)

	return sess
}

func TestIsValid_AdminAlwaysValid(t *testing.T) {
	s, _ := newTestStore(t)

	// Even an empty store accepts the admin.
	assert.True(t, s.IsValid(adminID))

	// Blocking the admin id does not change that.
	require.NoError(t, s.Block(context.Background(), adminID))
	assert.True(t, s.IsValid(adminID))
}

func TestAuthFlow_Success(t *testing.T) {
	s, _ := newTestStore(t)

	sess := authenticate(t, s, "100", models.SessionStandard)

	assert.True(t, s.IsValid("100"))
	assert.Equal(t, "Alice", sess.Name)
	assert.Equal(t, models.SessionStandard, sess.Class)
	assert.Equal(t, int64(15*60), sess.TimeoutSeconds)
	assert.Equal(t, sess.AuthenticatedAt, sess.LastActivity)
}

func TestSubmitAnswer_CaseInsensitive(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.BeginChallenge("100")
	require.NoError(t, err)
	s.RegisterPrompt("100", 10)

	require.NoError(t, s.SubmitAnswer("100", "  YOUR_SECRET_ANSWER_HERE ", 10))
}

func TestSubmitAnswer_NonReplyStaysPending(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.BeginChallenge("100")
	require.NoError(t, err)
	s.RegisterPrompt("100", 10)

	// Correct answer, but not a reply to the prompt: rejected and the
	// flow stays in the challenge-pending state.
	err = s.SubmitAnswer("100", DefaultAnswer, 0)
	assert.ErrorIs(t, err, ErrNotAReply)
	assert.False(t, s.IsValid("100"))

	err = s.SubmitAnswer("100", DefaultAnswer, 99)
	assert.ErrorIs(t, err, ErrNotAReply)

	// A proper reply still succeeds afterwards.
	require.NoError(t, s.SubmitAnswer("100", DefaultAnswer, 10))
}

func TestSubmitAnswer_MismatchIsTerminal(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.BeginChallenge("100")
	require.NoError(t, err)
	s.RegisterPrompt("100", 10)

	err = s.SubmitAnswer("100", "wrong", 10)
	assert.ErrorIs(t, err, ErrChallengeMismatch)

	// The attempt is gone; even the right answer needs a fresh /start.
	err = s.SubmitAnswer("100", DefaultAnswer, 10)
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestFinalizeSession_RequiresSolvedChallenge(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.FinalizeSession(context.Background(), "100", "Alice", models.SessionStandard)
	assert.ErrorIs(t, err, ErrNoChallenge)

	_, err = s.BeginChallenge("100")
	require.NoError(t, err)
	s.RegisterPrompt("100", 10)

	// Not solved yet.
	_, err = s.FinalizeSession(context.Background(), "100", "Alice", models.SessionStandard)
	assert.ErrorIs(t, err, ErrNoChallenge)

	require.NoError(t, s.SubmitAnswer("100", DefaultAnswer, 10))

	_, err = s.FinalizeSession(context.Background(), "100", "Alice", "bogus")
	assert.ErrorIs(t, err, ErrNoChallenge)

	_, err = s.FinalizeSession(context.Background(), "100", "Alice", models.SessionExtended)
	require.NoError(t, err)
}

func TestIsValid_TimeoutBoundary(t *testing.T) {
	tests := []struct {
		name    string
		class   models.SessionClass
		timeout time.Duration
	}{
		{name: "standard", class: models.SessionStandard, timeout: 15 * time.Minute},
		{name: "extended", class: models.SessionExtended, timeout: 1440 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)

			base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
			now := base
			s.now = func() time.Time { return now }

			authenticate(t, s, "100", tt.class)

			now = base.Add(tt.timeout - time.Second)
			assert.True(t, s.IsValid("100"), "one second before the timeout")

			now = base.Add(tt.timeout)
			assert.True(t, s.IsValid("100"), "exactly at the timeout")

			now = base.Add(tt.timeout + time.Second)
			assert.False(t, s.IsValid("100"), "one second past the timeout")
		})
	}
}

func TestTouch_ExtendsValidity(t *testing.T) {
	s, _ := newTestStore(t)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	authenticate(t, s, "100", models.SessionStandard)

	now = base.Add(10 * time.Minute)
	require.NoError(t, s.Touch(context.Background(), "100"))

	// Without the touch the session would have expired by now.
	now = base.Add(16 * time.Minute)
	assert.True(t, s.IsValid("100"))

	now = base.Add(25*time.Minute + time.Second)
	assert.False(t, s.IsValid("100"))
}

func TestTouch_ExpiredRemovesSession(t *testing.T) {
	s, _ := newTestStore(t)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	authenticate(t, s, "100", models.SessionStandard)

	now = base.Add(16 * time.Minute)
	err := s.Touch(context.Background(), "100")
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Removed, not just invisible: rolling the clock back does not
	// resurrect it.
	now = base
	assert.False(t, s.IsValid("100"))
}

func TestTouch_NotAuthenticated(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.Touch(context.Background(), "100")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTerminate_ImmediatelyInvalid(t *testing.T) {
	s, _ := newTestStore(t)

	authenticate(t, s, "100", models.SessionStandard)
	require.True(t, s.IsValid("100"))

	require.NoError(t, s.Terminate(context.Background(), "100"))
	assert.False(t, s.IsValid("100"))

	assert.ErrorIs(t, s.Terminate(context.Background(), "100"), ErrNotAuthenticated)
}

func TestBlock_RemovesSessionAndGatesChallenge(t *testing.T) {
	s, _ := newTestStore(t)

	authenticate(t, s, "100", models.SessionExtended)
	require.True(t, s.IsValid("100"))

	require.NoError(t, s.Block(context.Background(), "100"))

	// Invalid even well within the timeout window.
	assert.False(t, s.IsValid("100"))
	assert.True(t, s.IsBlocked("100"))

	_, err := s.BeginChallenge("100")
	assert.ErrorIs(t, err, ErrBlocked)

	require.NoError(t, s.Unblock(context.Background(), "100"))
	_, err = s.BeginChallenge("100")
	assert.NoError(t, err)
}

func TestSetChallenge_DiscardsOldPromptAndAnswer(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.BeginChallenge("100")
	require.NoError(t, err)
	s.RegisterPrompt("100", 10)

	require.NoError(t, s.SetChallenge(context.Background(), "New question?", "new answer"))
	assert.Equal(t, "New question?", s.ChallengePrompt())

	// The in-flight attempt died with the old prompt.
	err = s.SubmitAnswer("100", DefaultAnswer, 10)
	assert.ErrorIs(t, err, ErrNoChallenge)

	// And the old answer no longer passes a fresh flow.
	_, err = s.BeginChallenge("100")
	require.NoError(t, err)
	s.RegisterPrompt("100", 11)
	err = s.SubmitAnswer("100", DefaultAnswer, 11)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestPersistence_RoundTrip(t *testing.T) {
	mock := &mockStateStorage{}
	ctx := context.Background()

	s1 := New(ctx, mock, Config{AdminID: adminID}, slog.Default())
	sess := authenticate(t, s1, "100", models.SessionExtended)
	require.NoError(t, s1.Block(ctx, "200"))
	require.NoError(t, s1.SetChallenge(ctx, "Color?", "blue"))
	s1.SetBackupGroup(ctx, -1001234)

	// A fresh store over the same storage reproduces everything.
	s2 := New(ctx, mock, Config{AdminID: adminID}, slog.Default())

	restored, ok := s2.Session("100")
	require.True(t, ok)
	assert.Equal(t, sess.Name, restored.Name)
	assert.Equal(t, sess.Class, restored.Class)
	assert.Equal(t, sess.TimeoutSeconds, restored.TimeoutSeconds)
	assert.True(t, sess.LastActivity.Equal(restored.LastActivity))

	assert.True(t, s2.IsValid("100"))
	assert.True(t, s2.IsBlocked("200"))
	assert.Equal(t, "Color?", s2.ChallengePrompt())
	assert.Equal(t, int64(-1001234), s2.BackupGroup())
}

func TestPersistenceFailure_NonFatal(t *testing.T) {
	mock := &mockStateStorage{saveErr: fmt.Errorf("disk full")}
	s := New(context.Background(), mock, Config{AdminID: adminID}, slog.Default())

	// In-memory state stays authoritative despite the failing saves.
	authenticate(t, s, "100", models.SessionStandard)
	assert.True(t, s.IsValid("100"))
	assert.Greater(t, mock.saves, 0)
}

func TestLoadFailure_FallsBackToDefaults(t *testing.T) {
	mock := &mockStateStorage{loadErr: fmt.Errorf("corrupt file")}
	s := New(context.Background(), mock, Config{AdminID: adminID}, slog.Default())

	assert.Equal(t, DefaultPrompt, s.ChallengePrompt())
	assert.False(t, s.IsValid("100"))
	assert.True(t, s.IsValid(adminID))
}

func TestConfig_CustomTimeouts(t *testing.T) {
	mock := &mockStateStorage{}
	s := New(context.Background(), mock, Config{
		AdminID:         adminID,
		StandardTimeout: 5 * time.Minute,
		ExtendedTimeout: 2 * time.Hour,
	}, slog.Default())

	sess := authenticate(t, s, "100", models.SessionStandard)
	assert.Equal(t, int64(5*60), sess.TimeoutSeconds)

	sess = authenticate(t, s, "101", models.SessionExtended)
	assert.Equal(t, int64(2*60*60), sess.TimeoutSeconds)
}
