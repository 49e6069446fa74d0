package jsonfile

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaygate/internal/models"
	"relaygate/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(Config{Path: filepath.Join(t.TempDir(), "state.json")}, slog.Default())
	require.NoError(t, err)

	return s
}

func sampleState() *models.State {
	state := models.NewState()
	state.AuthenticatedUsers["100"] = models.UserSession{
		Name:            "Alice",
		AuthenticatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		LastActivity:    time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC),
		Class:           models.SessionStandard,
		TimeoutSeconds:  900,
	}
	state.BlockedUsers = []int64{200, 300}
	state.SecurityQuestions["Color?"] = "blue"
	state.BackupGroupID = -1001234
	return state
}

func TestLoad_Missing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrStateNotFound)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleState()))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), loaded)
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleState()))
	require.NoError(t, s.Save(ctx, sampleState()))

	entries, err := os.ReadDir(filepath.Dir(s.path))
	require.NoError(t, err)

	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestLoad_HandEditedDocument(t *testing.T) {
	s := newTestStorage(t)

	// Minimal document with missing objects must not produce nil maps.
	require.NoError(t, os.WriteFile(s.path, []byte(`{"blocked_users":[1]}`), 0o600))

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, loaded.AuthenticatedUsers)
	assert.NotNil(t, loaded.SecurityQuestions)
	assert.Equal(t, []int64{1}, loaded.BlockedUsers)
}

func TestLoad_Corrupt(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, os.WriteFile(s.path, []byte("{not json"), 0o600))

	_, err := s.Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrStateNotFound)
}

func TestBackup_RotationCap(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{
		Path:           filepath.Join(dir, "state.json"),
		BackupInterval: time.Hour,
		BackupKeep:     2,
	}, slog.Default())
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(ctx, sampleState()))
		now = now.Add(2 * time.Hour)
	}

	names, err := s.backupNames()
	require.NoError(t, err)
	require.Len(t, names, 2, "only the newest backups are retained")

	// The survivors are the most recent snapshots.
	assert.Equal(t, "state-20240601T160000.json", names[0])
	assert.Equal(t, "state-20240601T180000.json", names[1])
}

func TestBackup_IntervalThrottles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{
		Path:           filepath.Join(dir, "state.json"),
		BackupInterval: time.Hour,
	}, slog.Default())
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleState()))

	// Saves within the interval do not snapshot again.
	now = now.Add(30 * time.Minute)
	require.NoError(t, s.Save(ctx, sampleState()))

	names, err := s.backupNames()
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestBackup_ClockResumesAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s1, err := New(Config{Path: path, BackupInterval: time.Hour}, slog.Default())
	require.NoError(t, err)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s1.now = func() time.Time { return base }
	require.NoError(t, s1.Save(context.Background(), sampleState()))

	// A new instance picks up the existing backup's timestamp and does
	// not immediately snapshot again.
	s2, err := New(Config{Path: path, BackupInterval: time.Hour}, slog.Default())
	require.NoError(t, err)
	s2.now = func() time.Time { return base.Add(30 * time.Minute) }
	require.NoError(t, s2.Save(context.Background(), sampleState()))

	names, err := s2.backupNames()
	require.NoError(t, err)
	assert.Len(t, names, 1)
}
