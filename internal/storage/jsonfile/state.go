package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"relaygate/internal/models"
	"relaygate/internal/storage"
)

const (
	defaultBackupInterval = 24 * time.Hour
	defaultBackupKeep     = 5

	backupPrefix  = "state-"
	backupSuffix  = ".json"
	backupTimeFmt = "20060102T150405"
)

// Config configures the JSON file storage.
type Config struct {
	// Path is the location of the state document.
	Path string
	// BackupInterval is the minimum wall-clock time between rolling
	// backups. Zero means 24 hours.
	BackupInterval time.Duration
	// BackupKeep is the number of most-recent backups retained.
	// Zero means 5.
	BackupKeep int
}

// Storage persists the state document as a single JSON file with
// write-temp-then-rename atomicity and rolling timestamped backups in a
// "backups" subdirectory next to the document.
type Storage struct {
	path       string
	backupDir  string
	interval   time.Duration
	keep       int
	logger     *slog.Logger
	lastBackup time.Time

	now func() time.Time // overridable in tests
}

// Compile-time check that Storage implements storage.StateStorage
var _ storage.StateStorage = (*Storage)(nil)

// New creates a JSON file storage instance. The parent directory and the
// backup subdirectory are created if missing. The backup clock resumes
// from the newest existing backup, so restarts do not trigger an
// immediate new snapshot.
func New(cfg Config, logger *slog.Logger) (*Storage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("state file path is empty")
	}
	if cfg.BackupInterval <= 0 {
		cfg.BackupInterval = defaultBackupInterval
	}
	if cfg.BackupKeep <= 0 {
		cfg.BackupKeep = defaultBackupKeep
	}

	dir := filepath.Dir(cfg.Path)
	backupDir := filepath.Join(dir, "backups")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	s := &Storage{
		path:      cfg.Path,
		backupDir: backupDir,
		interval:  cfg.BackupInterval,
		keep:      cfg.BackupKeep,
		logger:    logger,
		now:       time.Now,
	}
	s.lastBackup = s.newestBackupTime()

	return s, nil
}

// Load reads and decodes the state document.
// Returns storage.ErrStateNotFound if the file does not exist.
func (s *Storage) Load(ctx context.Context) (*models.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	state := models.NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}

	// Guard against hand-edited documents with missing objects.
	if state.AuthenticatedUsers == nil {
		state.AuthenticatedUsers = make(map[string]models.UserSession)
	}
	if state.SecurityQuestions == nil {
		state.SecurityQuestions = make(map[string]string)
	}

	return state, nil
}

// Save encodes the state document and replaces the previous copy
// atomically: the document is written to a temp file in the same
// directory and renamed over the target. A rolling backup is taken if
// the backup interval has elapsed.
func (s *Storage) Save(ctx context.Context, state *models.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.maybeBackup(data)

	return nil
}

// maybeBackup writes a timestamped snapshot if the interval has elapsed
// and prunes snapshots beyond the retention cap, oldest first. Backup
// failures are logged and never propagated: the primary document is
// already safely on disk.
func (s *Storage) maybeBackup(data []byte) {
	now := s.now()
	if now.Sub(s.lastBackup) < s.interval {
		return
	}

	name := backupPrefix + now.UTC().Format(backupTimeFmt) + backupSuffix
	path := filepath.Join(s.backupDir, name)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to write state backup", "path", path, "error", err)
		}
		return
	}
	s.lastBackup = now

	s.pruneBackups()
}

// pruneBackups deletes the oldest backups beyond the retention cap.
// Names embed a sortable timestamp, so lexical order is age order.
func (s *Storage) pruneBackups() {
	names, err := s.backupNames()
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to list state backups", "error", err)
		}
		return
	}

	for len(names) > s.keep {
		victim := filepath.Join(s.backupDir, names[0])
		if err := os.Remove(victim); err != nil && s.logger != nil {
			s.logger.Warn("failed to prune state backup", "path", victim, "error", err)
		}
		names = names[1:]
	}
}

// backupNames returns the backup file names sorted oldest first.
func (s *Storage) backupNames() ([]string, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// newestBackupTime parses the timestamp of the most recent backup, or
// returns the zero time if there are none.
func (s *Storage) newestBackupTime() time.Time {
	names, err := s.backupNames()
	if err != nil || len(names) == 0 {
		return time.Time{}
	}

	last := names[len(names)-1]
	stamp := strings.TrimSuffix(strings.TrimPrefix(last, backupPrefix), backupSuffix)
	t, err := time.Parse(backupTimeFmt, stamp)
	if err != nil {
		return time.Time{}
	}

	return t
}
