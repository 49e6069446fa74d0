package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for relaygate. Learned values (the
// backup-group id) are persisted through the state document, never
// written back into this configuration source.
type Config struct {
	// BotToken is the Telegram bot API token.
	BotToken string `mapstructure:"bot_token"`
	// AdminID is the Telegram user id of the administrator.
	AdminID int64 `mapstructure:"admin_id"`
	// GroupID optionally seeds the backup-group chat id; once learned
	// interactively it lives in the state document instead.
	GroupID int64 `mapstructure:"group_id"`

	// StandardTimeoutMin is the standard session inactivity timeout in
	// minutes.
	StandardTimeoutMin int `mapstructure:"standard_timeout_min"`
	// ExtendedTimeoutMin is the extended session inactivity timeout in
	// minutes.
	ExtendedTimeoutMin int `mapstructure:"extended_timeout_min"`

	// StateFile is the path of the persisted state document.
	StateFile string `mapstructure:"state_file"`
	// LinksDB is the path of the BoltDB message-link database. Empty
	// selects the in-memory correlator.
	LinksDB string `mapstructure:"links_db"`
	// ArchiveDB is the path of the SQLite relay-history database.
	ArchiveDB string `mapstructure:"archive_db"`

	// BackupIntervalHours is the minimum wall-clock time between state
	// backups.
	BackupIntervalHours int `mapstructure:"backup_interval_hours"`
	// BackupKeep is the number of state backups retained.
	BackupKeep int `mapstructure:"backup_keep"`

	// Debug enables transport debug logging.
	Debug bool `mapstructure:"debug"`
}

// StandardTimeout returns the standard session timeout as a duration.
func (c Config) StandardTimeout() time.Duration {
	return time.Duration(c.StandardTimeoutMin) * time.Minute
}

// ExtendedTimeout returns the extended session timeout as a duration.
func (c Config) ExtendedTimeout() time.Duration {
	return time.Duration(c.ExtendedTimeoutMin) * time.Minute
}

// BackupInterval returns the state backup interval as a duration.
func (c Config) BackupInterval() time.Duration {
	return time.Duration(c.BackupIntervalHours) * time.Hour
}

// Validate checks that the configuration is complete enough to serve.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("bot token is required (RELAYGATE_BOT_TOKEN)")
	}
	if c.AdminID == 0 {
		return errors.New("admin id is required (RELAYGATE_ADMIN_ID)")
	}
	if c.StandardTimeoutMin <= 0 || c.ExtendedTimeoutMin <= 0 {
		return errors.New("session timeouts must be positive")
	}
	return nil
}

// Loader wraps Viper configuration loading for relaygate.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader initializes a Loader with standard defaults. Settings come
// from RELAYGATE_* environment variables and an optional config file.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("RELAYGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/relaygate")

	// Every key needs a default so AutomaticEnv can feed Unmarshal.
	v.SetDefault("bot_token", "")
	v.SetDefault("admin_id", 0)
	v.SetDefault("group_id", 0)
	v.SetDefault("debug", false)
	v.SetDefault("standard_timeout_min", 15)
	v.SetDefault("extended_timeout_min", 1440)
	v.SetDefault("state_file", "data/state.json")
	v.SetDefault("links_db", "data/links.db")
	v.SetDefault("archive_db", "data/archive.db")
	v.SetDefault("backup_interval_hours", 24)
	v.SetDefault("backup_keep", 5)

	return &Loader{v: v}
}

// Viper exposes the underlying Viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = strings.TrimSpace(path)
}

// Load reads configuration and unmarshals it into a Config struct.
// A missing config file is not an error; the environment alone is a
// valid configuration source.
func (l *Loader) Load() (Config, error) {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}
