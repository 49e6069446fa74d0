package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.StandardTimeoutMin)
	assert.Equal(t, 1440, cfg.ExtendedTimeoutMin)
	assert.Equal(t, "data/state.json", cfg.StateFile)
	assert.Equal(t, "data/links.db", cfg.LinksDB)
	assert.Equal(t, "data/archive.db", cfg.ArchiveDB)
	assert.Equal(t, 24, cfg.BackupIntervalHours)
	assert.Equal(t, 5, cfg.BackupKeep)
	assert.False(t, cfg.Debug)
}

func TestLoader_Environment(t *testing.T) {
	t.Setenv("RELAYGATE_BOT_TOKEN", "123:abc")
	t.Setenv("RELAYGATE_ADMIN_ID", "42")
	t.Setenv("RELAYGATE_STANDARD_TIMEOUT_MIN", "30")
	t.Setenv("RELAYGATE_DEBUG", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.BotToken)
	assert.Equal(t, int64(42), cfg.AdminID)
	assert.Equal(t, 30, cfg.StandardTimeoutMin)
	assert.True(t, cfg.Debug)

	assert.Equal(t, 30*time.Minute, cfg.StandardTimeout())
	assert.Equal(t, 24*time.Hour, cfg.ExtendedTimeout())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "complete",
			cfg: Config{
				BotToken:           "123:abc",
				AdminID:            42,
				StandardTimeoutMin: 15,
				ExtendedTimeoutMin: 1440,
			},
			wantErr: false,
		},
		{
			name:    "missing token",
			cfg:     Config{AdminID: 42, StandardTimeoutMin: 15, ExtendedTimeoutMin: 1440},
			wantErr: true,
		},
		{
			name:    "missing admin",
			cfg:     Config{BotToken: "123:abc", StandardTimeoutMin: 15, ExtendedTimeoutMin: 1440},
			wantErr: true,
		},
		{
			name:    "zero timeout",
			cfg:     Config{BotToken: "123:abc", AdminID: 42, ExtendedTimeoutMin: 1440},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
