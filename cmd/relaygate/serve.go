package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"relaygate/internal/archive"
	archivesqlite "relaygate/internal/archive/sqlite"
	"relaygate/internal/bot"
	"relaygate/internal/config"
	"relaygate/internal/correlator"
	"relaygate/internal/correlator/boltdb"
	"relaygate/internal/session"
	"relaygate/internal/storage/jsonfile"
)

func newServeCommand(loader *config.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateStore, err := jsonfile.New(jsonfile.Config{
		Path:           cfg.StateFile,
		BackupInterval: cfg.BackupInterval(),
		BackupKeep:     cfg.BackupKeep,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open state storage: %w", err)
	}

	sessions := session.New(ctx, stateStore, session.Config{
		AdminID:         strconv.FormatInt(cfg.AdminID, 10),
		StandardTimeout: cfg.StandardTimeout(),
		ExtendedTimeout: cfg.ExtendedTimeout(),
	}, logger)

	// Config seeds the backup group; the state document wins once the
	// id has been learned via /setupgroup.
	if sessions.BackupGroup() == 0 && cfg.GroupID != 0 {
		sessions.SetBackupGroup(ctx, cfg.GroupID)
	}

	var links correlator.Store
	if cfg.LinksDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LinksDB), 0o700); err != nil {
			return fmt.Errorf("failed to create links directory: %w", err)
		}
		store, err := boltdb.New(cfg.LinksDB)
		if err != nil {
			return fmt.Errorf("failed to open links database: %w", err)
		}
		defer store.Close()
		links = store
	} else {
		links = correlator.NewMemory()
	}

	var arc archive.Store
	if cfg.ArchiveDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.ArchiveDB), 0o700); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
		store, err := archivesqlite.New(ctx, cfg.ArchiveDB)
		if err != nil {
			return fmt.Errorf("failed to open archive database: %w", err)
		}
		defer store.Close()
		arc = store
	}

	transport, err := bot.NewTelegram(cfg.BotToken, cfg.Debug, logger)
	if err != nil {
		return err
	}

	b := bot.New(transport, sessions, links, arc, cfg.AdminID, logger)

	logger.Info("relaygate started", "admin_id", cfg.AdminID, "state_file", cfg.StateFile)

	if err := transport.Run(ctx, b); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("relaygate stopped")

	return nil
}
