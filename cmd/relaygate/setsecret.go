package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"relaygate/internal/config"
	"relaygate/internal/session"
	"relaygate/internal/storage/jsonfile"
)

// newSetSecretCommand rotates the challenge directly in the state
// document, for operators who prefer not to do it over chat. The bot
// must be stopped while running this; both would otherwise race on the
// same file.
func newSetSecretCommand(loader *config.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret",
		Short: "Replace the challenge prompt and answer in the state file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			reader := bufio.NewReader(os.Stdin)

			fmt.Print("Prompt: ")
			prompt, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read prompt: %w", err)
			}

			fmt.Print("Answer (hidden): ")
			answerBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read answer: %w", err)
			}

			prompt = strings.TrimSpace(prompt)
			answer := strings.TrimSpace(string(answerBytes))
			if prompt == "" || answer == "" {
				return fmt.Errorf("prompt and answer must not be empty")
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			stateStore, err := jsonfile.New(jsonfile.Config{
				Path:           cfg.StateFile,
				BackupInterval: cfg.BackupInterval(),
				BackupKeep:     cfg.BackupKeep,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to open state storage: %w", err)
			}

			sessions := session.New(cmd.Context(), stateStore, session.Config{}, logger)
			if err := sessions.SetChallenge(cmd.Context(), prompt, answer); err != nil {
				return fmt.Errorf("failed to set challenge: %w", err)
			}

			fmt.Println("Challenge updated.")
			return nil
		},
	}
}
