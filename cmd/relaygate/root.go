package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"relaygate/internal/config"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCommand builds the relaygate command tree.
func NewRootCommand(loader *config.Loader) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "relaygate",
		Short:         "Telegram relay bot with challenge-gated sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configFile != "" {
				loader.SetConfigFile(configFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	root.AddCommand(
		newServeCommand(loader),
		newSetSecretCommand(loader),
		newVersionCommand(),
	)

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaygate\n")
			fmt.Printf("Version:    %s\n", Version)
			fmt.Printf("Build Date: %s\n", BuildDate)
			fmt.Printf("Git Commit: %s\n", GitCommit)
		},
	}
}
