// Package main is the entry point for the autoreply CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autoreply",
		Short:         "A self-hosted Telegram bot that answers group messages for you",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Override data_dir from the configuration")
	root.AddCommand(versionCmd(), startCmd(), configCmd(), scopesCmd(), backupCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "autoreply %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.Modules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bot with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), params)
		},
	}
	cmd.Flags().String("log-level", "", "Override log.level (debug, info, warn, error)")
	return cmd
}

// runParams collects the flags shared by every command that runs the bot.
func runParams(cmd *cobra.Command) (app.RunParams, error) {
	params := app.RunParams{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
	params.ConfigPath, _ = cmd.Flags().GetString("config")
	params.DataDir, _ = cmd.Flags().GetString("data-dir")

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Value.String() != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(f.Value.String())); err != nil {
			return params, fmt.Errorf("invalid --log-level %q", f.Value.String())
		}
		params.LogLevel = &lvl
	}
	return params, nil
}
