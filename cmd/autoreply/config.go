package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flemzord/autoreply/internal/config"
	"github.com/flemzord/autoreply/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(), configInitCmd())
	return cmd
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}

			cfg, path, err := app.LoadConfig(params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if path == "" {
				path = "(none, environment only)"
			}
			ids := config.Resolve(cfg)
			fmt.Fprintf(out, "Configuration OK: %s\n", path)
			fmt.Fprintf(out, "Data dir: %s\n", cfg.ResolvedDataDir())
			fmt.Fprintf(out, "Store: %s\n", cfg.Store.Driver)
			fmt.Fprintf(out, "Modules (%d):\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a configuration file interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			accessible, _ := cmd.Flags().GetBool("accessible")
			if err := askAnswers(&answers, accessible); err != nil {
				return err
			}
			return writeInit(cmd.OutOrStdout(), path, answers)
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	cmd.Flags().Bool("accessible", false, "Use plain prompts instead of the interactive form")
	return cmd
}

// writeInit writes the configuration file and the .env file holding its
// secrets next to it.
func writeInit(out io.Writer, path string, a initAnswers) error {
	raw, err := renderConfig(a)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return err
	}

	envPath := filepath.Join(filepath.Dir(path), app.DefaultDotEnv)
	if err := writeSecrets(envPath, a); err != nil {
		return fmt.Errorf("config written but secrets were not: %w", err)
	}

	fmt.Fprintf(out, "Wrote %s\n", path)
	fmt.Fprintf(out, "Wrote %s (keep it private)\n", envPath)
	fmt.Fprintf(out, "Check it with: autoreply config check %s\n", path)
	return nil
}
