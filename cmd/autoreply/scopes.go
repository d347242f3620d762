package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/autoreply/internal/settings"
	"github.com/flemzord/autoreply/pkg/app"
)

func scopesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "Inspect stored chat settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every known scope",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			records := store.Snapshot(cmd.Context())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCOPE\tENABLED\tDELAY\tREPLIES\tSUDO")
			for _, key := range store.Keys() {
				rec := records[key]
				fmt.Fprintf(w, "%s\t%t\t%ss\t%d\t%d\n",
					key, rec.Enabled, formatDelay(rec.DelaySeconds), len(rec.AutoReplies), len(rec.PrivilegedIDs))
			}
			return w.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <scope>",
		Short: "Print one scope record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, ok := store.Snapshot(cmd.Context())[settings.ScopeKey(args[0])]
			if !ok {
				return fmt.Errorf("unknown scope %q", args[0])
			}
			raw, err := settings.EncodeRecord(rec)
			if err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(raw, &pretty); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		},
	})
	return cmd
}

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Settings backups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Write a backup of the settings document immediately",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			params.LogOutput = cmd.ErrOrStderr()
			warn := slog.LevelWarn
			params.LogLevel = &warn

			rt, err := app.Build(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer rt.Close()

			path, err := rt.BackupNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
			return nil
		},
	})
	return cmd
}

func openStore(cmd *cobra.Command) (*settings.Store, error) {
	params, err := runParams(cmd)
	if err != nil {
		return nil, err
	}
	cfg, _, err := app.LoadConfig(params)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	return app.OpenStore(cmd.Context(), cfg, logger)
}

func formatDelay(v float64) string {
	return fmt.Sprintf("%g", v)
}
