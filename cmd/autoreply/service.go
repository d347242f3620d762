package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flemzord/autoreply/internal/config"
	"github.com/flemzord/autoreply/internal/service"
	"github.com/flemzord/autoreply/pkg/app"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control autoreply as a system service",
	}
	cmd.PersistentFlags().Bool("user", false, "Use a per-user service instead of a system one")

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: "Run the service manager's " + action + " action",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := newServiceManager(cmd)
				if err != nil {
					return err
				}
				if err := m.Control(action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s: done (%s)\n", action, m.Platform())
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the installed service state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newServiceManager(cmd)
			if err != nil {
				return err
			}
			st, err := m.Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", st, m.Platform())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newServiceManager(cmd)
			if err != nil {
				return err
			}
			return m.Run()
		},
	})
	return cmd
}

// newServiceManager resolves the configuration path to an absolute one, so
// the installed unit does not depend on the working directory.
func newServiceManager(cmd *cobra.Command) (*service.Manager, error) {
	params, err := runParams(cmd)
	if err != nil {
		return nil, err
	}
	path, err := config.Find(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if path, err = filepath.Abs(path); err != nil {
			return nil, err
		}
		params.ConfigPath = path
	}
	user, _ := cmd.Flags().GetBool("user")

	return service.New(service.Config{
		ConfigPath:  path,
		UserService: user,
	}, func(ctx context.Context) error {
		return app.Run(ctx, params)
	}, nil)
}
