package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "host-manager",
		Short: "Manage the lifecycle of hosts monitored by Checkmk",
		Long: `host-manager keeps a local registry of hosts in sync with a Checkmk site.
It creates, updates and deletes hosts through the Checkmk REST API, runs
service discovery, and notifies owners about expiring hosts and new
critical services.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API server and the notification loop",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), logLevel)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(logLevel)
			},
		},
		&cobra.Command{
			Use:   "notify-once",
			Short: "Run the expiration and critical service checks once",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runNotifyOnce(cmd.Context(), logLevel)
			},
		},
	)
	return root
}
