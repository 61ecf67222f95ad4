package cli

import (
	"github.com/spf13/cobra"

	"github.com/adaharness/ada/cmd/ada/cli/alerts"
	"github.com/adaharness/ada/cmd/ada/cli/api"
	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/history"
	"github.com/adaharness/ada/cmd/ada/cli/logging"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/progress"
	"github.com/adaharness/ada/cmd/ada/cli/settings"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the telemetry API without running the harness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			cfg, err := settings.Load(root)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.APIAddr
			}

			ws, err := paths.NewWorkspace(root)
			if err != nil {
				return err
			}
			logging.InitStderr()

			bl, err := backlog.Open(root)
			if err != nil {
				return err
			}
			hist, err := history.Open(ws)
			if err != nil {
				return err
			}
			bus := events.NewBus()
			defer bus.Close()
			al, err := alerts.Open(ws, bus)
			if err != nil {
				return err
			}

			srv := api.NewServer(api.Options{
				Addr:        addr,
				ProjectRoot: root,
				Backlog:     bl,
				History:     hist,
				Alerts:      al,
				Progress:    progress.Open(root),
				Workspace:   ws,
				Bus:         bus,
			})
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
