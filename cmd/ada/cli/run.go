package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adaharness/ada/cmd/ada/cli/agent"
	"github.com/adaharness/ada/cmd/ada/cli/agent/anthropicapi"
	"github.com/adaharness/ada/cmd/ada/cli/agent/claudecli"
	"github.com/adaharness/ada/cmd/ada/cli/api"
	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/harness"
	"github.com/adaharness/ada/cmd/ada/cli/logging"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/settings"
)

func newRunCmd() *cobra.Command {
	var (
		serveAPI   bool
		allowDirty bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the harness loop over the project backlog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			cfg, err := settings.Load(root)
			if err != nil {
				return err
			}
			if allowDirty {
				cfg.AllowDirty = true
			}

			ws, err := paths.NewWorkspace(root)
			if err != nil {
				return err
			}
			if err := ws.Ensure(); err != nil {
				return err
			}
			logging.SetLogLevelGetter(func() string { return cfg.LogLevel })
			if err := logging.Init(ws.Path(paths.HarnessLogFile)); err != nil {
				return err
			}
			defer logging.Close()

			if err := harness.Preflight(root, cfg); err != nil {
				var pf *harness.PreflightError
				if errors.As(err, &pf) {
					fmt.Fprintln(os.Stderr, "Preflight checks failed:")
					for _, p := range pf.Problems {
						fmt.Fprintf(os.Stderr, "  - %s\n", p)
					}
				}
				return err
			}

			transport, err := newTransport(cfg)
			if err != nil {
				return err
			}

			bus := events.NewBus()
			defer bus.Close()

			h, err := harness.New(root, cfg, transport, bus,
				harness.WithApproval(approveFeature))
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				defer cancel()
				return h.Run(gctx)
			})
			if serveAPI {
				srv := api.NewServer(api.Options{
					Addr:        cfg.APIAddr,
					ProjectRoot: root,
					Backlog:     h.Backlog(),
					History:     h.History(),
					Alerts:      h.Alerts(),
					Progress:    h.Progress(),
					Workspace:   h.Workspace(),
					Bus:         bus,
					Status:      h.Status,
				})
				g.Go(func() error { return srv.Run(gctx) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&serveAPI, "api", true, "serve the telemetry API while running")
	cmd.Flags().BoolVar(&allowDirty, "allow-dirty", false, "start even when the worktree has uncommitted changes")
	return cmd
}

// newTransport builds the configured agent transport.
func newTransport(cfg *settings.Config) (agent.Transport, error) {
	switch cfg.Agent {
	case settings.AgentClaude:
		return claudecli.New(cfg.AgentBinary), nil
	case settings.AgentAPI:
		return anthropicapi.New(), nil
	default:
		return nil, fmt.Errorf("unknown agent type %q", cfg.Agent)
	}
}
