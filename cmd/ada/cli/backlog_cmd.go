package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/jsonutil"
)

func newBacklogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Inspect the feature backlog",
	}
	cmd.AddCommand(newBacklogListCmd())
	cmd.AddCommand(newBacklogShowCmd())
	return cmd
}

func newBacklogListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backlog features",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			bl, err := backlog.Open(root)
			if err != nil {
				return err
			}

			for _, f := range bl.List() {
				if status != "" && string(f.Status) != status {
					continue
				}
				fmt.Printf("%-20s %-12s p%-3d %3d sessions  %s\n",
					f.ID, f.Status, f.Priority, f.SessionsSpent, f.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|in_progress|completed|blocked)")
	return cmd
}

func newBacklogShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <feature-id>",
		Short: "Show one feature as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			bl, err := backlog.Open(root)
			if err != nil {
				return err
			}
			f, err := bl.Get(args[0])
			if err != nil {
				return err
			}
			data, err := jsonutil.MarshalIndentWithNewline(f, "", "  ")
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}
