package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adaharness/ada/cmd/ada/cli/alerts"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

func newAlertsCmd() *cobra.Command {
	var includeDismissed bool

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List operator alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openAlerts(cmd)
			if err != nil {
				return err
			}
			for _, a := range store.List(includeDismissed) {
				marker := " "
				if !a.Read {
					marker = "*"
				}
				fmt.Printf("%s [%s] %-19s %s  %s\n",
					marker, a.Severity, a.CreatedAt.Format("2006-01-02 15:04:05"), a.ID, a.Title)
			}
			fmt.Printf("\n%d unread\n", store.UnreadCount())
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeDismissed, "all", false, "include dismissed alerts")

	cmd.AddCommand(&cobra.Command{
		Use:   "read <alert-id>",
		Short: "Mark an alert as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAlerts(cmd)
			if err != nil {
				return err
			}
			return store.MarkRead(args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every alert as read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openAlerts(cmd)
			if err != nil {
				return err
			}
			return store.MarkAllRead()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dismiss <alert-id>",
		Short: "Dismiss an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAlerts(cmd)
			if err != nil {
				return err
			}
			return store.Dismiss(args[0])
		},
	})
	return cmd
}

func openAlerts(cmd *cobra.Command) (*alerts.Store, error) {
	root, err := projectRoot(cmd)
	if err != nil {
		return nil, err
	}
	ws, err := paths.NewWorkspace(root)
	if err != nil {
		return nil, err
	}
	return alerts.Open(ws, nil)
}
