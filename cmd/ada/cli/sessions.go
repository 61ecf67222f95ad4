package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adaharness/ada/cmd/ada/cli/history"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

func newSessionsCmd() *cobra.Command {
	var (
		featureID string
		outcome   string
		page      int
		pageSize  int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List past agent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			ws, err := paths.NewWorkspace(root)
			if err != nil {
				return err
			}
			hist, err := history.Open(ws)
			if err != nil {
				return err
			}

			recs, total := hist.List(history.Filter{
				FeatureID: featureID,
				Outcome:   outcome,
			}, page, pageSize)

			for _, r := range recs {
				fmt.Printf("%-38s %-15s %-12s %8s %6d tok  $%.4f\n",
					r.SessionID, r.FeatureID, r.Outcome,
					(time.Duration(r.DurationSec) * time.Second).String(),
					r.TotalTokens(), r.CostUSD)
			}
			fmt.Printf("\n%d sessions (page %d)\n", total, page)
			return nil
		},
	}

	cmd.Flags().StringVar(&featureID, "feature", "", "filter by feature id")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "sessions per page")
	return cmd
}
