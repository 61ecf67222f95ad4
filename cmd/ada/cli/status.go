package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/gitops"
	"github.com/adaharness/ada/cmd/ada/cli/history"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backlog progress and spend for the project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			ws, err := paths.NewWorkspace(root)
			if err != nil {
				return err
			}
			bl, err := backlog.Open(root)
			if err != nil {
				return err
			}
			hist, err := history.Open(ws)
			if err != nil {
				return err
			}

			if project, err := ws.LoadProject(); err == nil && project != nil {
				fmt.Printf("Project: %s (agent: %s, model: %s)\n\n", project.Name, project.Agent, project.Model)
			}

			counts := bl.Counts()
			fmt.Printf("Backlog: %d features, %.1f%% complete\n", counts.Total, counts.CompletionPct())
			fmt.Printf("  completed:   %d\n", counts.Completed)
			fmt.Printf("  in progress: %d\n", counts.InProgress)
			fmt.Printf("  pending:     %d\n", counts.Pending)
			fmt.Printf("  blocked:     %d\n", counts.Blocked)

			fmt.Printf("\nSessions: %d run, $%.2f spent\n", hist.Count(), hist.TotalCost())

			recent, _ := hist.List(history.Filter{}, 1, 5)
			if len(recent) > 0 {
				fmt.Println("\nRecent sessions:")
				for _, r := range recent {
					fmt.Printf("  %-38s %-12s %-10s $%.4f\n", r.SessionID, r.FeatureID, r.Outcome, r.CostUSD)
				}
			}

			if repo, err := gitops.Open(root); err == nil {
				if branch, err := repo.CurrentBranch(); err == nil {
					fmt.Printf("\nBranch: %s\n", branch)
				}
				commits, err := repo.RecentCommits(3)
				if err == nil && len(commits) > 0 {
					fmt.Println("Recent commits:")
					for _, c := range commits {
						subject := strings.SplitN(c.Message, "\n", 2)[0]
						fmt.Printf("  %.8s %s\n", c.Hash, subject)
					}
				}
			}
			return nil
		},
	}
}
