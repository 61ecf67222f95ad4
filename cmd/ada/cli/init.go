package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/gitops"
	"github.com/adaharness/ada/cmd/ada/cli/jsonutil"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/settings"
)

const sampleHook = `#!/bin/sh
# Pre-complete hook: runs before a feature is marked completed.
# Rename to pre-complete.sh to activate. A nonzero exit blocks completion.
#
# Available environment:
#   ADA_PROJECT_PATH      absolute project directory
#   ADA_FEATURE_ID        feature being completed
#   ADA_FEATURE_NAME      human-readable feature name
#   ADA_FEATURE_CATEGORY  feature category
exit 0
`

var gitignoreEntries = []string{
	".ada/config.local.json",
	".ada/logs/",
	".ada/state/",
}

func newInitCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold the .ada workspace in a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			ws, err := paths.NewWorkspace(root)
			if err != nil {
				return err
			}

			if p, err := ws.LoadProject(); err == nil && p != nil {
				fmt.Printf("Project %q is already initialized.\n", p.Name)
				return nil
			}

			project := &paths.Project{
				Name:  filepath.Base(root),
				Agent: settings.AgentClaude,
				Model: settings.DefaultModel,
			}
			if !yes {
				if err := promptProject(project); err != nil {
					return err
				}
			}
			project.CreatedAt = time.Now().UTC()

			if err := ws.Ensure(); err != nil {
				return err
			}
			if err := ws.SaveProject(project); err != nil {
				return err
			}

			cfg := &settings.Config{Agent: project.Agent, Model: project.Model}
			configPath := ws.Path(paths.ConfigFile)
			if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
				if err := jsonutil.SaveJSON(configPath, cfg); err != nil {
					return err
				}
			}

			if _, err := backlog.Open(root); err != nil {
				return fmt.Errorf("checking backlog file: %w", err)
			}

			hookSample := ws.Path(paths.HooksDir + "/pre-complete.sh.sample")
			if _, err := os.Stat(hookSample); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(hookSample, []byte(sampleHook), 0o700); err != nil { //nolint:gosec // hook must be executable
					return err
				}
			}

			if _, err := gitops.Open(root); errors.Is(err, gitops.ErrNotARepo) {
				if _, err := gitops.Init(root); err != nil {
					return err
				}
				fmt.Println("Initialized empty git repository.")
			}
			if err := ensureGitignore(root); err != nil {
				return err
			}

			fmt.Printf("Workspace ready. Add features to %s and run `ada run`.\n", paths.BacklogFile)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept defaults without prompting")
	return cmd
}

func promptProject(p *paths.Project) error {
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project name").
				Value(&p.Name),
			huh.NewSelect[string]().
				Title("Agent transport").
				Options(
					huh.NewOption("Claude Code CLI (subprocess)", settings.AgentClaude),
					huh.NewOption("Anthropic API (streaming)", settings.AgentAPI),
				).
				Value(&p.Agent),
			huh.NewInput().
				Title("Default model").
				Value(&p.Model),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return NewSilentError(err)
		}
		return fmt.Errorf("collecting project settings: %w", err)
	}
	return nil
}

// ensureGitignore appends workspace entries missing from .gitignore.
func ensureGitignore(root string) error {
	path := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(path) //nolint:gosec // project-local file
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	var missing []string
	for _, entry := range gitignoreEntries {
		if !strings.Contains(string(existing), entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // project-local file
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(strings.Join(missing, "\n") + "\n")
	return err
}
