package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/adaharness/ada/cmd/ada/cli/backlog"
)

// NewAccessibleForm builds a huh form that honors the ACCESSIBLE
// environment variable, falling back to plain text prompts for screen
// readers and dumb terminals.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).WithAccessible(os.Getenv("ACCESSIBLE") != "")
}

// approveFeature asks the operator to sign off on a verified feature.
func approveFeature(ctx context.Context, f *backlog.Feature) (bool, error) {
	var confirmed bool
	desc := f.Description
	if len(f.AcceptanceCriteria) > 0 {
		desc += "\n\nAcceptance criteria:\n- " + strings.Join(f.AcceptanceCriteria, "\n- ")
	}
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Approve completed feature %q?", f.Name)).
				Description(desc).
				Value(&confirmed),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get approval: %w", err)
	}
	return confirmed, nil
}
