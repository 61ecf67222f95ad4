package harness

import (
	"fmt"
	"strings"

	"github.com/adaharness/ada/cmd/ada/cli/backlog"
)

// progressTailBytes bounds how much of the progress log the prompt carries.
const progressTailBytes = 4096

// initializerPreamble is prepended on the very first session of a project,
// before any feature has been completed.
const initializerPreamble = `You are starting work on a fresh project. Before implementing the feature
below, look at the repository layout, the build tooling, and any existing
conventions, and follow them. If the project needs basic scaffolding to make
the feature testable, set it up first.`

// codingInstructions closes every prompt.
const codingInstructions = `Work autonomously until the feature is complete: implement it, add or
update tests, and make the test suite pass. Commit nothing yourself; the
harness handles version control.

If you are running low on context, stop coding and write a concise handoff:
what is done, what remains, which files you touched, and the next concrete
step. A fresh session will continue from your notes.`

// buildPrompt composes the session prompt for a feature.
func buildPrompt(f *backlog.Feature, progressTail string, firstSession bool) string {
	var sb strings.Builder

	if firstSession {
		sb.WriteString(initializerPreamble)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "## Feature: %s (%s)\n\n", f.Name, f.ID)
	fmt.Fprintf(&sb, "Category: %s\n\n", f.Category)
	if f.Description != "" {
		sb.WriteString(f.Description)
		sb.WriteString("\n\n")
	}

	if len(f.AcceptanceCriteria) > 0 {
		sb.WriteString("## Acceptance criteria\n\n")
		for _, c := range f.AcceptanceCriteria {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
		sb.WriteString("\n")
	}

	if len(f.ImplementationNotes) > 0 {
		sb.WriteString("## Notes from earlier sessions\n\n")
		for _, note := range f.ImplementationNotes {
			sb.WriteString(note)
			sb.WriteString("\n\n")
		}
	}

	if progressTail != "" {
		sb.WriteString("## Recent project progress\n\n")
		sb.WriteString(progressTail)
		sb.WriteString("\n")
	}

	sb.WriteString("## Instructions\n\n")
	sb.WriteString(codingInstructions)
	sb.WriteString("\n")
	return sb.String()
}
