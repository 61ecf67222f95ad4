package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adaharness/ada/cmd/ada/cli/backlog"
)

func promptFeature() *backlog.Feature {
	return &backlog.Feature{
		ID:          "feat-1",
		Name:        "User login",
		Category:    "auth",
		Description: "Add a login form with session cookies.",
		AcceptanceCriteria: []string{
			"login form renders",
			"invalid password shows an error",
		},
	}
}

func TestBuildPromptSections(t *testing.T) {
	p := buildPrompt(promptFeature(), "2026-01-15 session ended", false)

	assert.Contains(t, p, "## Feature: User login (feat-1)")
	assert.Contains(t, p, "Category: auth")
	assert.Contains(t, p, "Add a login form with session cookies.")
	assert.Contains(t, p, "- login form renders")
	assert.Contains(t, p, "- invalid password shows an error")
	assert.Contains(t, p, "## Recent project progress")
	assert.Contains(t, p, "2026-01-15 session ended")
	assert.Contains(t, p, "## Instructions")
	assert.NotContains(t, p, initializerPreamble)
	assert.NotContains(t, p, "## Notes from earlier sessions")
}

func TestBuildPromptFirstSession(t *testing.T) {
	p := buildPrompt(promptFeature(), "", true)
	assert.True(t, strings.HasPrefix(p, initializerPreamble))
	assert.NotContains(t, p, "## Recent project progress")
}

func TestBuildPromptCarriesHandoffNotes(t *testing.T) {
	f := promptFeature()
	f.ImplementationNotes = []string{
		"Handoff from session s1:\nform done, cookie handling remains",
		"Session s2: verification failed at unit_tests.\ncookie test red",
	}

	p := buildPrompt(f, "", false)
	idx := strings.Index(p, "## Notes from earlier sessions")
	assert.GreaterOrEqual(t, idx, 0)
	assert.Contains(t, p[idx:], "cookie handling remains")
	assert.Contains(t, p[idx:], "cookie test red", "every note entry is rendered")
	assert.Less(t, idx, strings.Index(p, "## Instructions"), "notes come before instructions")
}
