// Package validation provides input validation for identifiers that end up
// in file paths. This package has no dependencies to avoid import cycles.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// pathSafeRegex matches alphanumeric characters, underscores, and hyphens only.
var pathSafeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSessionID validates that a session ID doesn't contain path separators.
// Session IDs name JSONL files under the logs directory, so this prevents
// path traversal.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid session ID %q: contains path separators", id)
	}
	return nil
}

// ValidateFeatureID validates that a feature ID is safe for use in file
// paths, log file names, and commit messages.
func ValidateFeatureID(id string) error {
	if id == "" {
		return errors.New("feature ID cannot be empty")
	}
	if !pathSafeRegex.MatchString(id) {
		return fmt.Errorf("invalid feature ID %q: must be alphanumeric with underscores/hyphens only", id)
	}
	return nil
}

// ValidateAlertID validates an alert identifier before it is matched against
// the persisted store.
func ValidateAlertID(id string) error {
	if id == "" {
		return errors.New("alert ID cannot be empty")
	}
	if !pathSafeRegex.MatchString(id) {
		return fmt.Errorf("invalid alert ID %q: must be alphanumeric with underscores/hyphens only", id)
	}
	return nil
}
