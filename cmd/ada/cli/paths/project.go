package paths

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/jsonutil"
)

// Project describes a harness-managed project, persisted at .ada/project.json
// when the workspace is initialized.
type Project struct {
	Name      string    `json:"name"`
	Agent     string    `json:"agent"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// LoadProject reads .ada/project.json. Returns (nil, nil) when the workspace
// has not been initialized.
func (w *Workspace) LoadProject() (*Project, error) {
	var p Project
	if err := jsonutil.LoadJSON(w.Path(ProjectFile), &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// SaveProject writes the project descriptor atomically.
func (w *Workspace) SaveProject(p *Project) error {
	if err := w.Ensure(); err != nil {
		return err
	}
	if err := jsonutil.SaveJSON(w.Path(ProjectFile), p); err != nil {
		return fmt.Errorf("saving project descriptor: %w", err)
	}
	return nil
}
