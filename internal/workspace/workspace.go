// Package workspace prepares the artifact directories of an experiment and checks
// that its dataset directories are in place before a training run.
package workspace

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/eugenenazirov/udc-experiments/internal/experiment"
)

const dirMode = 0o755

// Severity ranks an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue describes a missing input of an experiment.
type Issue struct {
	Severity Severity `json:"severity"`
	Key      string   `json:"key"`
	Path     string   `json:"path"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s): %s", i.Severity, i.Key, i.Path, i.Message)
}

// Prepare creates the output, checkpoint and run directories of params and returns them.
func Prepare(fs afero.Fs, params experiment.Params) ([]string, error) {
	dirs := []string{params.OutputDir, params.CheckpointPath(), params.RunPath()}
	for _, dir := range dirs {
		if err := fs.MkdirAll(dir, dirMode); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return dirs, nil
}

// Check reports dataset directories and static images that do not exist. Missing
// training directories are errors; missing validation or test inputs are warnings.
func Check(fs afero.Fs, params experiment.Params) ([]Issue, error) {
	var issues []Issue

	dirs := []struct {
		key      string
		path     string
		severity Severity
	}{
		{experiment.KeyTrainSourceDir, params.TrainSourceDir, SeverityError},
		{experiment.KeyTrainTargetDir, params.TrainTargetDir, SeverityError},
		{experiment.KeyValSourceDir, params.ValSourceDir, SeverityWarning},
		{experiment.KeyValTargetDir, params.ValTargetDir, SeverityWarning},
		{experiment.KeyTestSourceDir, params.TestSourceDir, SeverityWarning},
	}
	for _, d := range dirs {
		if d.path == "" {
			continue
		}
		exists, err := afero.DirExists(fs, d.path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", d.path, err)
		}
		if !exists {
			issues = append(issues, Issue{Severity: d.severity, Key: d.key, Path: d.path, Message: "directory does not exist"})
		}
	}

	images := []struct {
		key string
		dir string
		img string
	}{
		{"static_val_image", params.ValSourceDir, params.StaticValImage},
		{"static_test_image", params.TestSourceDir, params.StaticTestImage},
	}
	for _, im := range images {
		if im.dir == "" {
			continue
		}
		path := filepath.Join(im.dir, im.img)
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !exists {
			issues = append(issues, Issue{Severity: SeverityWarning, Key: im.key, Path: path, Message: "image does not exist"})
		}
	}

	return issues, nil
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}
