package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StepStatus is the outcome of a single step.
type StepStatus string

// Step outcomes.
const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

const (
	reportPathMissingMessageConstant = "report path must be provided"
	reportEncodeTemplateConstant     = "failed to encode run report: %w"
	reportDirectoryTemplateConstant  = "failed to create report directory %s: %w"
	reportWriteTemplateConstant      = "failed to write run report %s: %w"
	reportFilePermissionsConstant    = 0o644
	reportDirectoryPermissions       = 0o755
)

// ErrReportPathRequired indicates WriteReport received an empty path.
var ErrReportPathRequired = errors.New(reportPathMissingMessageConstant)

// Report describes one run.
type Report struct {
	RunID      string       `yaml:"run_id"`
	StartedAt  time.Time    `yaml:"started_at"`
	FinishedAt time.Time    `yaml:"finished_at"`
	Steps      []StepReport `yaml:"steps"`
	Error      string       `yaml:"error,omitempty"`
}

// StepReport describes one step of a run.
type StepReport struct {
	Name     string         `yaml:"name"`
	Status   StepStatus     `yaml:"status"`
	Reason   string         `yaml:"reason,omitempty"`
	Duration time.Duration  `yaml:"duration,omitempty"`
	Summary  map[string]int `yaml:"summary,omitempty"`
	Commit   *CommitReport  `yaml:"commit,omitempty"`
}

// CommitReport is the commit gate outcome recorded by the commit step.
type CommitReport struct {
	RepositoryPath string `yaml:"repository_path"`
	Committed      bool   `yaml:"committed"`
	Pushed         bool   `yaml:"pushed"`
	Message        string `yaml:"message,omitempty"`
	Revision       string `yaml:"revision,omitempty"`
	Branch         string `yaml:"branch,omitempty"`
}

// WriteReport stores the report as YAML, replacing any previous report at the path.
func WriteReport(reportPath string, report Report) error {
	trimmedPath := strings.TrimSpace(reportPath)
	if len(trimmedPath) == 0 {
		return ErrReportPathRequired
	}

	encoded, encodeError := yaml.Marshal(report)
	if encodeError != nil {
		return fmt.Errorf(reportEncodeTemplateConstant, encodeError)
	}

	directory := filepath.Dir(trimmedPath)
	if mkdirError := os.MkdirAll(directory, reportDirectoryPermissions); mkdirError != nil {
		return fmt.Errorf(reportDirectoryTemplateConstant, directory, mkdirError)
	}
	if writeError := os.WriteFile(trimmedPath, encoded, reportFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(reportWriteTemplateConstant, trimmedPath, writeError)
	}
	return nil
}
