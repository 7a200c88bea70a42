// Package hub builds the archive maintenance commands: update, commit, run and schedule.
package hub

import (
	"strings"

	"github.com/tyemirov/iteehub/internal/scheduler"
	"github.com/tyemirov/iteehub/internal/utils"
)

// Configuration captures the settings shared by the hub commands.
type Configuration struct {
	QuestionPageURLs []string
	ResultPageURL    string
	ChatID           string
	Target           utils.CommitTarget
	CronExpression   string
	ReportFile       string
	PullLargeFiles   bool
	UpdateQuestions  bool
	UpdateResults    bool
	Commit           bool
}

// Sanitize trims values and drops empty question pages.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.QuestionPageURLs = nil
	for _, pageURL := range configuration.QuestionPageURLs {
		trimmed := strings.TrimSpace(pageURL)
		if len(trimmed) > 0 {
			sanitized.QuestionPageURLs = append(sanitized.QuestionPageURLs, trimmed)
		}
	}
	sanitized.ResultPageURL = strings.TrimSpace(configuration.ResultPageURL)
	sanitized.ChatID = strings.TrimSpace(configuration.ChatID)
	sanitized.Target = utils.CommitTarget{
		RepositoryPath: strings.TrimSpace(configuration.Target.RepositoryPath),
		Backend:        strings.ToLower(strings.TrimSpace(configuration.Target.Backend)),
		Remote:         strings.TrimSpace(configuration.Target.Remote),
		Branch:         strings.TrimSpace(configuration.Target.Branch),
	}
	if len(sanitized.Target.RepositoryPath) == 0 {
		sanitized.Target.RepositoryPath = defaultRepositoryPathConstant
	}
	sanitized.CronExpression = strings.TrimSpace(configuration.CronExpression)
	if len(sanitized.CronExpression) == 0 {
		sanitized.CronExpression = scheduler.DefaultExpressionConstant
	}
	sanitized.ReportFile = strings.TrimSpace(configuration.ReportFile)
	return sanitized
}
