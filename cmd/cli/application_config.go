package cli

import (
	"strings"
	"time"

	"github.com/tyemirov/iteehub/cmd/cli/hub"
	"github.com/tyemirov/iteehub/internal/utils"
)

// ApplicationConfiguration describes the persisted configuration for the iteehub CLI.
type ApplicationConfiguration struct {
	Common   ApplicationCommonConfiguration   `mapstructure:"common"`
	Data     ApplicationDataConfiguration     `mapstructure:"data"`
	Sources  ApplicationSourcesConfiguration  `mapstructure:"sources"`
	Telegram ApplicationTelegramConfiguration `mapstructure:"telegram"`
	Commit   ApplicationCommitConfiguration   `mapstructure:"commit"`
	Schedule ApplicationScheduleConfiguration `mapstructure:"schedule"`
}

// ApplicationCommonConfiguration stores logging defaults shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=structured console"`
	LogFile   string `mapstructure:"log_file"`
}

// ApplicationDataConfiguration locates the archive tree and its database.
type ApplicationDataConfiguration struct {
	Directory string `mapstructure:"directory" validate:"required"`
	Database  string `mapstructure:"database" validate:"required"`
}

// ApplicationSourcesConfiguration lists the ITPEC pages and HTTP settings.
type ApplicationSourcesConfiguration struct {
	FEQuestionsURL string        `mapstructure:"fe_questions_url" validate:"required,url"`
	IPQuestionsURL string        `mapstructure:"ip_questions_url" validate:"omitempty,url"`
	ResultsURL     string        `mapstructure:"results_url" validate:"required,url"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ApplicationTelegramConfiguration holds Bot API credentials and pacing.
type ApplicationTelegramConfiguration struct {
	Token           string        `mapstructure:"token"`
	ChatID          string        `mapstructure:"chat_id"`
	APIEndpoint     string        `mapstructure:"api_endpoint"`
	MessageInterval time.Duration `mapstructure:"message_interval" validate:"gte=0"`
}

// ApplicationCommitConfiguration configures the commit gate. Commits are always authored by
// the github-actions bot identity.
type ApplicationCommitConfiguration struct {
	Repository string `mapstructure:"repository" validate:"required"`
	Backend    string `mapstructure:"backend" validate:"omitempty,oneof=shell native"`
	Remote     string `mapstructure:"remote"`
	Branch     string `mapstructure:"branch"`
	Token      string `mapstructure:"token"`
}

// ApplicationScheduleConfiguration selects the steps and cadence of scheduled runs.
type ApplicationScheduleConfiguration struct {
	Cron            string `mapstructure:"cron" validate:"required"`
	LargeFilePull   bool   `mapstructure:"lfs_pull"`
	UpdateQuestions bool   `mapstructure:"update_questions"`
	UpdateResults   bool   `mapstructure:"update_results"`
	Commit          bool   `mapstructure:"commit"`
	ReportFile      string `mapstructure:"report_file"`
}

type configurationInitializationPlan struct {
	DirectoryPath string
	FilePath      string
}

func (configuration ApplicationConfiguration) commitTarget() utils.CommitTarget {
	return utils.CommitTarget{
		RepositoryPath: configuration.Commit.Repository,
		Backend:        configuration.Commit.Backend,
		Remote:         configuration.Commit.Remote,
		Branch:         configuration.Commit.Branch,
	}
}

func (configuration ApplicationConfiguration) questionPageURLs() []string {
	pageURLs := make([]string, 0, 2)
	for _, candidate := range []string{configuration.Sources.FEQuestionsURL, configuration.Sources.IPQuestionsURL} {
		if trimmed := strings.TrimSpace(candidate); len(trimmed) > 0 {
			pageURLs = append(pageURLs, trimmed)
		}
	}
	return pageURLs
}

func (configuration ApplicationConfiguration) hubConfiguration() hub.Configuration {
	return hub.Configuration{
		QuestionPageURLs: configuration.questionPageURLs(),
		ResultPageURL:    configuration.Sources.ResultsURL,
		ChatID:           configuration.Telegram.ChatID,
		Target:           configuration.commitTarget(),
		CronExpression:   configuration.Schedule.Cron,
		ReportFile:       configuration.Schedule.ReportFile,
		PullLargeFiles:   configuration.Schedule.LargeFilePull,
		UpdateQuestions:  configuration.Schedule.UpdateQuestions,
		UpdateResults:    configuration.Schedule.UpdateResults,
		Commit:           configuration.Schedule.Commit,
	}.Sanitize()
}
