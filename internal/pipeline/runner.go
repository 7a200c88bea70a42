// Package pipeline runs the archive update job: pull tracked large files, refresh question and
// result archives, post new archives to Telegram, and commit the data directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/commitgate"
	"github.com/tyemirov/iteehub/internal/telegram"
	"github.com/tyemirov/iteehub/internal/updater"
)

// Step names in execution order.
const (
	StepLargeFilePullConstant   = "lfs-pull"
	StepUpdateQuestionsConstant = "update-questions"
	StepUpdateResultsConstant   = "update-results"
	StepUpdateTelegramConstant  = "update-telegram"
	StepCommitConstant          = "commit"
)

const (
	updaterMissingMessageConstant = "archive updater not configured"
	loggerMissingMessageConstant  = "logger not configured"
	stepNotConfiguredTemplate     = "step %s is enabled but its collaborator is not configured"
	stepFailureTemplateConstant   = "step %s failed: %w"
	runStartedMessageConstant     = "starting run"
	runCompletedMessageConstant   = "run completed"
	runFailedMessageConstant      = "run failed"
	stepStartedMessageConstant    = "starting step"
	stepCompletedMessageConstant  = "step completed"
	stepSkippedMessageConstant    = "step skipped"
	stepFailedMessageConstant     = "step failed"
	runIDFieldNameConstant        = "run_id"
	stepFieldNameConstant         = "step"
	durationFieldNameConstant     = "duration"
	reasonFieldNameConstant       = "reason"
	summaryDiscoveredKeyConstant  = "discovered"
	summaryDownloadedKeyConstant  = "downloaded"
	summarySkippedKeyConstant     = "skipped"
	summaryFailedKeyConstant      = "failed"
	summaryPendingKeyConstant     = "pending"
	summarySentKeyConstant        = "sent"
	summaryRejectedKeyConstant    = "rejected"
	summaryChangesKeyConstant     = "changes"
	disabledStepReasonConstant    = "disabled"
	noChatStepReasonConstant      = "no chat configured"
	previousFailureReasonConstant = "previous step failed"
	noQuestionPagesReasonConstant = "no question pages configured"
	noResultPageReasonConstant    = "no result page configured"
)

var (
	// ErrUpdaterNotConfigured indicates the Runner was constructed without an archive updater.
	ErrUpdaterNotConfigured = errors.New(updaterMissingMessageConstant)
	// ErrLoggerNotConfigured indicates the Runner was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
)

// StepNotConfiguredError reports an enabled step whose collaborator is missing.
type StepNotConfiguredError struct {
	Step string
}

// Error describes the missing collaborator.
func (configurationError StepNotConfiguredError) Error() string {
	return fmt.Sprintf(stepNotConfiguredTemplate, configurationError.Step)
}

// LargeFilePuller fetches large-file content for the repository.
type LargeFilePuller interface {
	PullLargeFiles(executionContext context.Context, repositoryPath string) error
}

// ArchiveUpdater refreshes local archives from ITPEC pages.
type ArchiveUpdater interface {
	UpdateQuestions(executionContext context.Context, pageURL string, refresh bool) (updater.Summary, error)
	UpdateResults(executionContext context.Context, pageURL string, refresh bool) (updater.Summary, error)
}

// ChatNotifier posts pending archives to a chat.
type ChatNotifier interface {
	Update(executionContext context.Context, chatID string) (telegram.Summary, error)
}

// CommitGate commits and pushes pending changes.
type CommitGate interface {
	Run(executionContext context.Context, options commitgate.Options) (commitgate.Result, error)
}

// Dependencies enumerates collaborators required by the Runner. LargeFiles, Notifier and
// Committer are only needed when the corresponding steps are enabled.
type Dependencies struct {
	LargeFiles LargeFilePuller
	Updater    ArchiveUpdater
	Notifier   ChatNotifier
	Committer  CommitGate
	Logger     *zap.Logger
	Clock      func() time.Time
	NewRunID   func() string
}

// Options selects the steps of a run.
type Options struct {
	RepositoryPath    string
	PullLargeFiles    bool
	UpdateQuestions   bool
	QuestionPageURLs  []string
	UpdateResults     bool
	ResultPageURL     string
	Refresh           bool
	ChatID            string
	Commit            bool
	CommitGateOptions commitgate.Options
}

// Runner executes update runs.
type Runner struct {
	largeFiles LargeFilePuller
	updater    ArchiveUpdater
	notifier   ChatNotifier
	committer  CommitGate
	logger     *zap.Logger
	clock      func() time.Time
	newRunID   func() string
}

type stepFunc func(executionContext context.Context, report *StepReport) error

type plannedStep struct {
	name       string
	skipReason string
	run        stepFunc
}

// NewRunner validates dependencies and returns a Runner.
func NewRunner(dependencies Dependencies) (*Runner, error) {
	if dependencies.Updater == nil {
		return nil, ErrUpdaterNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}
	newRunID := dependencies.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	return &Runner{
		largeFiles: dependencies.LargeFiles,
		updater:    dependencies.Updater,
		notifier:   dependencies.Notifier,
		committer:  dependencies.Committer,
		logger:     dependencies.Logger,
		clock:      clock,
		newRunID:   newRunID,
	}, nil
}

// Run executes the enabled steps in order. The first failing step stops the run; later steps
// are reported as skipped and the returned report is complete either way.
func (runner *Runner) Run(executionContext context.Context, options Options) (Report, error) {
	steps, planError := runner.plan(options)
	if planError != nil {
		return Report{}, planError
	}

	report := Report{RunID: runner.newRunID(), StartedAt: runner.clock().UTC()}
	runLogger := runner.logger.With(zap.String(runIDFieldNameConstant, report.RunID))
	runLogger.Info(runStartedMessageConstant)

	var runError error
	for _, step := range steps {
		stepReport := StepReport{Name: step.name}
		switch {
		case runError != nil:
			stepReport.Status = StepStatusSkipped
			stepReport.Reason = previousFailureReasonConstant
		case len(step.skipReason) > 0:
			stepReport.Status = StepStatusSkipped
			stepReport.Reason = step.skipReason
			runLogger.Debug(stepSkippedMessageConstant, zap.String(stepFieldNameConstant, step.name), zap.String(reasonFieldNameConstant, step.skipReason))
		default:
			runError = runner.execute(executionContext, runLogger, step, &stepReport)
		}
		report.Steps = append(report.Steps, stepReport)
	}

	report.FinishedAt = runner.clock().UTC()
	if runError != nil {
		report.Error = runError.Error()
		runLogger.Error(runFailedMessageConstant, zap.Error(runError))
		return report, runError
	}
	runLogger.Info(runCompletedMessageConstant, zap.Duration(durationFieldNameConstant, report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (runner *Runner) execute(executionContext context.Context, runLogger *zap.Logger, step plannedStep, stepReport *StepReport) error {
	stepLogger := runLogger.With(zap.String(stepFieldNameConstant, step.name))
	stepLogger.Info(stepStartedMessageConstant)

	startedAt := runner.clock()
	stepError := executionContext.Err()
	if stepError == nil {
		stepError = step.run(executionContext, stepReport)
	}
	stepReport.Duration = runner.clock().Sub(startedAt)

	if stepError != nil {
		stepReport.Status = StepStatusFailed
		stepReport.Reason = stepError.Error()
		stepLogger.Error(stepFailedMessageConstant, zap.Error(stepError))
		return fmt.Errorf(stepFailureTemplateConstant, step.name, stepError)
	}
	stepReport.Status = StepStatusSucceeded
	stepLogger.Info(stepCompletedMessageConstant, zap.Duration(durationFieldNameConstant, stepReport.Duration))
	return nil
}

func (runner *Runner) plan(options Options) ([]plannedStep, error) {
	if options.PullLargeFiles && runner.largeFiles == nil {
		return nil, StepNotConfiguredError{Step: StepLargeFilePullConstant}
	}
	chatID := strings.TrimSpace(options.ChatID)
	if len(chatID) > 0 && runner.notifier == nil {
		return nil, StepNotConfiguredError{Step: StepUpdateTelegramConstant}
	}
	if options.Commit && runner.committer == nil {
		return nil, StepNotConfiguredError{Step: StepCommitConstant}
	}

	questionPages := make([]string, 0, len(options.QuestionPageURLs))
	for _, pageURL := range options.QuestionPageURLs {
		if trimmed := strings.TrimSpace(pageURL); len(trimmed) > 0 {
			questionPages = append(questionPages, trimmed)
		}
	}
	resultPage := strings.TrimSpace(options.ResultPageURL)

	return []plannedStep{
		{
			name:       StepLargeFilePullConstant,
			skipReason: disabledReason(options.PullLargeFiles, disabledStepReasonConstant),
			run: func(executionContext context.Context, _ *StepReport) error {
				return runner.largeFiles.PullLargeFiles(executionContext, options.RepositoryPath)
			},
		},
		{
			name:       StepUpdateQuestionsConstant,
			skipReason: firstReason(disabledReason(options.UpdateQuestions, disabledStepReasonConstant), disabledReason(len(questionPages) > 0, noQuestionPagesReasonConstant)),
			run: func(executionContext context.Context, stepReport *StepReport) error {
				total := updater.Summary{}
				for _, pageURL := range questionPages {
					summary, updateError := runner.updater.UpdateQuestions(executionContext, pageURL, options.Refresh)
					total = total.Add(summary)
					if updateError != nil {
						stepReport.Summary = archiveCounts(total)
						return updateError
					}
				}
				stepReport.Summary = archiveCounts(total)
				return nil
			},
		},
		{
			name:       StepUpdateResultsConstant,
			skipReason: firstReason(disabledReason(options.UpdateResults, disabledStepReasonConstant), disabledReason(len(resultPage) > 0, noResultPageReasonConstant)),
			run: func(executionContext context.Context, stepReport *StepReport) error {
				summary, updateError := runner.updater.UpdateResults(executionContext, resultPage, options.Refresh)
				stepReport.Summary = archiveCounts(summary)
				return updateError
			},
		},
		{
			name:       StepUpdateTelegramConstant,
			skipReason: disabledReason(len(chatID) > 0, noChatStepReasonConstant),
			run: func(executionContext context.Context, stepReport *StepReport) error {
				summary, notifyError := runner.notifier.Update(executionContext, chatID)
				stepReport.Summary = map[string]int{
					summaryPendingKeyConstant:  summary.Pending,
					summarySentKeyConstant:     summary.Sent,
					summaryRejectedKeyConstant: summary.Rejected,
					summarySkippedKeyConstant:  summary.Skipped,
				}
				return notifyError
			},
		},
		{
			name:       StepCommitConstant,
			skipReason: disabledReason(options.Commit, disabledStepReasonConstant),
			run: func(executionContext context.Context, stepReport *StepReport) error {
				result, commitError := runner.committer.Run(executionContext, options.CommitGateOptions)
				if commitError != nil {
					return commitError
				}
				stepReport.Summary = map[string]int{summaryChangesKeyConstant: result.ChangeCount}
				stepReport.Commit = &CommitReport{
					RepositoryPath: result.RepositoryPath,
					Committed:      result.Committed,
					Pushed:         result.Pushed,
					Message:        result.Message,
					Revision:       result.Revision,
					Branch:         result.Branch,
				}
				return nil
			},
		},
	}, nil
}

func archiveCounts(summary updater.Summary) map[string]int {
	return map[string]int{
		summaryDiscoveredKeyConstant: summary.Discovered,
		summaryDownloadedKeyConstant: summary.Downloaded,
		summarySkippedKeyConstant:    summary.Skipped,
		summaryFailedKeyConstant:     summary.Failed,
	}
}

func disabledReason(enabled bool, reason string) string {
	if enabled {
		return ""
	}
	return reason
}

func firstReason(reasons ...string) string {
	for _, reason := range reasons {
		if len(reason) > 0 {
			return reason
		}
	}
	return ""
}
