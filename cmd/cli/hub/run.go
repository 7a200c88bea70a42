package hub

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/pipeline"
	"github.com/tyemirov/iteehub/internal/utils"
	flagutils "github.com/tyemirov/iteehub/internal/utils/flags"
)

const (
	runCommandUseConstant              = "run"
	runCommandShortDescriptionConstant = "Run the full update workflow once"
	runCommandLongDescriptionConstant  = "run performs one manual dispatch of the update workflow: large-file pull, question and result updates, Telegram delivery when a chat is configured, and the commit gate."
	chatIDFlagNameConstant             = "chat-id"
	chatIDFlagUsageConstant            = "Chat receiving new archives (default from configuration)"
	skipLargeFilesFlagNameConstant     = "skip-lfs"
	skipLargeFilesFlagUsageConstant    = "Skip git lfs pull"
	skipCommitFlagNameConstant         = "skip-commit"
	skipCommitFlagUsageConstant        = "Skip the commit gate"
)

// RunCommandBuilder assembles the run command.
type RunCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	ServicesFactory       ServicesFactory
}

// Build constructs the run command.
func (builder *RunCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   runCommandUseConstant,
		Short: runCommandShortDescriptionConstant,
		Long:  runCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(chatIDFlagNameConstant, "", chatIDFlagUsageConstant)
	command.Flags().Bool(skipLargeFilesFlagNameConstant, false, skipLargeFilesFlagUsageConstant)
	command.Flags().Bool(skipCommitFlagNameConstant, false, skipCommitFlagUsageConstant)
	command.Flags().Bool(refreshFlagNameConstant, false, refreshFlagUsageConstant)
	bindCommitTargetFlags(command)

	return command, nil
}

func (builder *RunCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if builder.ServicesFactory == nil {
		return ErrServicesFactoryNotConfigured
	}

	configuration := resolveConfiguration(builder.ConfigurationProvider)
	logger := resolveLogger(builder.LoggerProvider)
	target := resolveCommitTarget(command, configuration)
	options := workflowOptions(command, configuration, target)

	services, servicesError := builder.ServicesFactory(command.Context(), workflowRequest(options, target))
	if servicesError != nil {
		return servicesError
	}
	defer services.release(logger)

	report, runError := executeWorkflow(command.Context(), logger, services.Runner, options, configuration.ReportFile)
	printReport(command.OutOrStdout(), report)
	return runError
}

// workflowOptions combines the configured steps with the skip, chat and refresh flags.
func workflowOptions(command *cobra.Command, configuration Configuration, target utils.CommitTarget) pipeline.Options {
	chatID := configuration.ChatID
	flagutils.OverrideString(command, chatIDFlagNameConstant, &chatID)

	skipLargeFiles, _, _ := flagutils.BoolFlag(command, skipLargeFilesFlagNameConstant)
	skipCommit, _, _ := flagutils.BoolFlag(command, skipCommitFlagNameConstant)
	refresh, _, _ := flagutils.BoolFlag(command, refreshFlagNameConstant)

	return pipeline.Options{
		RepositoryPath:    target.RepositoryPath,
		PullLargeFiles:    configuration.PullLargeFiles && !skipLargeFiles,
		UpdateQuestions:   configuration.UpdateQuestions,
		QuestionPageURLs:  configuration.QuestionPageURLs,
		UpdateResults:     configuration.UpdateResults,
		ResultPageURL:     configuration.ResultPageURL,
		Refresh:           refresh,
		ChatID:            strings.TrimSpace(chatID),
		Commit:            configuration.Commit && !skipCommit,
		CommitGateOptions: commitGateOptions(target),
	}
}

func workflowRequest(options pipeline.Options, target utils.CommitTarget) ServicesRequest {
	return ServicesRequest{
		Target:     target,
		LargeFiles: options.PullLargeFiles,
		Telegram:   len(options.ChatID) > 0,
		Commit:     options.Commit,
	}
}

// executeWorkflow runs the pipeline and stores the report even when a step failed.
func executeWorkflow(executionContext context.Context, logger *zap.Logger, runner PipelineRunner, options pipeline.Options, reportPath string) (pipeline.Report, error) {
	report, runError := runner.Run(executionContext, options)
	if len(report.RunID) == 0 {
		return report, runError
	}
	writeError := writeReport(logger, reportPath, report)
	return report, errors.Join(runError, writeError)
}
