package hub

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tyemirov/iteehub/internal/scheduler"
	flagutils "github.com/tyemirov/iteehub/internal/utils/flags"
)

const (
	scheduleCommandUseConstant              = "schedule"
	scheduleCommandShortDescriptionConstant = "Run the update workflow on a cron schedule"
	scheduleCommandLongDescriptionConstant  = "schedule keeps running and triggers the update workflow on a five-field cron expression evaluated in UTC (twice daily by default). A tick is skipped while the previous run is still active. SIGINT or SIGTERM stops the scheduler after the active run finishes."
	cronFlagNameConstant                    = "cron"
	cronFlagUsageConstant                   = "Cron expression (default from configuration)"
	nowFlagNameConstant                     = "now"
	nowFlagUsageConstant                    = "Run once immediately before waiting for the first tick"
)

// ScheduleCommandBuilder assembles the schedule command.
type ScheduleCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	ServicesFactory       ServicesFactory
}

// Build constructs the schedule command.
func (builder *ScheduleCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   scheduleCommandUseConstant,
		Short: scheduleCommandShortDescriptionConstant,
		Long:  scheduleCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(cronFlagNameConstant, "", cronFlagUsageConstant)
	command.Flags().Bool(nowFlagNameConstant, false, nowFlagUsageConstant)
	command.Flags().String(chatIDFlagNameConstant, "", chatIDFlagUsageConstant)
	command.Flags().Bool(skipLargeFilesFlagNameConstant, false, skipLargeFilesFlagUsageConstant)
	command.Flags().Bool(skipCommitFlagNameConstant, false, skipCommitFlagUsageConstant)
	command.Flags().Bool(refreshFlagNameConstant, false, refreshFlagUsageConstant)
	bindCommitTargetFlags(command)

	return command, nil
}

func (builder *ScheduleCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if builder.ServicesFactory == nil {
		return ErrServicesFactoryNotConfigured
	}

	configuration := resolveConfiguration(builder.ConfigurationProvider)
	logger := resolveLogger(builder.LoggerProvider)

	expression := configuration.CronExpression
	flagutils.OverrideString(command, cronFlagNameConstant, &expression)
	if _, parseError := scheduler.ParseExpression(expression); parseError != nil {
		return parseError
	}
	runImmediately, _, _ := flagutils.BoolFlag(command, nowFlagNameConstant)

	target := resolveCommitTarget(command, configuration)
	options := workflowOptions(command, configuration, target)

	signalContext, stopSignals := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	services, servicesError := builder.ServicesFactory(signalContext, workflowRequest(options, target))
	if servicesError != nil {
		return servicesError
	}
	defer services.release(logger)

	cronScheduler, schedulerError := scheduler.NewScheduler(scheduler.Dependencies{
		Job: func(executionContext context.Context) error {
			_, runError := executeWorkflow(executionContext, logger, services.Runner, options, configuration.ReportFile)
			return runError
		},
		Logger: logger,
	})
	if schedulerError != nil {
		return schedulerError
	}

	return cronScheduler.Run(signalContext, scheduler.Options{
		Expression:     expression,
		RunImmediately: runImmediately,
	})
}
