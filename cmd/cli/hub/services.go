package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/commitgate"
	"github.com/tyemirov/iteehub/internal/gitrepo"
	"github.com/tyemirov/iteehub/internal/pipeline"
	"github.com/tyemirov/iteehub/internal/utils"
	flagutils "github.com/tyemirov/iteehub/internal/utils/flags"
)

const (
	defaultRepositoryPathConstant = "."

	repositoryFlagNameConstant  = "repository"
	repositoryFlagUsageConstant = "Repository to commit and push (default from configuration)"
	backendFlagNameConstant     = "backend"
	backendFlagUsageConstant    = "Git backend: shell or native"
	remoteFlagNameConstant      = "remote"
	remoteFlagUsageConstant     = "Remote to push to (default: upstream)"
	branchFlagNameConstant      = "branch"
	branchFlagUsageConstant     = "Branch to push (default: current)"

	servicesFactoryMissingMessageConstant   = "services factory not configured"
	commitGateFactoryMissingMessageConstant = "commit gate factory not configured"
	reportWriteTemplateConstant             = "unable to write run report: %w"
	stepLineTemplateConstant                = "%-16s %-9s %s\n"
	reportWrittenMessageConstant            = "run report written"
	reportPathFieldNameConstant             = "report_file"
	releaseFailedMessageConstant            = "failed to release services"
)

var (
	// ErrServicesFactoryNotConfigured indicates a command was built without a services factory.
	ErrServicesFactoryNotConfigured = errors.New(servicesFactoryMissingMessageConstant)
	// ErrCommitGateFactoryNotConfigured indicates the commit command was built without a gate factory.
	ErrCommitGateFactoryNotConfigured = errors.New(commitGateFactoryMissingMessageConstant)
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider yields the effective hub configuration.
type ConfigurationProvider func() Configuration

// PipelineRunner executes update runs.
type PipelineRunner interface {
	Run(executionContext context.Context, options pipeline.Options) (pipeline.Report, error)
}

// CommitGate commits and pushes pending changes.
type CommitGate interface {
	Run(executionContext context.Context, options commitgate.Options) (commitgate.Result, error)
}

// ServicesRequest describes which collaborators a command needs.
type ServicesRequest struct {
	Target     utils.CommitTarget
	LargeFiles bool
	Telegram   bool
	Commit     bool
}

// Services bundles the runner with a release function for its resources.
type Services struct {
	Runner PipelineRunner
	Close  func() error
}

func (services Services) release(logger *zap.Logger) {
	if services.Close == nil {
		return
	}
	if closeError := services.Close(); closeError != nil {
		logger.Warn(releaseFailedMessageConstant, zap.Error(closeError))
	}
}

// ServicesFactory builds the runner and its collaborators.
type ServicesFactory func(executionContext context.Context, request ServicesRequest) (Services, error)

// CommitGateFactory builds a commit gate for the target repository.
type CommitGateFactory func(executionContext context.Context, target utils.CommitTarget) (CommitGate, error)

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	if logger := provider(); logger != nil {
		return logger
	}
	return zap.NewNop()
}

func resolveConfiguration(provider ConfigurationProvider) Configuration {
	if provider == nil {
		return Configuration{}.Sanitize()
	}
	return provider().Sanitize()
}

func bindCommitTargetFlags(command *cobra.Command) {
	command.Flags().String(repositoryFlagNameConstant, "", repositoryFlagUsageConstant)
	command.Flags().String(backendFlagNameConstant, "", backendFlagUsageConstant)
	command.Flags().String(remoteFlagNameConstant, "", remoteFlagUsageConstant)
	command.Flags().String(branchFlagNameConstant, "", branchFlagUsageConstant)
}

// resolveCommitTarget layers command flags over the target attached to the command context,
// falling back to the configuration when the context carries none.
func resolveCommitTarget(command *cobra.Command, configuration Configuration) utils.CommitTarget {
	target := configuration.Target
	if command != nil {
		if contextTarget, found := utils.NewCommandContextAccessor().CommitTarget(command.Context()); found {
			target = contextTarget
		}
	}

	flagutils.OverrideString(command, repositoryFlagNameConstant, &target.RepositoryPath)
	flagutils.OverrideString(command, backendFlagNameConstant, &target.Backend)
	flagutils.OverrideString(command, remoteFlagNameConstant, &target.Remote)
	flagutils.OverrideString(command, branchFlagNameConstant, &target.Branch)

	target.RepositoryPath = strings.TrimSpace(target.RepositoryPath)
	if len(target.RepositoryPath) == 0 {
		target.RepositoryPath = defaultRepositoryPathConstant
	}
	target.Backend = strings.ToLower(strings.TrimSpace(target.Backend))
	return target
}

func commitGateOptions(target utils.CommitTarget) commitgate.Options {
	return commitgate.Options{
		RepositoryPath: target.RepositoryPath,
		Target: gitrepo.PushTarget{
			Remote: strings.TrimSpace(target.Remote),
			Branch: strings.TrimSpace(target.Branch),
		},
	}
}

func printReport(output io.Writer, report pipeline.Report) {
	for _, step := range report.Steps {
		fmt.Fprintf(output, stepLineTemplateConstant, step.Name, step.Status, step.Reason)
	}
}

func writeReport(logger *zap.Logger, reportPath string, report pipeline.Report) error {
	if len(reportPath) == 0 {
		return nil
	}
	if writeError := pipeline.WriteReport(reportPath, report); writeError != nil {
		return fmt.Errorf(reportWriteTemplateConstant, writeError)
	}
	logger.Debug(reportWrittenMessageConstant, zap.String(reportPathFieldNameConstant, reportPath))
	return nil
}
