package hub

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	commitCommandUseConstant              = "commit"
	commitCommandShortDescriptionConstant = "Commit and push archive changes when the worktree is dirty"
	commitCommandLongDescriptionConstant  = "commit counts pending changes and exits successfully when there are none. Otherwise it sets the github-actions[bot] identity, stages everything, commits with an \"updated on <UTC time>\" message, and pushes."
	commitPushedTemplateConstant          = "%s: %s (%d changes) %s pushed to %s\n"
	shortRevisionLengthConstant           = 7
	detachedBranchLabelConstant           = "HEAD"
	commitCleanTemplateConstant           = "%s: no changes to commit\n"
)

// CommitCommandBuilder assembles the commit command.
type CommitCommandBuilder struct {
	ConfigurationProvider ConfigurationProvider
	CommitGateFactory     CommitGateFactory
}

// Build constructs the commit command.
func (builder *CommitCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commitCommandUseConstant,
		Short: commitCommandShortDescriptionConstant,
		Long:  commitCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	bindCommitTargetFlags(command)
	return command, nil
}

func (builder *CommitCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if builder.CommitGateFactory == nil {
		return ErrCommitGateFactoryNotConfigured
	}

	configuration := resolveConfiguration(builder.ConfigurationProvider)
	target := resolveCommitTarget(command, configuration)

	gate, gateError := builder.CommitGateFactory(command.Context(), target)
	if gateError != nil {
		return gateError
	}

	result, runError := gate.Run(command.Context(), commitGateOptions(target))
	if runError != nil {
		return runError
	}

	if result.Committed {
		branch := result.Branch
		if len(branch) == 0 {
			branch = detachedBranchLabelConstant
		}
		fmt.Fprintf(command.OutOrStdout(), commitPushedTemplateConstant, result.RepositoryPath, result.Message, result.ChangeCount, shortRevision(result.Revision), branch)
		return nil
	}
	fmt.Fprintf(command.OutOrStdout(), commitCleanTemplateConstant, result.RepositoryPath)
	return nil
}

func shortRevision(revision string) string {
	if len(revision) > shortRevisionLengthConstant {
		return revision[:shortRevisionLengthConstant]
	}
	return revision
}
