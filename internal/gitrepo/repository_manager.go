package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tyemirov/iteehub/internal/execshell"
)

const (
	gitStatusSubcommandConstant               = "status"
	gitStatusPorcelainFlagConstant            = "--porcelain"
	gitConfigSubcommandConstant               = "config"
	gitUserNameKeyConstant                    = "user.name"
	gitUserEmailKeyConstant                   = "user.email"
	gitAddSubcommandConstant                  = "add"
	gitAddAllFlagConstant                     = "-A"
	gitCommitSubcommandConstant               = "commit"
	gitMessageFlagConstant                    = "-m"
	gitPushSubcommandConstant                 = "push"
	gitLFSSubcommandConstant                  = "lfs"
	gitPullSubcommandConstant                 = "pull"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitAbbrevRefFlagConstant                  = "--abbrev-ref"
	gitHeadReferenceConstant                  = "HEAD"
	gitTerminalPromptEnvironmentNameConstant  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisableValueConstant     = "0"
	repositoryPathFieldNameConstant           = "repository_path"
	identityNameFieldNameConstant             = "identity_name"
	identityEmailFieldNameConstant            = "identity_email"
	commitMessageFieldNameConstant            = "commit_message"
	requiredValueMessageConstant              = "value required"
	executorNotConfiguredMessageConstant      = "git executor not configured"
	repositoryOperationErrorTemplateConstant  = "%s operation failed"
	repositoryOperationErrorWithCauseConstant = "%s operation failed: %s"
	invalidRepositoryInputTemplateConstant    = "%s: %s"
	worktreeStatusOperationNameConstant       = RepositoryOperationName("WorktreeStatus")
	configureIdentityOperationNameConstant    = RepositoryOperationName("ConfigureIdentity")
	stageAllOperationNameConstant             = RepositoryOperationName("StageAll")
	commitOperationNameConstant               = RepositoryOperationName("Commit")
	pushOperationNameConstant                 = RepositoryOperationName("Push")
	pullLargeFilesOperationNameConstant       = RepositoryOperationName("PullLargeFiles")
	currentBranchOperationNameConstant        = RepositoryOperationName("GetCurrentBranch")
	headCommitOperationNameConstant           = RepositoryOperationName("HeadCommit")
)

// GitCommandExecutor exposes the subset of execshell functionality required by RepositoryManager.
type GitCommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager coordinates Git operations through execshell.
type RepositoryManager struct {
	executor GitCommandExecutor
}

var (
	// ErrGitExecutorNotConfigured indicates the RepositoryManager was constructed without a git executor.
	ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidRepositoryInputError indicates validation failures for repository operations.
type InvalidRepositoryInputError struct {
	FieldName string
	Message   string
}

// Error describes the validation failure.
func (inputError InvalidRepositoryInputError) Error() string {
	return fmt.Sprintf(invalidRepositoryInputTemplateConstant, inputError.FieldName, inputError.Message)
}

// RepositoryOperationName captures descriptive names for repository operations.
type RepositoryOperationName string

// RepositoryOperationError wraps execution failures for git operations.
type RepositoryOperationError struct {
	Operation RepositoryOperationName
	Cause     error
}

// Error describes the repository operation failure.
func (operationError RepositoryOperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(repositoryOperationErrorTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(repositoryOperationErrorWithCauseConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying error.
func (operationError RepositoryOperationError) Unwrap() error {
	return operationError.Cause
}

// Identity is the author recorded in the repository configuration.
type Identity struct {
	Name  string
	Email string
}

// PushTarget selects where Push sends commits. Empty fields defer to git's upstream configuration.
type PushTarget struct {
	Remote string
	Branch string
}

// NewRepositoryManager constructs a RepositoryManager for the provided executor.
func NewRepositoryManager(executor GitCommandExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// WorktreeStatus returns the porcelain status entries for the repository.
func (manager *RepositoryManager) WorktreeStatus(executionContext context.Context, repositoryPath string) ([]string, error) {
	executionResult, executionError := manager.run(executionContext, worktreeStatusOperationNameConstant, repositoryPath, gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant)
	if executionError != nil {
		return nil, executionError
	}
	return ParsePorcelainEntries(executionResult.StandardOutput), nil
}

// ConfigureIdentity writes user.name and user.email into the repository configuration.
func (manager *RepositoryManager) ConfigureIdentity(executionContext context.Context, repositoryPath string, identity Identity) error {
	trimmedName := strings.TrimSpace(identity.Name)
	if len(trimmedName) == 0 {
		return InvalidRepositoryInputError{FieldName: identityNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedEmail := strings.TrimSpace(identity.Email)
	if len(trimmedEmail) == 0 {
		return InvalidRepositoryInputError{FieldName: identityEmailFieldNameConstant, Message: requiredValueMessageConstant}
	}

	if _, nameError := manager.run(executionContext, configureIdentityOperationNameConstant, repositoryPath, gitConfigSubcommandConstant, gitUserNameKeyConstant, trimmedName); nameError != nil {
		return nameError
	}
	_, emailError := manager.run(executionContext, configureIdentityOperationNameConstant, repositoryPath, gitConfigSubcommandConstant, gitUserEmailKeyConstant, trimmedEmail)
	return emailError
}

// StageAll stages every modification, addition, and deletion in the worktree.
func (manager *RepositoryManager) StageAll(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.run(executionContext, stageAllOperationNameConstant, repositoryPath, gitAddSubcommandConstant, gitAddAllFlagConstant)
	return executionError
}

// Commit records the staged changes with the provided message.
func (manager *RepositoryManager) Commit(executionContext context.Context, repositoryPath string, message string) error {
	if len(strings.TrimSpace(message)) == 0 {
		return InvalidRepositoryInputError{FieldName: commitMessageFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := manager.run(executionContext, commitOperationNameConstant, repositoryPath, gitCommitSubcommandConstant, gitMessageFlagConstant, message)
	return executionError
}

// Push publishes the current branch. A branch without a remote falls back to a plain `git push`.
func (manager *RepositoryManager) Push(executionContext context.Context, repositoryPath string, target PushTarget) error {
	arguments := []string{gitPushSubcommandConstant}
	trimmedRemote := strings.TrimSpace(target.Remote)
	if len(trimmedRemote) > 0 {
		arguments = append(arguments, trimmedRemote)
		trimmedBranch := strings.TrimSpace(target.Branch)
		if len(trimmedBranch) == 0 {
			trimmedBranch = gitHeadReferenceConstant
		}
		arguments = append(arguments, trimmedBranch)
	}
	_, executionError := manager.run(executionContext, pushOperationNameConstant, repositoryPath, arguments...)
	return executionError
}

// PullLargeFiles downloads large-file content for the checked out revision.
func (manager *RepositoryManager) PullLargeFiles(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.run(executionContext, pullLargeFilesOperationNameConstant, repositoryPath, gitLFSSubcommandConstant, gitPullSubcommandConstant)
	return executionError
}

// GetCurrentBranch resolves the current branch name.
func (manager *RepositoryManager) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := manager.run(executionContext, currentBranchOperationNameConstant, repositoryPath, gitRevParseSubcommandConstant, gitAbbrevRefFlagConstant, gitHeadReferenceConstant)
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// HeadCommit resolves the commit hash HEAD points to.
func (manager *RepositoryManager) HeadCommit(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := manager.run(executionContext, headCommitOperationNameConstant, repositoryPath, gitRevParseSubcommandConstant, gitHeadReferenceConstant)
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

func (manager *RepositoryManager) run(executionContext context.Context, operation RepositoryOperationName, repositoryPath string, arguments ...string) (execshell.ExecutionResult, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return execshell.ExecutionResult{}, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     trimmedPath,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptDisableValueConstant},
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return execshell.ExecutionResult{}, RepositoryOperationError{Operation: operation, Cause: executionError}
	}
	return executionResult, nil
}

// ParsePorcelainEntries splits `git status --porcelain` output into non-empty entries.
func ParsePorcelainEntries(output string) []string {
	trimmedOutput := strings.TrimSpace(output)
	if len(trimmedOutput) == 0 {
		return nil
	}

	lines := strings.Split(trimmedOutput, "\n")
	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); len(trimmed) > 0 {
			entries = append(entries, trimmed)
		}
	}
	return entries
}
