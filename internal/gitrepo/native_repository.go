package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	defaultRemoteNameConstant           = "origin"
	tokenAuthenticationUserConstant     = "x-access-token"
	refSpecTemplateConstant             = "%s:%s"
	porcelainEntryTemplateConstant      = "%c%c %s"
	untrackedPorcelainPrefixConstant    = "??"
	largeFilesUnsupportedMessage        = "large-file pulls require the git executable"
	detachedHeadMessageConstant         = "HEAD is not on a branch"
	openRepositoryOperationNameConstant = RepositoryOperationName("OpenRepository")
)

// ErrLargeFilesUnsupported indicates the in-process backend cannot fetch large-file content.
var ErrLargeFilesUnsupported = errors.New(largeFilesUnsupportedMessage)

// ErrDetachedHead indicates a push was requested without a branch while HEAD is detached.
var ErrDetachedHead = errors.New(detachedHeadMessageConstant)

// NativeRepository performs repository operations in-process through go-git.
type NativeRepository struct {
	token string
	now   func() time.Time
}

// NativeRepositoryOption customizes NativeRepository construction.
type NativeRepositoryOption func(*NativeRepository)

// WithPushToken authenticates HTTPS pushes with the provided token.
func WithPushToken(token string) NativeRepositoryOption {
	return func(repository *NativeRepository) {
		repository.token = strings.TrimSpace(token)
	}
}

// WithSignatureClock overrides the time source used for commit signatures.
func WithSignatureClock(now func() time.Time) NativeRepositoryOption {
	return func(repository *NativeRepository) {
		if now != nil {
			repository.now = now
		}
	}
}

// NewNativeRepository constructs the go-git backed repository implementation.
func NewNativeRepository(options ...NativeRepositoryOption) *NativeRepository {
	repository := &NativeRepository{now: time.Now}
	for _, option := range options {
		option(repository)
	}
	return repository
}

// WorktreeStatus returns status entries rendered in porcelain form, sorted by path.
func (native *NativeRepository) WorktreeStatus(executionContext context.Context, repositoryPath string) ([]string, error) {
	_, worktree, openError := native.openWorktree(repositoryPath)
	if openError != nil {
		return nil, openError
	}

	status, statusError := worktree.Status()
	if statusError != nil {
		return nil, RepositoryOperationError{Operation: worktreeStatusOperationNameConstant, Cause: statusError}
	}

	paths := make([]string, 0, len(status))
	for path, fileStatus := range status {
		if fileStatus.Staging == git.Unmodified && fileStatus.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	entries := make([]string, 0, len(paths))
	for _, path := range paths {
		fileStatus := status[path]
		if fileStatus.Staging == git.Untracked && fileStatus.Worktree == git.Untracked {
			entries = append(entries, untrackedPorcelainPrefixConstant+" "+path)
			continue
		}
		entries = append(entries, strings.TrimSpace(fmt.Sprintf(porcelainEntryTemplateConstant, fileStatus.Staging, fileStatus.Worktree, path)))
	}
	return entries, nil
}

// ConfigureIdentity stores the identity in the repository-local configuration.
func (native *NativeRepository) ConfigureIdentity(executionContext context.Context, repositoryPath string, identity Identity) error {
	trimmedName := strings.TrimSpace(identity.Name)
	if len(trimmedName) == 0 {
		return InvalidRepositoryInputError{FieldName: identityNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedEmail := strings.TrimSpace(identity.Email)
	if len(trimmedEmail) == 0 {
		return InvalidRepositoryInputError{FieldName: identityEmailFieldNameConstant, Message: requiredValueMessageConstant}
	}

	repository, _, openError := native.openWorktree(repositoryPath)
	if openError != nil {
		return openError
	}

	configuration, configurationError := repository.Config()
	if configurationError != nil {
		return RepositoryOperationError{Operation: configureIdentityOperationNameConstant, Cause: configurationError}
	}
	configuration.User.Name = trimmedName
	configuration.User.Email = trimmedEmail
	if setError := repository.SetConfig(configuration); setError != nil {
		return RepositoryOperationError{Operation: configureIdentityOperationNameConstant, Cause: setError}
	}
	return nil
}

// StageAll stages every modification, addition, and deletion in the worktree.
func (native *NativeRepository) StageAll(executionContext context.Context, repositoryPath string) error {
	_, worktree, openError := native.openWorktree(repositoryPath)
	if openError != nil {
		return openError
	}
	if addError := worktree.AddWithOptions(&git.AddOptions{All: true}); addError != nil {
		return RepositoryOperationError{Operation: stageAllOperationNameConstant, Cause: addError}
	}
	return nil
}

// Commit records the staged changes authored and committed by the configured identity.
func (native *NativeRepository) Commit(executionContext context.Context, repositoryPath string, message string) error {
	if len(strings.TrimSpace(message)) == 0 {
		return InvalidRepositoryInputError{FieldName: commitMessageFieldNameConstant, Message: requiredValueMessageConstant}
	}

	repository, worktree, openError := native.openWorktree(repositoryPath)
	if openError != nil {
		return openError
	}

	configuration, configurationError := repository.Config()
	if configurationError != nil {
		return RepositoryOperationError{Operation: commitOperationNameConstant, Cause: configurationError}
	}
	signature := &object.Signature{
		Name:  configuration.User.Name,
		Email: configuration.User.Email,
		When:  native.now(),
	}

	if _, commitError := worktree.Commit(message, &git.CommitOptions{Author: signature, Committer: signature}); commitError != nil {
		return RepositoryOperationError{Operation: commitOperationNameConstant, Cause: commitError}
	}
	return nil
}

// Push publishes the selected branch, defaulting to origin and the checked out branch.
func (native *NativeRepository) Push(executionContext context.Context, repositoryPath string, target PushTarget) error {
	repository, _, openError := native.openWorktree(repositoryPath)
	if openError != nil {
		return openError
	}

	remoteName := strings.TrimSpace(target.Remote)
	if len(remoteName) == 0 {
		remoteName = defaultRemoteNameConstant
	}

	branchReference, branchError := native.resolveBranchReference(repository, target.Branch)
	if branchError != nil {
		return RepositoryOperationError{Operation: pushOperationNameConstant, Cause: branchError}
	}

	pushOptions := &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf(refSpecTemplateConstant, branchReference, branchReference))},
	}
	if len(native.token) > 0 {
		pushOptions.Auth = &githttp.BasicAuth{Username: tokenAuthenticationUserConstant, Password: native.token}
	}

	pushError := repository.PushContext(executionContext, pushOptions)
	if pushError != nil && !errors.Is(pushError, git.NoErrAlreadyUpToDate) {
		return RepositoryOperationError{Operation: pushOperationNameConstant, Cause: pushError}
	}
	return nil
}

// PullLargeFiles is not available in-process.
func (native *NativeRepository) PullLargeFiles(executionContext context.Context, repositoryPath string) error {
	return RepositoryOperationError{Operation: pullLargeFilesOperationNameConstant, Cause: ErrLargeFilesUnsupported}
}

// GetCurrentBranch resolves the current branch name.
func (native *NativeRepository) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	repository, _, openError := native.openWorktree(repositoryPath)
	if openError != nil {
		return "", openError
	}
	head, headError := repository.Head()
	if headError != nil {
		return "", RepositoryOperationError{Operation: currentBranchOperationNameConstant, Cause: headError}
	}
	return head.Name().Short(), nil
}

// HeadCommit resolves the commit hash HEAD points to.
func (native *NativeRepository) HeadCommit(executionContext context.Context, repositoryPath string) (string, error) {
	repository, _, openError := native.openWorktree(repositoryPath)
	if openError != nil {
		return "", openError
	}
	head, headError := repository.Head()
	if headError != nil {
		return "", RepositoryOperationError{Operation: headCommitOperationNameConstant, Cause: headError}
	}
	return head.Hash().String(), nil
}

func (native *NativeRepository) resolveBranchReference(repository *git.Repository, branch string) (plumbing.ReferenceName, error) {
	trimmedBranch := strings.TrimSpace(branch)
	if len(trimmedBranch) > 0 {
		return plumbing.NewBranchReferenceName(trimmedBranch), nil
	}
	head, headError := repository.Head()
	if headError != nil {
		return "", headError
	}
	if !head.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return head.Name(), nil
}

func (native *NativeRepository) openWorktree(repositoryPath string) (*git.Repository, *git.Worktree, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	repository, openError := git.PlainOpenWithOptions(trimmedPath, &git.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		return nil, nil, RepositoryOperationError{Operation: openRepositoryOperationNameConstant, Cause: openError}
	}
	worktree, worktreeError := repository.Worktree()
	if worktreeError != nil {
		return nil, nil, RepositoryOperationError{Operation: openRepositoryOperationNameConstant, Cause: worktreeError}
	}
	return repository, worktree, nil
}
