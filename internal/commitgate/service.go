// Package commitgate records working-tree changes produced by an update run as a single
// timestamped commit and publishes it. A clean worktree is a successful no-op.
package commitgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/gitrepo"
)

const (
	// DefaultIdentityNameConstant is the author and committer name recorded on automated commits.
	DefaultIdentityNameConstant = "github-actions[bot]"
	// DefaultIdentityEmailConstant is the author and committer email recorded on automated commits.
	DefaultIdentityEmailConstant = "41898282+github-actions[bot]@users.noreply.github.com"
	// CommitMessagePrefixConstant starts every automated commit message.
	CommitMessagePrefixConstant = "updated on "
	// CommitTimestampLayoutConstant renders the UTC commit time, including the zone abbreviation.
	CommitTimestampLayoutConstant = "2006-01-02 15:04:05 MST"

	repositoryPathRequiredMessageConstant  = "repository path must be provided"
	repositoryNotConfiguredMessageConstant = "repository backend not configured"
	loggerNotConfiguredMessageConstant     = "logger not configured"
	statusFailureTemplateConstant          = "failed to inspect worktree status: %w"
	identityFailureTemplateConstant        = "failed to configure commit identity: %w"
	stageFailureTemplateConstant           = "failed to stage changes: %w"
	commitFailureTemplateConstant          = "failed to commit changes: %w"
	revisionFailureTemplateConstant        = "failed to resolve committed revision: %w"
	branchFailureTemplateConstant          = "failed to resolve current branch: %w"
	pushFailureTemplateConstant            = "failed to push commit: %w"
	noChangesMessageConstant               = "no changes to commit"
	changesDetectedMessageConstant         = "changes detected"
	committedMessageConstant               = "changes committed"
	pushedMessageConstant                  = "commit pushed"
	repositoryFieldNameConstant            = "repository"
	changeCountFieldNameConstant           = "change_count"
	commitMessageFieldNameConstant         = "commit_message"
	remoteFieldNameConstant                = "remote"
	branchFieldNameConstant                = "branch"
	revisionFieldNameConstant              = "revision"
	detachedHeadConstant                   = "HEAD"
)

// ErrRepositoryPathRequired indicates the repository path option was empty.
var ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessageConstant)

// ErrRepositoryNotConfigured indicates the repository backend dependency was missing.
var ErrRepositoryNotConfigured = errors.New(repositoryNotConfiguredMessageConstant)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// Repository is the git surface the gate needs. Both gitrepo backends satisfy it.
type Repository interface {
	WorktreeStatus(executionContext context.Context, repositoryPath string) ([]string, error)
	ConfigureIdentity(executionContext context.Context, repositoryPath string, identity gitrepo.Identity) error
	StageAll(executionContext context.Context, repositoryPath string) error
	Commit(executionContext context.Context, repositoryPath string, message string) error
	Push(executionContext context.Context, repositoryPath string, target gitrepo.PushTarget) error
	GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
	HeadCommit(executionContext context.Context, repositoryPath string) (string, error)
}

// Clock supplies the commit timestamp.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Dependencies enumerates collaborators required by the gate.
type Dependencies struct {
	Repository Repository
	Clock      Clock
	Logger     *zap.Logger
}

// Options configures a single gate run. An empty Target.Branch pushes the checked out branch.
type Options struct {
	RepositoryPath string
	Target         gitrepo.PushTarget
}

// Result captures the observable outcome of a gate run.
type Result struct {
	RepositoryPath string
	ChangeCount    int
	Committed      bool
	Pushed         bool
	Message        string
	Revision       string
	Branch         string
}

// Service runs the commit gate.
type Service struct {
	repository Repository
	clock      Clock
	logger     *zap.Logger
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Repository == nil {
		return nil, ErrRepositoryNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{repository: dependencies.Repository, clock: clock, logger: dependencies.Logger}, nil
}

// BuildCommitMessage renders the automated commit message for the provided instant in UTC.
func BuildCommitMessage(instant time.Time) string {
	return CommitMessagePrefixConstant + instant.UTC().Format(CommitTimestampLayoutConstant)
}

// Run commits and pushes pending changes. Any git failure stops the run; nothing is retried.
func (service *Service) Run(executionContext context.Context, options Options) (Result, error) {
	repositoryPath := strings.TrimSpace(options.RepositoryPath)
	if len(repositoryPath) == 0 {
		return Result{}, ErrRepositoryPathRequired
	}
	result := Result{RepositoryPath: repositoryPath}

	entries, statusError := service.repository.WorktreeStatus(executionContext, repositoryPath)
	if statusError != nil {
		return result, fmt.Errorf(statusFailureTemplateConstant, statusError)
	}
	result.ChangeCount = len(entries)
	if result.ChangeCount == 0 {
		service.logger.Info(noChangesMessageConstant, zap.String(repositoryFieldNameConstant, repositoryPath))
		return result, nil
	}
	service.logger.Info(changesDetectedMessageConstant,
		zap.String(repositoryFieldNameConstant, repositoryPath),
		zap.Int(changeCountFieldNameConstant, result.ChangeCount),
	)

	identity := gitrepo.Identity{Name: DefaultIdentityNameConstant, Email: DefaultIdentityEmailConstant}
	if identityError := service.repository.ConfigureIdentity(executionContext, repositoryPath, identity); identityError != nil {
		return result, fmt.Errorf(identityFailureTemplateConstant, identityError)
	}

	if stageError := service.repository.StageAll(executionContext, repositoryPath); stageError != nil {
		return result, fmt.Errorf(stageFailureTemplateConstant, stageError)
	}

	result.Message = BuildCommitMessage(service.clock.Now())
	if commitError := service.repository.Commit(executionContext, repositoryPath, result.Message); commitError != nil {
		return result, fmt.Errorf(commitFailureTemplateConstant, commitError)
	}
	result.Committed = true
	revision, revisionError := service.repository.HeadCommit(executionContext, repositoryPath)
	if revisionError != nil {
		return result, fmt.Errorf(revisionFailureTemplateConstant, revisionError)
	}
	result.Revision = revision
	service.logger.Info(committedMessageConstant,
		zap.String(repositoryFieldNameConstant, repositoryPath),
		zap.String(commitMessageFieldNameConstant, result.Message),
		zap.String(revisionFieldNameConstant, result.Revision),
	)

	target, targetError := service.resolvePushTarget(executionContext, repositoryPath, options.Target)
	if targetError != nil {
		return result, targetError
	}
	result.Branch = target.Branch
	if pushError := service.repository.Push(executionContext, repositoryPath, target); pushError != nil {
		return result, fmt.Errorf(pushFailureTemplateConstant, pushError)
	}
	result.Pushed = true
	service.logger.Info(pushedMessageConstant,
		zap.String(repositoryFieldNameConstant, repositoryPath),
		zap.String(remoteFieldNameConstant, target.Remote),
		zap.String(branchFieldNameConstant, target.Branch),
	)
	return result, nil
}

// resolvePushTarget fills in the checked out branch when none is configured. A detached
// HEAD keeps the branch empty so the backend pushes HEAD.
func (service *Service) resolvePushTarget(executionContext context.Context, repositoryPath string, target gitrepo.PushTarget) (gitrepo.PushTarget, error) {
	resolved := gitrepo.PushTarget{Remote: strings.TrimSpace(target.Remote), Branch: strings.TrimSpace(target.Branch)}
	if len(resolved.Branch) > 0 {
		return resolved, nil
	}
	branch, branchError := service.repository.GetCurrentBranch(executionContext, repositoryPath)
	if branchError != nil {
		return resolved, fmt.Errorf(branchFailureTemplateConstant, branchError)
	}
	if branch != detachedHeadConstant {
		resolved.Branch = branch
	}
	return resolved, nil
}
