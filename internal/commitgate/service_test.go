package commitgate_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tyemirov/iteehub/internal/commitgate"
	"github.com/tyemirov/iteehub/internal/execshell"
	"github.com/tyemirov/iteehub/internal/gitrepo"
)

const (
	testRepositoryPathConstant = "/tmp/archive"
	statusStepConstant         = "status"
	identityStepConstant       = "identity"
	stageStepConstant          = "stage"
	commitStepConstant         = "commit"
	pushStepConstant           = "push"
	revisionStepConstant       = "revision"
	branchStepConstant         = "branch"
	testRevisionConstant       = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
)

var commitMessagePattern = regexp.MustCompile(`^updated on \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} .+$`)

type fixedClock struct {
	instant time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.instant
}

type recordingRepository struct {
	statusEntries    []string
	currentBranch    string
	failingStep      string
	recordedSteps    []string
	recordedIdentity gitrepo.Identity
	recordedMessage  string
	recordedTarget   gitrepo.PushTarget
}

func (repository *recordingRepository) step(name string) error {
	repository.recordedSteps = append(repository.recordedSteps, name)
	if repository.failingStep == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (repository *recordingRepository) WorktreeStatus(context.Context, string) ([]string, error) {
	if stepError := repository.step(statusStepConstant); stepError != nil {
		return nil, stepError
	}
	return repository.statusEntries, nil
}

func (repository *recordingRepository) ConfigureIdentity(_ context.Context, _ string, identity gitrepo.Identity) error {
	repository.recordedIdentity = identity
	return repository.step(identityStepConstant)
}

func (repository *recordingRepository) StageAll(context.Context, string) error {
	return repository.step(stageStepConstant)
}

func (repository *recordingRepository) Commit(_ context.Context, _ string, message string) error {
	repository.recordedMessage = message
	return repository.step(commitStepConstant)
}

func (repository *recordingRepository) Push(_ context.Context, _ string, target gitrepo.PushTarget) error {
	repository.recordedTarget = target
	return repository.step(pushStepConstant)
}

func (repository *recordingRepository) HeadCommit(context.Context, string) (string, error) {
	if stepError := repository.step(revisionStepConstant); stepError != nil {
		return "", stepError
	}
	return testRevisionConstant, nil
}

func (repository *recordingRepository) GetCurrentBranch(context.Context, string) (string, error) {
	if stepError := repository.step(branchStepConstant); stepError != nil {
		return "", stepError
	}
	return repository.currentBranch, nil
}

func TestNewServiceValidation(testInstance *testing.T) {
	_, repositoryError := commitgate.NewService(commitgate.Dependencies{Logger: zap.NewNop()})
	require.ErrorIs(testInstance, repositoryError, commitgate.ErrRepositoryNotConfigured)

	_, loggerError := commitgate.NewService(commitgate.Dependencies{Repository: &recordingRepository{}})
	require.ErrorIs(testInstance, loggerError, commitgate.ErrLoggerNotConfigured)
}

func TestBuildCommitMessageUsesUTC(testInstance *testing.T) {
	location := time.FixedZone("UTC+9", 9*60*60)
	instant := time.Date(2024, 5, 2, 6, 30, 15, 0, location)

	message := commitgate.BuildCommitMessage(instant)
	require.Equal(testInstance, "updated on 2024-05-01 21:30:15 UTC", message)
	require.Regexp(testInstance, commitMessagePattern, message)
}

func TestRunSkipsCleanWorktree(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zap.InfoLevel)
	repository := &recordingRepository{}
	service, creationError := commitgate.NewService(commitgate.Dependencies{Repository: repository, Logger: zap.New(observerCore)})
	require.NoError(testInstance, creationError)

	result, runError := service.Run(context.Background(), commitgate.Options{RepositoryPath: testRepositoryPathConstant})
	require.NoError(testInstance, runError)
	require.False(testInstance, result.Committed)
	require.False(testInstance, result.Pushed)
	require.Zero(testInstance, result.ChangeCount)
	require.Equal(testInstance, []string{statusStepConstant}, repository.recordedSteps)
	require.Equal(testInstance, 1, observedLogs.FilterMessage("no changes to commit").Len())
}

func TestRunCommitsAndPushesChanges(testInstance *testing.T) {
	repository := &recordingRepository{statusEntries: []string{"M data/data.db", "?? data/2024/questions/2024A_FE.zip"}}
	clock := fixedClock{instant: time.Date(2024, 5, 1, 0, 0, 1, 0, time.UTC)}
	service, creationError := commitgate.NewService(commitgate.Dependencies{Repository: repository, Clock: clock, Logger: zap.NewNop()})
	require.NoError(testInstance, creationError)

	target := gitrepo.PushTarget{Remote: "origin", Branch: "master"}
	result, runError := service.Run(context.Background(), commitgate.Options{RepositoryPath: testRepositoryPathConstant, Target: target})
	require.NoError(testInstance, runError)

	require.Equal(testInstance, []string{statusStepConstant, identityStepConstant, stageStepConstant, commitStepConstant, revisionStepConstant, pushStepConstant}, repository.recordedSteps)
	require.Equal(testInstance, gitrepo.Identity{Name: commitgate.DefaultIdentityNameConstant, Email: commitgate.DefaultIdentityEmailConstant}, repository.recordedIdentity)
	require.Equal(testInstance, "updated on 2024-05-01 00:00:01 UTC", repository.recordedMessage)
	require.Equal(testInstance, target, repository.recordedTarget)
	require.Equal(testInstance, commitgate.Result{
		RepositoryPath: testRepositoryPathConstant,
		ChangeCount:    2,
		Committed:      true,
		Pushed:         true,
		Message:        "updated on 2024-05-01 00:00:01 UTC",
		Revision:       testRevisionConstant,
		Branch:         "master",
	}, result)
}

func TestRunResolvesPushBranch(testInstance *testing.T) {
	testCases := []struct {
		name           string
		currentBranch  string
		expectedTarget gitrepo.PushTarget
	}{
		{name: "checked_out_branch", currentBranch: "main", expectedTarget: gitrepo.PushTarget{Remote: "origin", Branch: "main"}},
		{name: "detached_head", currentBranch: "HEAD", expectedTarget: gitrepo.PushTarget{Remote: "origin"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			repository := &recordingRepository{statusEntries: []string{"M data/data.db"}, currentBranch: testCase.currentBranch}
			service, creationError := commitgate.NewService(commitgate.Dependencies{Repository: repository, Logger: zap.NewNop()})
			require.NoError(testInstance, creationError)

			result, runError := service.Run(context.Background(), commitgate.Options{RepositoryPath: testRepositoryPathConstant, Target: gitrepo.PushTarget{Remote: " origin "}})
			require.NoError(testInstance, runError)
			require.Equal(testInstance, testCase.expectedTarget, repository.recordedTarget)
			require.Equal(testInstance, testCase.expectedTarget.Branch, result.Branch)
			require.Contains(testInstance, repository.recordedSteps, branchStepConstant)
		})
	}
}

func TestRunStopsAtFirstFailure(testInstance *testing.T) {
	testCases := []struct {
		name            string
		failingStep     string
		expectedSteps   []string
		expectedMessage string
		expectCommitted bool
	}{
		{
			name:            "status",
			failingStep:     statusStepConstant,
			expectedSteps:   []string{statusStepConstant},
			expectedMessage: "failed to inspect worktree status",
		},
		{
			name:            "identity",
			failingStep:     identityStepConstant,
			expectedSteps:   []string{statusStepConstant, identityStepConstant},
			expectedMessage: "failed to configure commit identity",
		},
		{
			name:            "stage",
			failingStep:     stageStepConstant,
			expectedSteps:   []string{statusStepConstant, identityStepConstant, stageStepConstant},
			expectedMessage: "failed to stage changes",
		},
		{
			name:            "commit",
			failingStep:     commitStepConstant,
			expectedSteps:   []string{statusStepConstant, identityStepConstant, stageStepConstant, commitStepConstant},
			expectedMessage: "failed to commit changes",
		},
		{
			name:            "revision",
			failingStep:     revisionStepConstant,
			expectedSteps:   []string{statusStepConstant, identityStepConstant, stageStepConstant, commitStepConstant, revisionStepConstant},
			expectedMessage: "failed to resolve committed revision",
			expectCommitted: true,
		},
		{
			name:            "branch",
			failingStep:     branchStepConstant,
			expectedSteps:   []string{statusStepConstant, identityStepConstant, stageStepConstant, commitStepConstant, revisionStepConstant, branchStepConstant},
			expectedMessage: "failed to resolve current branch",
			expectCommitted: true,
		},
		{
			name:            "push",
			failingStep:     pushStepConstant,
			expectedSteps:   []string{statusStepConstant, identityStepConstant, stageStepConstant, commitStepConstant, revisionStepConstant, branchStepConstant, pushStepConstant},
			expectedMessage: "failed to push commit",
			expectCommitted: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			repository := &recordingRepository{statusEntries: []string{"M file"}, currentBranch: "master", failingStep: testCase.failingStep}
			service, creationError := commitgate.NewService(commitgate.Dependencies{Repository: repository, Logger: zap.NewNop()})
			require.NoError(testInstance, creationError)

			result, runError := service.Run(context.Background(), commitgate.Options{RepositoryPath: testRepositoryPathConstant})
			require.ErrorContains(testInstance, runError, testCase.expectedMessage)
			require.Equal(testInstance, testCase.expectedSteps, repository.recordedSteps)
			require.Equal(testInstance, testCase.expectCommitted, result.Committed)
			require.False(testInstance, result.Pushed)
		})
	}
}

func TestRunRequiresRepositoryPath(testInstance *testing.T) {
	service, creationError := commitgate.NewService(commitgate.Dependencies{Repository: &recordingRepository{}, Logger: zap.NewNop()})
	require.NoError(testInstance, creationError)

	_, runError := service.Run(context.Background(), commitgate.Options{RepositoryPath: "  "})
	require.ErrorIs(testInstance, runError, commitgate.ErrRepositoryPathRequired)
}

type archiveCheckout struct {
	repositoryPath string
	repository     *git.Repository
	remote         *git.Repository
}

// newArchiveCheckout creates a seeded checkout with a bare origin and one new archive file.
func newArchiveCheckout(testInstance *testing.T) archiveCheckout {
	testInstance.Helper()
	repositoryPath := testInstance.TempDir()
	repository, initError := git.PlainInit(repositoryPath, false)
	require.NoError(testInstance, initError)
	worktree, worktreeError := repository.Worktree()
	require.NoError(testInstance, worktreeError)
	require.NoError(testInstance, os.WriteFile(filepath.Join(repositoryPath, "README.md"), []byte("archive\n"), 0o644))
	_, addError := worktree.Add("README.md")
	require.NoError(testInstance, addError)
	seedSignature := &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	_, seedError := worktree.Commit("seed", &git.CommitOptions{Author: seedSignature, Committer: seedSignature})
	require.NoError(testInstance, seedError)

	remotePath := testInstance.TempDir()
	remote, remoteInitError := git.PlainInit(remotePath, true)
	require.NoError(testInstance, remoteInitError)
	_, remoteError := repository.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remotePath}})
	require.NoError(testInstance, remoteError)

	require.NoError(testInstance, os.MkdirAll(filepath.Join(repositoryPath, "data", "2024", "questions"), 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(repositoryPath, "data", "2024", "questions", "2024A_FE.zip"), []byte("zip"), 0o644))
	return archiveCheckout{repositoryPath: repositoryPath, repository: repository, remote: remote}
}

func TestRunAgainstRealRepositoryIsIdempotent(testInstance *testing.T) {
	clock := fixedClock{instant: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	testCases := []struct {
		name       string
		repository func(testInstance *testing.T) commitgate.Repository
	}{
		{
			name: "native",
			repository: func(*testing.T) commitgate.Repository {
				return gitrepo.NewNativeRepository(gitrepo.WithSignatureClock(clock.Now))
			},
		},
		{
			name: "shell",
			repository: func(testInstance *testing.T) commitgate.Repository {
				if _, lookupError := exec.LookPath("git"); lookupError != nil {
					testInstance.Skip("git executable not available")
				}
				executor, executorError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner(), false)
				require.NoError(testInstance, executorError)
				manager, managerError := gitrepo.NewRepositoryManager(executor)
				require.NoError(testInstance, managerError)
				return manager
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			repository := testCase.repository(testInstance)
			checkout := newArchiveCheckout(testInstance)
			service, creationError := commitgate.NewService(commitgate.Dependencies{Repository: repository, Clock: clock, Logger: zap.NewNop()})
			require.NoError(testInstance, creationError)
			options := commitgate.Options{RepositoryPath: checkout.repositoryPath, Target: gitrepo.PushTarget{Remote: "origin"}}

			firstResult, firstError := service.Run(context.Background(), options)
			require.NoError(testInstance, firstError)
			require.True(testInstance, firstResult.Committed)
			require.True(testInstance, firstResult.Pushed)
			require.Equal(testInstance, 1, firstResult.ChangeCount)
			require.Equal(testInstance, "master", firstResult.Branch)
			require.Equal(testInstance, "updated on 2024-05-01 12:00:00 UTC", firstResult.Message)

			head, headError := checkout.repository.Head()
			require.NoError(testInstance, headError)
			require.Equal(testInstance, head.Hash().String(), firstResult.Revision)
			commit, commitError := checkout.repository.CommitObject(head.Hash())
			require.NoError(testInstance, commitError)
			require.Equal(testInstance, "updated on 2024-05-01 12:00:00 UTC", strings.TrimSpace(commit.Message))
			require.Equal(testInstance, commitgate.DefaultIdentityNameConstant, commit.Author.Name)
			require.Equal(testInstance, commitgate.DefaultIdentityEmailConstant, commit.Author.Email)
			require.Equal(testInstance, commitgate.DefaultIdentityNameConstant, commit.Committer.Name)
			require.Equal(testInstance, commitgate.DefaultIdentityEmailConstant, commit.Committer.Email)

			remoteHead, remoteHeadError := checkout.remote.Reference("refs/heads/master", true)
			require.NoError(testInstance, remoteHeadError)
			require.Equal(testInstance, head.Hash(), remoteHead.Hash())

			secondResult, secondError := service.Run(context.Background(), options)
			require.NoError(testInstance, secondError)
			require.False(testInstance, secondResult.Committed)
			require.Zero(testInstance, secondResult.ChangeCount)

			headAfter, headAfterError := checkout.repository.Head()
			require.NoError(testInstance, headAfterError)
			require.Equal(testInstance, head.Hash(), headAfter.Hash())
		})
	}
}
