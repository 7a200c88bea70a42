package gitrepo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/iteehub/internal/gitrepo"
)

func initializeRepositoryWithCommit(testInstance *testing.T) (string, *git.Repository) {
	testInstance.Helper()
	repositoryPath := testInstance.TempDir()
	repository, initError := git.PlainInit(repositoryPath, false)
	require.NoError(testInstance, initError)

	require.NoError(testInstance, os.WriteFile(filepath.Join(repositoryPath, "README.md"), []byte("archive\n"), 0o644))
	worktree, worktreeError := repository.Worktree()
	require.NoError(testInstance, worktreeError)
	_, addError := worktree.Add("README.md")
	require.NoError(testInstance, addError)
	signature := &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	_, commitError := worktree.Commit("seed", &git.CommitOptions{Author: signature, Committer: signature})
	require.NoError(testInstance, commitError)
	return repositoryPath, repository
}

func TestNativeRepositoryStatusReflectsWorktree(testInstance *testing.T) {
	repositoryPath, _ := initializeRepositoryWithCommit(testInstance)
	native := gitrepo.NewNativeRepository()

	entries, statusError := native.WorktreeStatus(context.Background(), repositoryPath)
	require.NoError(testInstance, statusError)
	require.Empty(testInstance, entries)

	require.NoError(testInstance, os.WriteFile(filepath.Join(repositoryPath, "README.md"), []byte("changed\n"), 0o644))
	require.NoError(testInstance, os.WriteFile(filepath.Join(repositoryPath, "new.txt"), []byte("new\n"), 0o644))

	entries, statusError = native.WorktreeStatus(context.Background(), repositoryPath)
	require.NoError(testInstance, statusError)
	require.Equal(testInstance, []string{"M README.md", "?? new.txt"}, entries)
}

func TestNativeRepositoryCommitUsesConfiguredIdentity(testInstance *testing.T) {
	repositoryPath, repository := initializeRepositoryWithCommit(testInstance)
	fixedTime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	native := gitrepo.NewNativeRepository(gitrepo.WithSignatureClock(func() time.Time { return fixedTime }))

	require.NoError(testInstance, os.Remove(filepath.Join(repositoryPath, "README.md")))
	require.NoError(testInstance, os.WriteFile(filepath.Join(repositoryPath, "added.txt"), []byte("added\n"), 0o644))

	identity := gitrepo.Identity{Name: "github-actions[bot]", Email: "41898282+github-actions[bot]@users.noreply.github.com"}
	require.NoError(testInstance, native.ConfigureIdentity(context.Background(), repositoryPath, identity))
	require.NoError(testInstance, native.StageAll(context.Background(), repositoryPath))
	require.NoError(testInstance, native.Commit(context.Background(), repositoryPath, "updated on 2024-05-01 12:00:00 UTC"))

	head, headError := repository.Head()
	require.NoError(testInstance, headError)
	commit, commitError := repository.CommitObject(head.Hash())
	require.NoError(testInstance, commitError)
	require.Equal(testInstance, "updated on 2024-05-01 12:00:00 UTC", commit.Message)
	require.Equal(testInstance, identity.Name, commit.Author.Name)
	require.Equal(testInstance, identity.Email, commit.Author.Email)
	require.Equal(testInstance, identity.Name, commit.Committer.Name)
	require.True(testInstance, fixedTime.Equal(commit.Author.When))

	entries, statusError := native.WorktreeStatus(context.Background(), repositoryPath)
	require.NoError(testInstance, statusError)
	require.Empty(testInstance, entries)

	headCommit, headCommitError := native.HeadCommit(context.Background(), repositoryPath)
	require.NoError(testInstance, headCommitError)
	require.Equal(testInstance, head.Hash().String(), headCommit)
}

func TestNativeRepositoryPushesCurrentBranch(testInstance *testing.T) {
	repositoryPath, repository := initializeRepositoryWithCommit(testInstance)
	remotePath := testInstance.TempDir()
	remoteRepository, remoteInitError := git.PlainInit(remotePath, true)
	require.NoError(testInstance, remoteInitError)

	_, remoteError := repository.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remotePath}})
	require.NoError(testInstance, remoteError)

	native := gitrepo.NewNativeRepository()
	branch, branchError := native.GetCurrentBranch(context.Background(), repositoryPath)
	require.NoError(testInstance, branchError)

	require.NoError(testInstance, native.Push(context.Background(), repositoryPath, gitrepo.PushTarget{}))
	require.NoError(testInstance, native.Push(context.Background(), repositoryPath, gitrepo.PushTarget{Remote: "origin", Branch: branch}))

	localHead, localHeadError := repository.Head()
	require.NoError(testInstance, localHeadError)
	remoteReference, referenceError := remoteRepository.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(testInstance, referenceError)
	require.Equal(testInstance, localHead.Hash(), remoteReference.Hash())
}

func TestNativeRepositoryRejectsLargeFilePull(testInstance *testing.T) {
	native := gitrepo.NewNativeRepository()
	pullError := native.PullLargeFiles(context.Background(), testInstance.TempDir())
	require.ErrorIs(testInstance, pullError, gitrepo.ErrLargeFilesUnsupported)
}

func TestNativeRepositoryRequiresRepository(testInstance *testing.T) {
	native := gitrepo.NewNativeRepository()

	_, missingPathError := native.WorktreeStatus(context.Background(), " ")
	require.IsType(testInstance, gitrepo.InvalidRepositoryInputError{}, missingPathError)

	_, openError := native.WorktreeStatus(context.Background(), testInstance.TempDir())
	require.ErrorIs(testInstance, openError, git.ErrRepositoryNotExists)
}
