// Package dependencies resolves default collaborators for CLI commands.
package dependencies

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/execshell"
	"github.com/tyemirov/iteehub/internal/gitrepo"
	"github.com/tyemirov/iteehub/internal/telegram"
)

// Commit backends.
const (
	BackendShellConstant  = "shell"
	BackendNativeConstant = "native"

	unsupportedBackendTemplateConstant = "unsupported commit backend %q (expected shell or native)"
)

// GitRepository is the git surface used by update runs.
type GitRepository interface {
	WorktreeStatus(executionContext context.Context, repositoryPath string) ([]string, error)
	ConfigureIdentity(executionContext context.Context, repositoryPath string, identity gitrepo.Identity) error
	StageAll(executionContext context.Context, repositoryPath string) error
	Commit(executionContext context.Context, repositoryPath string, message string) error
	Push(executionContext context.Context, repositoryPath string, target gitrepo.PushTarget) error
	PullLargeFiles(executionContext context.Context, repositoryPath string) error
	GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
	HeadCommit(executionContext context.Context, repositoryPath string) (string, error)
}

// UnsupportedBackendError reports an unknown commit backend name.
type UnsupportedBackendError struct {
	Backend string
}

// Error describes the unknown backend.
func (backendError UnsupportedBackendError) Error() string {
	return fmt.Sprintf(unsupportedBackendTemplateConstant, backendError.Backend)
}

// ResolveGitExecutor returns the provided executor or constructs a shell-backed default.
func ResolveGitExecutor(existing gitrepo.GitCommandExecutor, logger *zap.Logger, humanReadableLogging bool) (gitrepo.GitCommandExecutor, error) {
	if existing != nil {
		return existing, nil
	}

	commandRunner := execshell.NewOSCommandRunner()
	shellExecutor, creationError := execshell.NewShellExecutor(logger, commandRunner, humanReadableLogging)
	if creationError != nil {
		return nil, creationError
	}
	return shellExecutor, nil
}

// ResolveGitRepository selects the git backend. The shell backend drives the git binary and
// supports large-file pulls; the native backend works without git installed and pushes with
// the token over HTTPS.
func ResolveGitRepository(backend string, executor gitrepo.GitCommandExecutor, pushToken string) (GitRepository, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendShellConstant:
		manager, managerError := gitrepo.NewRepositoryManager(executor)
		if managerError != nil {
			return nil, managerError
		}
		return manager, nil
	case BackendNativeConstant:
		return gitrepo.NewNativeRepository(gitrepo.WithPushToken(pushToken)), nil
	default:
		return nil, UnsupportedBackendError{Backend: backend}
	}
}

// ResolveHTTPClient returns the provided client or one with the given timeout.
func ResolveHTTPClient(existing *http.Client, timeout time.Duration) *http.Client {
	if existing != nil {
		return existing
	}
	return &http.Client{Timeout: timeout}
}

// ResolveDocumentSender returns the provided sender or authenticates a Bot API sender.
func ResolveDocumentSender(existing telegram.DocumentSender, token string, apiEndpoint string, client *http.Client) (telegram.DocumentSender, error) {
	if existing != nil {
		return existing, nil
	}
	sender, senderError := telegram.NewBotAPISender(token, apiEndpoint, client)
	if senderError != nil {
		return nil, senderError
	}
	return sender, nil
}
