// Package version resolves the iteehub release string.
package version

import (
	"context"
	"errors"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/execshell"
)

// Release is stamped at link time with -ldflags "-X github.com/tyemirov/iteehub/internal/version.Release=v1.0.0".
var Release = ""

const (
	// UnknownVersionConstant is reported when no source yields a version.
	UnknownVersionConstant = "unknown"

	userAgentProductConstant                  = "iteehub/"
	buildInfoDevelVersionValue                = "(devel)"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitShowTopLevelFlagConstant               = "--show-toplevel"
	gitDescribeSubcommandConstant             = "describe"
	gitTagsFlagConstant                       = "--tags"
	gitAlwaysFlagConstant                     = "--always"
	gitDirtyFlagConstant                      = "--dirty"
	gitTerminalPromptEnvironmentNameConstant  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentValueConstant = "0"
	gitExecutorMissingMessageConstant         = "git executor not configured"
)

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// GitExecutor runs git commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Dependencies describes the collaborators required for version detection.
type Dependencies struct {
	Release           string
	BuildInfoProvider BuildInfoProvider
	GitExecutor       GitExecutor
	WorkingDirectory  string
}

// Detector resolves application version strings from the link-time stamp, module build
// information, or the source checkout, in that order.
type Detector struct {
	release           string
	buildInfoProvider BuildInfoProvider
	gitExecutor       GitExecutor
	workingDirectory  string
}

// NewDetector constructs a Detector, filling unset dependencies with runtime defaults.
func NewDetector(dependencies Dependencies) (*Detector, error) {
	provider := dependencies.BuildInfoProvider
	if provider == nil {
		provider = runtimeBuildInfoProvider{}
	}

	executor := dependencies.GitExecutor
	if executor == nil {
		shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner(), false)
		if creationError != nil {
			return nil, creationError
		}
		executor = shellExecutor
	}

	workingDirectory := strings.TrimSpace(dependencies.WorkingDirectory)
	if len(workingDirectory) == 0 {
		if currentDirectory, workingDirectoryError := os.Getwd(); workingDirectoryError == nil {
			workingDirectory = currentDirectory
		}
	}

	release := strings.TrimSpace(dependencies.Release)
	if len(release) == 0 {
		release = strings.TrimSpace(Release)
	}

	return &Detector{
		release:           release,
		buildInfoProvider: provider,
		gitExecutor:       executor,
		workingDirectory:  workingDirectory,
	}, nil
}

// Detect resolves the application version using the supplied dependencies.
func Detect(executionContext context.Context, dependencies Dependencies) string {
	detector, detectorError := NewDetector(dependencies)
	if detectorError != nil {
		return UnknownVersionConstant
	}
	return detector.Version(executionContext)
}

// UserAgent formats the HTTP user agent for a version string.
func UserAgent(versionString string) string {
	trimmedVersion := strings.TrimSpace(versionString)
	if len(trimmedVersion) == 0 {
		trimmedVersion = UnknownVersionConstant
	}
	return userAgentProductConstant + trimmedVersion
}

// Version returns the detected application version string.
func (detector *Detector) Version(executionContext context.Context) string {
	if detector == nil {
		return UnknownVersionConstant
	}
	if len(detector.release) > 0 {
		return detector.release
	}
	if buildVersion := detector.versionFromBuildInfo(); len(buildVersion) > 0 {
		return buildVersion
	}
	if describedVersion := detector.describeCheckout(executionContext); len(describedVersion) > 0 {
		return describedVersion
	}
	return UnknownVersionConstant
}

func (detector *Detector) versionFromBuildInfo() string {
	buildInfo, available := detector.buildInfoProvider.Read()
	if !available || buildInfo == nil {
		return ""
	}
	trimmedVersion := strings.TrimSpace(buildInfo.Main.Version)
	if len(trimmedVersion) == 0 || strings.EqualFold(trimmedVersion, buildInfoDevelVersionValue) {
		return ""
	}
	return trimmedVersion
}

func (detector *Detector) describeCheckout(executionContext context.Context) string {
	if len(detector.workingDirectory) == 0 {
		return ""
	}

	repositoryRoot := detector.workingDirectory
	if rootResult, rootError := detector.executeGit(executionContext, repositoryRoot, gitRevParseSubcommandConstant, gitShowTopLevelFlagConstant); rootError == nil {
		if trimmedRoot := strings.TrimSpace(rootResult.StandardOutput); len(trimmedRoot) > 0 {
			repositoryRoot = trimmedRoot
		}
	} else {
		return ""
	}

	describeResult, describeError := detector.executeGit(executionContext, repositoryRoot, gitDescribeSubcommandConstant, gitTagsFlagConstant, gitAlwaysFlagConstant, gitDirtyFlagConstant)
	if describeError != nil {
		return ""
	}
	return strings.TrimSpace(describeResult.StandardOutput)
}

func (detector *Detector) executeGit(executionContext context.Context, workingDirectory string, arguments ...string) (execshell.ExecutionResult, error) {
	if detector.gitExecutor == nil {
		return execshell.ExecutionResult{}, errors.New(gitExecutorMissingMessageConstant)
	}
	return detector.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     workingDirectory,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptEnvironmentValueConstant},
	})
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
