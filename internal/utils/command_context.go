package utils

import (
	"context"
	"strings"
)

const (
	commitTargetContextKeyConstant = commandContextKey("commitTarget")
)

type commandContextKey string

// CommitTarget describes where the commit gate operates and pushes.
type CommitTarget struct {
	RepositoryPath string
	Backend        string
	Remote         string
	Branch         string
}

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithCommitTarget attaches the commit target to the provided context when values are present.
func (accessor CommandContextAccessor) WithCommitTarget(parentContext context.Context, target CommitTarget) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	normalized := CommitTarget{
		RepositoryPath: strings.TrimSpace(target.RepositoryPath),
		Backend:        strings.ToLower(strings.TrimSpace(target.Backend)),
		Remote:         strings.TrimSpace(target.Remote),
		Branch:         strings.TrimSpace(target.Branch),
	}
	if normalized == (CommitTarget{}) {
		return parentContext
	}
	return context.WithValue(parentContext, commitTargetContextKeyConstant, normalized)
}

// CommitTarget extracts the commit target from the provided execution context.
func (accessor CommandContextAccessor) CommitTarget(executionContext context.Context) (CommitTarget, bool) {
	if executionContext == nil {
		return CommitTarget{}, false
	}
	value, valueAvailable := executionContext.Value(commitTargetContextKeyConstant).(CommitTarget)
	if !valueAvailable {
		return CommitTarget{}, false
	}
	return value, true
}
