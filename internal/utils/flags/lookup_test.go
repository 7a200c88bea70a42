package flags_test

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/iteehub/internal/utils/flags"
)

func newCommandTree(testInstance *testing.T, arguments ...string) *cobra.Command {
	testInstance.Helper()
	root := &cobra.Command{Use: "iteehub"}
	root.PersistentFlags().String("log-level", "info", "")

	child := &cobra.Command{Use: "run", RunE: func(*cobra.Command, []string) error { return nil }}
	child.Flags().Bool("skip-commit", false, "")
	child.Flags().String("chat-id", "", "")
	child.Flags().Duration("interval", 3*time.Second, "")
	root.AddCommand(child)

	root.SetArgs(append([]string{"run"}, arguments...))
	require.NoError(testInstance, root.Execute())
	return child
}

func TestFlagLookupsReportChanges(testInstance *testing.T) {
	command := newCommandTree(testInstance, "--skip-commit", "--log-level", "debug")

	skipCommit, skipChanged, skipError := flags.BoolFlag(command, "skip-commit")
	require.NoError(testInstance, skipError)
	require.True(testInstance, skipCommit)
	require.True(testInstance, skipChanged)

	logLevel, logLevelChanged, logLevelError := flags.StringFlag(command, "log-level")
	require.NoError(testInstance, logLevelError)
	require.Equal(testInstance, "debug", logLevel)
	require.True(testInstance, logLevelChanged)

	interval, intervalChanged, intervalError := flags.DurationFlag(command, "interval")
	require.NoError(testInstance, intervalError)
	require.Equal(testInstance, 3*time.Second, interval)
	require.False(testInstance, intervalChanged)

	_, _, missingError := flags.StringFlag(command, "absent")
	require.ErrorIs(testInstance, missingError, flags.ErrFlagNotDefined)
}

func TestOverrideOnlyAppliesExplicitFlags(testInstance *testing.T) {
	command := newCommandTree(testInstance, "--chat-id", "@itee_archive")

	chatID := "-100"
	flags.OverrideString(command, "chat-id", &chatID)
	require.Equal(testInstance, "@itee_archive", chatID)

	skipCommit := true
	flags.OverrideBool(command, "skip-commit", &skipCommit)
	require.True(testInstance, skipCommit)

	logLevel := "warn"
	flags.OverrideString(command, "log-level", &logLevel)
	require.Equal(testInstance, "warn", logLevel)
}
