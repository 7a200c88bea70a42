package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tyemirov/iteehub/internal/scheduler"
)

func TestNewSchedulerValidation(testInstance *testing.T) {
	_, jobError := scheduler.NewScheduler(scheduler.Dependencies{Logger: zap.NewNop()})
	require.ErrorIs(testInstance, jobError, scheduler.ErrJobNotConfigured)

	_, loggerError := scheduler.NewScheduler(scheduler.Dependencies{Job: func(context.Context) error { return nil }})
	require.ErrorIs(testInstance, loggerError, scheduler.ErrLoggerNotConfigured)
}

func TestParseExpression(testInstance *testing.T) {
	reference := time.Date(2024, time.April, 21, 9, 30, 0, 0, time.UTC)

	testCases := []struct {
		name         string
		expression   string
		expectedNext time.Time
		expectError  bool
	}{
		{name: "default_twice_daily", expression: "", expectedNext: time.Date(2024, time.April, 21, 12, 0, 0, 0, time.UTC)},
		{name: "explicit", expression: " 15 * * * * ", expectedNext: time.Date(2024, time.April, 21, 9, 45, 0, 0, time.UTC)},
		{name: "descriptor", expression: "@daily", expectedNext: time.Date(2024, time.April, 22, 0, 0, 0, 0, time.UTC)},
		{name: "invalid", expression: "every noon", expectError: true},
		{name: "six_fields", expression: "0 0 0,12 * * *", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			schedule, parseError := scheduler.ParseExpression(testCase.expression)
			if testCase.expectError {
				require.Error(testInstance, parseError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedNext, schedule.Next(reference))
		})
	}
}

func TestRunExecutesImmediatelyAndStopsOnCancel(testInstance *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	executionContext, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	instance, creationError := scheduler.NewScheduler(scheduler.Dependencies{
		Job: func(context.Context) error {
			runs.Add(1)
			cancel()
			return errors.New("push rejected")
		},
		Logger: zap.New(core),
	})
	require.NoError(testInstance, creationError)

	runError := instance.Run(executionContext, scheduler.Options{Expression: "@every 1h", RunImmediately: true})
	require.NoError(testInstance, runError)
	require.Equal(testInstance, int32(1), runs.Load())
	require.Equal(testInstance, 1, logs.FilterMessage("scheduled run failed").Len())
	require.Equal(testInstance, 1, logs.FilterMessage("scheduler stopped").Len())
}

func TestRunRejectsInvalidExpression(testInstance *testing.T) {
	instance, creationError := scheduler.NewScheduler(scheduler.Dependencies{
		Job:    func(context.Context) error { return nil },
		Logger: zap.NewNop(),
	})
	require.NoError(testInstance, creationError)

	runError := instance.Run(context.Background(), scheduler.Options{Expression: "61 * * * *"})
	require.Error(testInstance, runError)
}

func TestCronLoggerLevels(testInstance *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cronLogger := scheduler.NewCronLogger(zap.New(core))

	cronLogger.Info("wake", "now", time.Date(2024, time.April, 21, 12, 0, 0, 0, time.UTC))
	cronLogger.Info("skip")
	cronLogger.Error(errors.New("boom"), "panic", "stack", "...")

	entries := logs.All()
	require.Len(testInstance, entries, 3)
	require.Equal(testInstance, zapcore.DebugLevel, entries[0].Level)
	require.Equal(testInstance, zapcore.WarnLevel, entries[1].Level)
	require.Equal(testInstance, "skipping tick, previous run still active", entries[1].Message)
	require.Equal(testInstance, zapcore.ErrorLevel, entries[2].Level)
	require.Equal(testInstance, "boom", entries[2].ContextMap()["error"])
}

func TestSkipIfStillRunningGuardsOverlappingRuns(testInstance *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cronLogger := scheduler.NewCronLogger(zap.New(core))

	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	guarded := cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(func() {
		runs.Add(1)
		close(started)
		<-release
	}))

	done := make(chan struct{})
	go func() {
		guarded.Run()
		close(done)
	}()
	<-started
	guarded.Run()
	close(release)
	<-done

	require.Equal(testInstance, int32(1), runs.Load())
	require.Equal(testInstance, 1, logs.FilterMessage("skipping tick, previous run still active").Len())
}
