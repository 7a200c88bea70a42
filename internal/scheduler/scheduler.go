// Package scheduler triggers update runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultExpressionConstant runs at midnight and noon.
const DefaultExpressionConstant = "0 0,12 * * *"

const (
	jobMissingMessageConstant       = "scheduled job not configured"
	loggerMissingMessageConstant    = "logger not configured"
	invalidExpressionTemplate       = "invalid cron expression %q: %w"
	schedulerStartedMessageConstant = "scheduler started"
	schedulerStoppedMessageConstant = "scheduler stopped"
	runStartedMessageConstant       = "scheduled run started"
	runFailedMessageConstant        = "scheduled run failed"
	runCompletedMessageConstant     = "scheduled run completed"
	expressionFieldNameConstant     = "expression"
	nextRunFieldNameConstant        = "next_run"
	immediateRunMessageConstant     = "running immediately"
)

var (
	// ErrJobNotConfigured indicates the Scheduler was constructed without a job.
	ErrJobNotConfigured = errors.New(jobMissingMessageConstant)
	// ErrLoggerNotConfigured indicates the Scheduler was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
)

// Job is a single scheduled run.
type Job func(executionContext context.Context) error

// Dependencies enumerates collaborators required by the Scheduler.
type Dependencies struct {
	Job    Job
	Logger *zap.Logger
}

// Options configures a scheduling session.
type Options struct {
	Expression     string
	RunImmediately bool
	Location       *time.Location
}

// Scheduler runs a job on a cron schedule until its context ends.
type Scheduler struct {
	job    Job
	logger *zap.Logger
}

// NewScheduler validates dependencies and returns a Scheduler.
func NewScheduler(dependencies Dependencies) (*Scheduler, error) {
	if dependencies.Job == nil {
		return nil, ErrJobNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Scheduler{job: dependencies.Job, logger: dependencies.Logger}, nil
}

// ParseExpression validates a standard five-field cron expression or descriptor such as "@daily".
func ParseExpression(expression string) (cron.Schedule, error) {
	trimmedExpression := normalizeExpression(expression)
	schedule, parseError := cron.ParseStandard(trimmedExpression)
	if parseError != nil {
		return nil, fmt.Errorf(invalidExpressionTemplate, trimmedExpression, parseError)
	}
	return schedule, nil
}

// Run blocks until the context ends. Ticks that arrive while a run is still active are
// skipped. Stopping waits for the active run to return.
func (scheduler *Scheduler) Run(executionContext context.Context, options Options) error {
	schedule, parseError := ParseExpression(options.Expression)
	if parseError != nil {
		return parseError
	}
	location := options.Location
	if location == nil {
		location = time.UTC
	}

	cronLogger := NewCronLogger(scheduler.logger)
	chain := cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))
	guardedJob := chain.Then(cron.FuncJob(func() {
		scheduler.execute(executionContext)
	}))

	engine := cron.New(cron.WithLocation(location), cron.WithLogger(cronLogger))
	engine.Schedule(schedule, guardedJob)
	engine.Start()
	scheduler.logger.Info(schedulerStartedMessageConstant,
		zap.String(expressionFieldNameConstant, normalizeExpression(options.Expression)),
		zap.Time(nextRunFieldNameConstant, schedule.Next(time.Now().In(location))),
	)

	if options.RunImmediately {
		scheduler.logger.Info(immediateRunMessageConstant)
		guardedJob.Run()
	}

	<-executionContext.Done()
	stopped := engine.Stop()
	<-stopped.Done()
	scheduler.logger.Info(schedulerStoppedMessageConstant)
	return nil
}

func (scheduler *Scheduler) execute(executionContext context.Context) {
	if executionContext.Err() != nil {
		return
	}
	scheduler.logger.Info(runStartedMessageConstant)
	if jobError := scheduler.job(executionContext); jobError != nil {
		scheduler.logger.Error(runFailedMessageConstant, zap.Error(jobError))
		return
	}
	scheduler.logger.Info(runCompletedMessageConstant)
}

func normalizeExpression(expression string) string {
	trimmedExpression := strings.TrimSpace(expression)
	if len(trimmedExpression) == 0 {
		return DefaultExpressionConstant
	}
	return trimmedExpression
}
