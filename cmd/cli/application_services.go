package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/cmd/cli/hub"
	"github.com/tyemirov/iteehub/internal/archive"
	"github.com/tyemirov/iteehub/internal/commitgate"
	"github.com/tyemirov/iteehub/internal/dependencies"
	"github.com/tyemirov/iteehub/internal/itpec"
	"github.com/tyemirov/iteehub/internal/pipeline"
	"github.com/tyemirov/iteehub/internal/store"
	"github.com/tyemirov/iteehub/internal/telegram"
	"github.com/tyemirov/iteehub/internal/updater"
	"github.com/tyemirov/iteehub/internal/utils"
	"github.com/tyemirov/iteehub/internal/version"
)

const (
	telegramTokenMissingTemplateConstant = "telegram delivery needs a bot token (telegram.token or TELEGRAM_BOT_TOKEN): %w"
	servicesReadyMessageConstant         = "services ready"
	gitBackendSelectedMessageConstant    = "git backend selected"
	databaseFieldNameConstant            = "database"
	dataDirectoryFieldNameConstant       = "data_directory"
	userAgentFieldNameConstant           = "user_agent"
	backendFieldNameConstant             = "backend"
)

// buildServices wires the update pipeline for one command invocation. Git and Telegram
// collaborators are only constructed for the steps the request enables.
func (application *Application) buildServices(executionContext context.Context, request hub.ServicesRequest) (hub.Services, error) {
	configuration := application.Configuration()
	logger := application.logger

	records, openError := store.Open(executionContext, configuration.Data.Database, logger)
	if openError != nil {
		return hub.Services{}, openError
	}

	runner, runnerError := application.buildRunner(executionContext, records, request)
	if runnerError != nil {
		return hub.Services{}, errors.Join(runnerError, records.Close())
	}

	return hub.Services{Runner: runner, Close: records.Close}, nil
}

func (application *Application) buildRunner(executionContext context.Context, records *store.Store, request hub.ServicesRequest) (*pipeline.Runner, error) {
	configuration := application.Configuration()
	logger := application.logger

	httpClient := dependencies.ResolveHTTPClient(application.httpClient, configuration.Sources.HTTPTimeout)
	userAgent := application.resolveUserAgent(executionContext)

	fetcher, fetcherError := itpec.NewPageFetcher(httpClient, userAgent)
	if fetcherError != nil {
		return nil, fetcherError
	}
	downloader, downloaderError := archive.NewDownloader(archive.Dependencies{
		HTTPClient:    httpClient,
		Records:       records,
		Logger:        logger,
		DataDirectory: configuration.Data.Directory,
		UserAgent:     userAgent,
	})
	if downloaderError != nil {
		return nil, downloaderError
	}
	updaterService, updaterError := updater.NewService(updater.Dependencies{
		Fetcher:    fetcher,
		Downloader: downloader,
		Logger:     logger,
	})
	if updaterError != nil {
		return nil, updaterError
	}

	runnerDependencies := pipeline.Dependencies{Updater: updaterService, Logger: logger}

	if request.Telegram {
		sender, senderError := dependencies.ResolveDocumentSender(application.documentSender, configuration.Telegram.Token, configuration.Telegram.APIEndpoint, httpClient)
		if senderError != nil {
			if errors.Is(senderError, telegram.ErrTokenRequired) {
				return nil, fmt.Errorf(telegramTokenMissingTemplateConstant, senderError)
			}
			return nil, senderError
		}
		notifier, notifierError := telegram.NewNotifier(telegram.Dependencies{
			Store:           records,
			Sender:          sender,
			Logger:          logger,
			DataDirectory:   configuration.Data.Directory,
			MessageInterval: configuration.Telegram.MessageInterval,
		})
		if notifierError != nil {
			return nil, notifierError
		}
		runnerDependencies.Notifier = notifier
	}

	if request.LargeFiles || request.Commit {
		repository, repositoryError := application.resolveGitRepository(request.Target)
		if repositoryError != nil {
			return nil, repositoryError
		}
		if request.LargeFiles {
			runnerDependencies.LargeFiles = repository
		}
		if request.Commit {
			gate, gateError := commitgate.NewService(commitgate.Dependencies{Repository: repository, Logger: logger})
			if gateError != nil {
				return nil, gateError
			}
			runnerDependencies.Committer = gate
		}
	}

	logger.Debug(servicesReadyMessageConstant,
		zap.String(databaseFieldNameConstant, records.Path()),
		zap.String(dataDirectoryFieldNameConstant, configuration.Data.Directory),
		zap.String(userAgentFieldNameConstant, userAgent),
	)
	return pipeline.NewRunner(runnerDependencies)
}

func (application *Application) buildCommitGate(executionContext context.Context, target utils.CommitTarget) (hub.CommitGate, error) {
	repository, repositoryError := application.resolveGitRepository(target)
	if repositoryError != nil {
		return nil, repositoryError
	}
	gate, gateError := commitgate.NewService(commitgate.Dependencies{Repository: repository, Logger: application.logger})
	if gateError != nil {
		return nil, gateError
	}
	return gate, nil
}

func (application *Application) resolveGitRepository(target utils.CommitTarget) (dependencies.GitRepository, error) {
	backend := strings.ToLower(strings.TrimSpace(target.Backend))
	if len(backend) == 0 {
		backend = dependencies.BackendShellConstant
	}

	executor := application.gitExecutor
	if backend == dependencies.BackendShellConstant {
		resolvedExecutor, executorError := dependencies.ResolveGitExecutor(application.gitExecutor, application.logger, application.humanReadableLoggingEnabled())
		if executorError != nil {
			return nil, executorError
		}
		executor = resolvedExecutor
	}

	application.logger.Debug(gitBackendSelectedMessageConstant, zap.String(backendFieldNameConstant, backend))
	return dependencies.ResolveGitRepository(backend, executor, application.Configuration().Commit.Token)
}

func (application *Application) resolveUserAgent(executionContext context.Context) string {
	if configured := strings.TrimSpace(application.Configuration().Sources.UserAgent); len(configured) > 0 {
		return configured
	}
	return version.UserAgent(application.versionResolver(executionContext))
}
