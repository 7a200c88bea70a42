package hub

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tyemirov/iteehub/internal/pipeline"
	flagutils "github.com/tyemirov/iteehub/internal/utils/flags"
)

const (
	updateCommandUseConstant              = "update"
	updateCommandShortDescriptionConstant = "Download new ITPEC archives and post them to Telegram"
	updateCommandLongDescriptionConstant  = "update scrapes the ITPEC question and result pages, downloads archives that are not stored yet, and optionally posts archives a chat has not received. Without flags it prints help."
	updateQuestionsFlagNameConstant       = "update-questions"
	updateQuestionsFlagUsageConstant      = "Download past exam questions"
	updateResultsFlagNameConstant         = "update-results"
	updateResultsFlagUsageConstant        = "Download passer lists"
	updateTelegramFlagNameConstant        = "update-telegram"
	updateTelegramFlagUsageConstant       = "Post archives the chat has not received yet (numeric id or @channel)"
	refreshFlagNameConstant               = "refresh"
	refreshFlagUsageConstant              = "Re-download archives whose Last-Modified header changed"
	emptyChatMessageConstant              = "chat id for --update-telegram must not be empty"
)

// UpdateCommandBuilder assembles the update command.
type UpdateCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	ServicesFactory       ServicesFactory
}

// Build constructs the update command.
func (builder *UpdateCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   updateCommandUseConstant,
		Short: updateCommandShortDescriptionConstant,
		Long:  updateCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().Bool(updateQuestionsFlagNameConstant, false, updateQuestionsFlagUsageConstant)
	command.Flags().Bool(updateResultsFlagNameConstant, false, updateResultsFlagUsageConstant)
	command.Flags().String(updateTelegramFlagNameConstant, "", updateTelegramFlagUsageConstant)
	command.Flags().Bool(refreshFlagNameConstant, false, refreshFlagUsageConstant)

	return command, nil
}

func (builder *UpdateCommandBuilder) run(command *cobra.Command, arguments []string) error {
	updateQuestions, questionsChanged, _ := flagutils.BoolFlag(command, updateQuestionsFlagNameConstant)
	updateResults, resultsChanged, _ := flagutils.BoolFlag(command, updateResultsFlagNameConstant)
	chatID, chatChanged, _ := flagutils.StringFlag(command, updateTelegramFlagNameConstant)
	refresh, _, _ := flagutils.BoolFlag(command, refreshFlagNameConstant)

	if !questionsChanged && !resultsChanged && !chatChanged {
		return command.Help()
	}
	chatID = strings.TrimSpace(chatID)
	if chatChanged && len(chatID) == 0 {
		return errors.New(emptyChatMessageConstant)
	}
	if builder.ServicesFactory == nil {
		return ErrServicesFactoryNotConfigured
	}

	configuration := resolveConfiguration(builder.ConfigurationProvider)
	logger := resolveLogger(builder.LoggerProvider)

	services, servicesError := builder.ServicesFactory(command.Context(), ServicesRequest{
		Target:   resolveCommitTarget(command, configuration),
		Telegram: len(chatID) > 0,
	})
	if servicesError != nil {
		return servicesError
	}
	defer services.release(logger)

	report, runError := services.Runner.Run(command.Context(), pipeline.Options{
		UpdateQuestions:  updateQuestions,
		QuestionPageURLs: configuration.QuestionPageURLs,
		UpdateResults:    updateResults,
		ResultPageURL:    configuration.ResultPageURL,
		Refresh:          refresh,
		ChatID:           chatID,
	})
	printReport(command.OutOrStdout(), report)
	return runError
}
