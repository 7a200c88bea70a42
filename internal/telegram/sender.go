package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	tokenMissingMessageConstant      = "telegram bot token must be provided"
	chatMissingMessageConstant       = "telegram chat id must be provided"
	botInitializationTemplate        = "failed to initialize telegram bot: %w"
	deliveryRejectedTemplateConstant = "telegram rejected delivery to %s (%d): %s"
	sendFailureTemplateConstant      = "failed to send document to %s: %w"
	badRequestCodeConstant           = http.StatusBadRequest
	badRequestPrefixConstant         = "Bad Request"
)

var (
	// ErrTokenRequired indicates the bot token was empty.
	ErrTokenRequired = errors.New(tokenMissingMessageConstant)
	// ErrChatRequired indicates the chat id was empty.
	ErrChatRequired = errors.New(chatMissingMessageConstant)
)

// DeliveryRejectedError reports a Bot API refusal for a specific message, such as an
// oversized document or a malformed caption. Other messages may still succeed.
type DeliveryRejectedError struct {
	ChatID      string
	Code        int
	Description string
}

// Error describes the refusal.
func (rejectedError DeliveryRejectedError) Error() string {
	return fmt.Sprintf(deliveryRejectedTemplateConstant, rejectedError.ChatID, rejectedError.Code, rejectedError.Description)
}

// Document is a file post addressed to a chat.
type Document struct {
	ChatID  string
	Path    string
	Caption string
}

// DocumentSender posts documents to Telegram chats.
type DocumentSender interface {
	SendDocument(executionContext context.Context, document Document) error
}

// BotAPISender sends documents through the Telegram Bot API.
type BotAPISender struct {
	bot *tgbotapi.BotAPI
}

// NewBotAPISender authenticates against the Bot API. An empty endpoint selects the public API.
func NewBotAPISender(token string, apiEndpoint string, client *http.Client) (*BotAPISender, error) {
	trimmedToken := strings.TrimSpace(token)
	if len(trimmedToken) == 0 {
		return nil, ErrTokenRequired
	}
	endpoint := strings.TrimSpace(apiEndpoint)
	if len(endpoint) == 0 {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}

	bot, botError := tgbotapi.NewBotAPIWithClient(trimmedToken, endpoint, client)
	if botError != nil {
		return nil, fmt.Errorf(botInitializationTemplate, botError)
	}
	return &BotAPISender{bot: bot}, nil
}

// SendDocument uploads the file with an HTML caption. Numeric chat ids address chats
// directly; anything else is treated as a channel username such as "@itee_archive".
func (sender *BotAPISender) SendDocument(executionContext context.Context, document Document) error {
	chatID := strings.TrimSpace(document.ChatID)
	if len(chatID) == 0 {
		return ErrChatRequired
	}
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}

	var config tgbotapi.DocumentConfig
	if numericChatID, parseError := strconv.ParseInt(chatID, 10, 64); parseError == nil {
		config = tgbotapi.NewDocument(numericChatID, tgbotapi.FilePath(document.Path))
	} else {
		config = tgbotapi.NewDocument(0, tgbotapi.FilePath(document.Path))
		config.ChannelUsername = chatID
	}
	config.Caption = document.Caption
	config.ParseMode = tgbotapi.ModeHTML

	if _, sendError := sender.bot.Send(config); sendError != nil {
		var apiError *tgbotapi.Error
		if errors.As(sendError, &apiError) && isBadRequest(apiError) {
			return DeliveryRejectedError{ChatID: chatID, Code: apiError.Code, Description: apiError.Message}
		}
		return fmt.Errorf(sendFailureTemplateConstant, chatID, sendError)
	}
	return nil
}

func isBadRequest(apiError *tgbotapi.Error) bool {
	if apiError.Code == badRequestCodeConstant {
		return true
	}
	return apiError.Code == 0 && strings.HasPrefix(apiError.Message, badRequestPrefixConstant)
}
