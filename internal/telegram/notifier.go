// Package telegram posts newly archived files to Telegram chats and remembers what each chat received.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/store"
)

const (
	storeMissingMessageConstant         = "delivery store not configured"
	senderMissingMessageConstant        = "document sender not configured"
	loggerMissingMessageConstant        = "logger not configured"
	dataDirectoryMissingMessageConstant = "data directory must be provided"
	pendingFailureTemplateConstant      = "failed to list pending files for %s: %w"
	recordFailureTemplateConstant       = "failed to record delivery of %s: %w"
	noPendingMessageConstant            = "found no pending files"
	pendingMessageConstant              = "found pending files"
	sentMessageConstant                 = "sent archive"
	rejectedMessageConstant             = "telegram rejected archive"
	unpreparedMessageConstant           = "failed to prepare archive message"
	chatFieldNameConstant               = "chat_id"
	countFieldNameConstant              = "count"
	fileFieldNameConstant               = "file"
	linkFieldNameConstant               = "link"
)

var (
	// ErrStoreNotConfigured indicates the Notifier was constructed without a delivery store.
	ErrStoreNotConfigured = errors.New(storeMissingMessageConstant)
	// ErrSenderNotConfigured indicates the Notifier was constructed without a sender.
	ErrSenderNotConfigured = errors.New(senderMissingMessageConstant)
	// ErrLoggerNotConfigured indicates the Notifier was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrDataDirectoryRequired indicates the data directory was empty.
	ErrDataDirectoryRequired = errors.New(dataDirectoryMissingMessageConstant)
)

// DeliveryStore tracks which archives each chat has received.
type DeliveryStore interface {
	PendingFiles(executionContext context.Context, chatID string) ([]store.FileRecord, error)
	AddDelivery(executionContext context.Context, chatID string, md5 string) error
}

// WaitFunc pauses between messages and returns early when the context ends.
type WaitFunc func(executionContext context.Context, duration time.Duration) error

// Dependencies enumerates collaborators required by the Notifier.
type Dependencies struct {
	Store         DeliveryStore
	Sender        DocumentSender
	Logger        *zap.Logger
	DataDirectory string
	// MessageInterval is the pause between two posts; zero posts back to back.
	MessageInterval time.Duration
	Wait            WaitFunc
}

// Summary tallies a notification run.
type Summary struct {
	Pending  int
	Sent     int
	Rejected int
	Skipped  int
}

// Notifier delivers pending archives to a chat.
type Notifier struct {
	store           DeliveryStore
	sender          DocumentSender
	logger          *zap.Logger
	dataDirectory   string
	messageInterval time.Duration
	wait            WaitFunc
}

// NewNotifier constructs a Notifier from the provided dependencies.
func NewNotifier(dependencies Dependencies) (*Notifier, error) {
	if dependencies.Store == nil {
		return nil, ErrStoreNotConfigured
	}
	if dependencies.Sender == nil {
		return nil, ErrSenderNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	dataDirectory := strings.TrimSpace(dependencies.DataDirectory)
	if len(dataDirectory) == 0 {
		return nil, ErrDataDirectoryRequired
	}
	interval := dependencies.MessageInterval
	if interval < 0 {
		interval = 0
	}
	wait := dependencies.Wait
	if wait == nil {
		wait = sleepContext
	}
	return &Notifier{
		store:           dependencies.Store,
		sender:          dependencies.Sender,
		logger:          dependencies.Logger,
		dataDirectory:   dataDirectory,
		messageInterval: interval,
		wait:            wait,
	}, nil
}

// Update posts every archive the chat has not received yet, oldest first. Rejected messages
// are logged and retried on the next run; any other send failure stops the run.
func (notifier *Notifier) Update(executionContext context.Context, chatID string) (Summary, error) {
	trimmedChatID := strings.TrimSpace(chatID)
	if len(trimmedChatID) == 0 {
		return Summary{}, ErrChatRequired
	}

	pending, pendingError := notifier.store.PendingFiles(executionContext, trimmedChatID)
	if pendingError != nil {
		return Summary{}, fmt.Errorf(pendingFailureTemplateConstant, trimmedChatID, pendingError)
	}
	summary := Summary{Pending: len(pending)}
	if len(pending) == 0 {
		notifier.logger.Info(noPendingMessageConstant, zap.String(chatFieldNameConstant, trimmedChatID))
		return summary, nil
	}
	notifier.logger.Info(pendingMessageConstant, zap.String(chatFieldNameConstant, trimmedChatID), zap.Int(countFieldNameConstant, len(pending)))

	for _, record := range pending {
		message, prepareError := PrepareMessage(record, notifier.dataDirectory, fileExists)
		if prepareError != nil {
			notifier.logger.Warn(unpreparedMessageConstant, zap.String(linkFieldNameConstant, record.Link), zap.Error(prepareError))
			summary.Skipped++
			continue
		}

		if notifier.messageInterval > 0 && summary.Sent+summary.Rejected > 0 {
			if waitError := notifier.wait(executionContext, notifier.messageInterval); waitError != nil {
				return summary, waitError
			}
		}

		sendError := notifier.sender.SendDocument(executionContext, Document{ChatID: trimmedChatID, Path: message.Path, Caption: message.Caption})
		if sendError != nil {
			var rejectedError DeliveryRejectedError
			if errors.As(sendError, &rejectedError) {
				notifier.logger.Warn(rejectedMessageConstant,
					zap.String(chatFieldNameConstant, trimmedChatID),
					zap.String(fileFieldNameConstant, message.Path),
					zap.Error(sendError),
				)
				summary.Rejected++
				continue
			}
			return summary, sendError
		}

		if recordError := notifier.store.AddDelivery(executionContext, trimmedChatID, record.MD5); recordError != nil {
			return summary, fmt.Errorf(recordFailureTemplateConstant, record.Link, recordError)
		}
		summary.Sent++
		notifier.logger.Info(sentMessageConstant, zap.String(chatFieldNameConstant, trimmedChatID), zap.String(fileFieldNameConstant, message.Path))
	}
	return summary, nil
}

func fileExists(path string) bool {
	info, statError := os.Stat(path)
	return statError == nil && !info.IsDir()
}

func sleepContext(executionContext context.Context, duration time.Duration) error {
	if duration <= 0 {
		return executionContext.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}
