package utils

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel enumerates supported logging levels.
type LogLevel string

// LogFormat enumerates supported diagnostic encodings.
type LogFormat string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Supported log formats.
const (
	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level %q"
	unsupportedLogFormatTemplateConstant = "unsupported log format %q"
	logFileOpenTemplateConstant          = "failed to open log file %s: %w"
	logFileDirectoryTemplateConstant     = "failed to create log directory %s: %w"
	consoleTimeLayoutConstant            = "2006-01-02 15:04:05"
	logFilePermissionsConstant           = 0o644
	logDirectoryPermissionsConstant      = 0o755
)

// LoggerOutputs bundles the diagnostic logger with the human-facing console logger.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
	closers          []func() error
}

// Close flushes and releases file sinks attached to the outputs.
func (outputs LoggerOutputs) Close() error {
	var closeErrors []error
	if outputs.DiagnosticLogger != nil {
		_ = outputs.DiagnosticLogger.Sync()
	}
	for _, closer := range outputs.closers {
		if closeError := closer(); closeError != nil {
			closeErrors = append(closeErrors, closeError)
		}
	}
	return errors.Join(closeErrors...)
}

// LoggerFactory builds zap loggers for the CLI.
type LoggerFactory struct {
	logFilePath string
}

// NewLoggerFactory constructs a LoggerFactory that logs to standard error only.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// WithLogFile returns a factory that also appends JSON entries to the given file.
func (factory *LoggerFactory) WithLogFile(logFilePath string) *LoggerFactory {
	return &LoggerFactory{logFilePath: strings.TrimSpace(logFilePath)}
}

// CreateLoggerOutputs builds the diagnostic and console loggers for the requested level and format.
// In structured mode the console logger is a no-op so standard error carries JSON only.
func (factory *LoggerFactory) CreateLoggerOutputs(level LogLevel, format LogFormat) (LoggerOutputs, error) {
	zapLevel, levelError := parseLogLevel(level)
	if levelError != nil {
		return LoggerOutputs{}, levelError
	}

	standardError := zapcore.Lock(zapcore.AddSync(os.Stderr))
	levelEnabler := zap.NewAtomicLevelAt(zapLevel)

	var diagnosticCore zapcore.Core
	var consoleLogger *zap.Logger
	switch LogFormat(strings.ToLower(strings.TrimSpace(string(format)))) {
	case LogFormatStructured:
		diagnosticCore = zapcore.NewCore(zapcore.NewJSONEncoder(structuredEncoderConfig()), standardError, levelEnabler)
		consoleLogger = zap.NewNop()
	case LogFormatConsole:
		diagnosticCore = zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), standardError, levelEnabler)
		consoleLogger = zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(humanEncoderConfig()), standardError, zap.NewAtomicLevelAt(zapcore.InfoLevel)))
	default:
		return LoggerOutputs{}, fmt.Errorf(unsupportedLogFormatTemplateConstant, format)
	}

	outputs := LoggerOutputs{ConsoleLogger: consoleLogger}
	if len(factory.logFilePath) > 0 {
		fileCore, closer, fileError := openLogFileCore(factory.logFilePath, levelEnabler)
		if fileError != nil {
			return LoggerOutputs{}, fileError
		}
		diagnosticCore = zapcore.NewTee(diagnosticCore, fileCore)
		outputs.closers = append(outputs.closers, closer)
	}

	outputs.DiagnosticLogger = zap.New(diagnosticCore, zap.AddCaller(), zap.ErrorOutput(standardError))
	return outputs, nil
}

func openLogFileCore(logFilePath string, levelEnabler zapcore.LevelEnabler) (zapcore.Core, func() error, error) {
	directory := filepath.Dir(logFilePath)
	if mkdirError := os.MkdirAll(directory, logDirectoryPermissionsConstant); mkdirError != nil {
		return nil, nil, fmt.Errorf(logFileDirectoryTemplateConstant, directory, mkdirError)
	}
	logFile, openError := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePermissionsConstant)
	if openError != nil {
		return nil, nil, fmt.Errorf(logFileOpenTemplateConstant, logFilePath, openError)
	}
	bufferedFile := bufio.NewWriter(logFile)
	sink := zapcore.Lock(zapcore.AddSync(NewFlushingWriter(bufferedFile)))
	core := zapcore.NewCore(zapcore.NewJSONEncoder(structuredEncoderConfig()), sink, levelEnabler)
	closer := func() error {
		return errors.Join(bufferedFile.Flush(), logFile.Close())
	}
	return core, closer, nil
}

func parseLogLevel(level LogLevel) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(string(level)))) {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf(unsupportedLogLevelTemplateConstant, level)
	}
}

func structuredEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderConfig
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(consoleTimeLayoutConstant)
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return encoderConfig
}

// humanEncoderConfig prints the message alone.
func humanEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}
