// Package archive downloads ITPEC archives into the data directory and records each version.
package archive

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/itpec"
	"github.com/tyemirov/iteehub/internal/store"
)

const (
	lastModifiedHeaderConstant          = "Last-Modified"
	userAgentHeaderConstant             = "User-Agent"
	archiveDirectoryPermissionsConstant = 0o755
	archiveFilePermissionsConstant      = 0o644
	temporaryFilePatternConstant        = ".download-*"
	httpClientMissingMessageConstant    = "http client not configured"
	recordsMissingMessageConstant       = "archive records not configured"
	loggerMissingMessageConstant        = "logger not configured"
	dataDirectoryMissingMessageConstant = "data directory must be provided"
	linkMissingMessageConstant          = "archive link must be provided"
	directoryMissingMessageConstant     = "archive directory must be provided"
	downloadStatusTemplateConstant      = "%s %s returned status %d"
	requestFailureTemplateConstant      = "failed to request %s: %w"
	writeFailureTemplateConstant        = "failed to store %s: %w"
	lookupFailureTemplateConstant       = "failed to look up records for %s: %w"
	recordFailureTemplateConstant       = "failed to record %s: %w"
	alreadyDownloadedMessageConstant    = "already downloaded, skipping"
	checkingChangesMessageConstant      = "already downloaded, checking changes"
	changesDetectedMessageConstant      = "changes detected, downloading"
	noChangesMessageConstant            = "no changes detected"
	downloadedMessageConstant           = "downloaded"
	contentUnchangedMessageConstant     = "content unchanged, not recording a new version"
	missingLastModifiedMessageConstant  = "response without Last-Modified, using current time"
	discardFailureMessageConstant       = "failed to remove unrecorded archive"
	fileFieldNameConstant               = "file"
	linkFieldNameConstant               = "link"
	md5FieldNameConstant                = "md5"
	lastModifiedFieldNameConstant       = "last_modified"
)

var (
	// ErrHTTPClientNotConfigured indicates the downloader was constructed without an HTTP client.
	ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)
	// ErrRecordsNotConfigured indicates the downloader was constructed without a record store.
	ErrRecordsNotConfigured = errors.New(recordsMissingMessageConstant)
	// ErrLoggerNotConfigured indicates the downloader was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrDataDirectoryRequired indicates the data directory was empty.
	ErrDataDirectoryRequired = errors.New(dataDirectoryMissingMessageConstant)
	// ErrLinkRequired indicates a request without a link.
	ErrLinkRequired = errors.New(linkMissingMessageConstant)
	// ErrDirectoryRequired indicates a request without a target directory.
	ErrDirectoryRequired = errors.New(directoryMissingMessageConstant)
)

// DownloadError reports a non-success HTTP status for an archive request.
type DownloadError struct {
	Method     string
	Link       string
	StatusCode int
}

// Error describes the failing request.
func (downloadError DownloadError) Error() string {
	return fmt.Sprintf(downloadStatusTemplateConstant, downloadError.Method, downloadError.Link, downloadError.StatusCode)
}

// Records is the persistence surface the downloader needs.
type Records interface {
	AddFile(executionContext context.Context, record store.FileRecord) error
	FindFile(executionContext context.Context, link string, lastModified int64, md5 string) ([]store.FileRecord, error)
}

// Clock supplies the fallback modification time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Outcome names what Download did with a request.
type Outcome string

// Download outcomes.
const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeUnchanged  Outcome = "unchanged"
)

// Request describes one archive to fetch.
type Request struct {
	Link string
	// Directory is relative to the data directory, e.g. "2024/results".
	Directory string
	YearMonth string
	// FilePrefix is prepended to the file name with an underscore when set.
	FilePrefix string
	Refresh    bool
}

// Result captures what happened to a request.
type Result struct {
	Outcome Outcome
	Path    string
	Record  store.FileRecord
}

// Dependencies enumerates collaborators required by the Downloader.
type Dependencies struct {
	HTTPClient    *http.Client
	Records       Records
	Clock         Clock
	Logger        *zap.Logger
	DataDirectory string
	UserAgent     string
}

// Downloader fetches archives and records their versions.
type Downloader struct {
	client        *http.Client
	records       Records
	clock         Clock
	logger        *zap.Logger
	dataDirectory string
	userAgent     string
}

// NewDownloader constructs a Downloader from the provided dependencies.
func NewDownloader(dependencies Dependencies) (*Downloader, error) {
	if dependencies.HTTPClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	if dependencies.Records == nil {
		return nil, ErrRecordsNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	dataDirectory := strings.TrimSpace(dependencies.DataDirectory)
	if len(dataDirectory) == 0 {
		return nil, ErrDataDirectoryRequired
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Downloader{
		client:        dependencies.HTTPClient,
		records:       dependencies.Records,
		clock:         clock,
		logger:        dependencies.Logger,
		dataDirectory: dataDirectory,
		userAgent:     strings.TrimSpace(dependencies.UserAgent),
	}, nil
}

// Download stores the archive unless a local copy exists. With Refresh set, a local copy is
// replaced only when the server reports a modification time that has not been recorded yet.
func (downloader *Downloader) Download(executionContext context.Context, request Request) (Result, error) {
	link := strings.TrimSpace(request.Link)
	if len(link) == 0 {
		return Result{}, ErrLinkRequired
	}
	directory := strings.TrimSpace(request.Directory)
	if len(directory) == 0 {
		return Result{}, ErrDirectoryRequired
	}

	fileName := itpec.PrefixedFileName(request.FilePrefix, itpec.FileNameFromURL(link))
	targetDirectory := filepath.Join(downloader.dataDirectory, filepath.FromSlash(directory))
	if mkdirError := os.MkdirAll(targetDirectory, archiveDirectoryPermissionsConstant); mkdirError != nil {
		return Result{}, fmt.Errorf(writeFailureTemplateConstant, fileName, mkdirError)
	}
	targetPath := filepath.Join(targetDirectory, fileName)

	if _, statError := os.Stat(targetPath); statError == nil {
		if !request.Refresh {
			downloader.logger.Info(alreadyDownloadedMessageConstant, zap.String(fileFieldNameConstant, fileName))
			return Result{Outcome: OutcomeSkipped, Path: targetPath}, nil
		}

		downloader.logger.Info(checkingChangesMessageConstant, zap.String(fileFieldNameConstant, fileName))
		changed, changeError := downloader.remoteChanged(executionContext, link)
		if changeError != nil {
			return Result{}, changeError
		}
		if !changed {
			downloader.logger.Info(noChangesMessageConstant, zap.String(fileFieldNameConstant, fileName))
			return Result{Outcome: OutcomeUnchanged, Path: targetPath}, nil
		}
		downloader.logger.Info(changesDetectedMessageConstant, zap.String(fileFieldNameConstant, fileName))
	}

	return downloader.fetch(executionContext, link, request.YearMonth, path.Join(directory, fileName), targetPath)
}

func (downloader *Downloader) remoteChanged(executionContext context.Context, link string) (bool, error) {
	response, responseError := downloader.send(executionContext, http.MethodHead, link)
	if responseError != nil {
		return false, responseError
	}
	response.Body.Close()

	lastModified, known := parseLastModified(response.Header)
	if !known {
		return true, nil
	}

	records, lookupError := downloader.records.FindFile(executionContext, link, lastModified.Unix(), "")
	if lookupError != nil {
		return false, fmt.Errorf(lookupFailureTemplateConstant, link, lookupError)
	}
	return len(records) == 0, nil
}

// fetch downloads link into targetPath. A version that cannot be recorded is removed again so
// the next run downloads it instead of skipping an unrecorded file.
func (downloader *Downloader) fetch(executionContext context.Context, link string, yearMonth string, relativePath string, targetPath string) (Result, error) {
	response, responseError := downloader.send(executionContext, http.MethodGet, link)
	if responseError != nil {
		return Result{}, responseError
	}
	defer response.Body.Close()

	lastModified, known := parseLastModified(response.Header)
	if !known {
		lastModified = downloader.clock.Now().UTC()
		downloader.logger.Warn(missingLastModifiedMessageConstant, zap.String(linkFieldNameConstant, link))
	}

	checksum, writeError := writeAtomically(targetPath, response.Body)
	if writeError != nil {
		return Result{}, fmt.Errorf(writeFailureTemplateConstant, filepath.Base(targetPath), writeError)
	}

	record := store.FileRecord{Link: link, LastModified: lastModified.Unix(), MD5: checksum, YearMonth: yearMonth, Path: relativePath}
	downloader.logger.Info(downloadedMessageConstant,
		zap.String(fileFieldNameConstant, filepath.Base(targetPath)),
		zap.String(md5FieldNameConstant, checksum),
		zap.Int64(lastModifiedFieldNameConstant, record.LastModified),
	)

	existing, lookupError := downloader.records.FindFile(executionContext, link, record.LastModified, checksum)
	if lookupError != nil {
		return Result{}, downloader.discard(targetPath, fmt.Errorf(lookupFailureTemplateConstant, link, lookupError))
	}
	for _, existingRecord := range existing {
		if existingRecord.MD5 == checksum {
			downloader.logger.Info(contentUnchangedMessageConstant, zap.String(linkFieldNameConstant, link))
			return Result{Outcome: OutcomeDownloaded, Path: targetPath, Record: existingRecord}, nil
		}
	}

	if recordError := downloader.records.AddFile(executionContext, record); recordError != nil {
		return Result{}, downloader.discard(targetPath, fmt.Errorf(recordFailureTemplateConstant, link, recordError))
	}
	return Result{Outcome: OutcomeDownloaded, Path: targetPath, Record: record}, nil
}

func (downloader *Downloader) discard(targetPath string, cause error) error {
	if removeError := os.Remove(targetPath); removeError != nil && !errors.Is(removeError, os.ErrNotExist) {
		downloader.logger.Warn(discardFailureMessageConstant, zap.String(fileFieldNameConstant, filepath.Base(targetPath)), zap.Error(removeError))
		return errors.Join(cause, removeError)
	}
	return cause
}

func (downloader *Downloader) send(executionContext context.Context, method string, link string) (*http.Response, error) {
	request, requestError := http.NewRequestWithContext(executionContext, method, link, nil)
	if requestError != nil {
		return nil, fmt.Errorf(requestFailureTemplateConstant, link, requestError)
	}
	if len(downloader.userAgent) > 0 {
		request.Header.Set(userAgentHeaderConstant, downloader.userAgent)
	}

	response, responseError := downloader.client.Do(request)
	if responseError != nil {
		return nil, fmt.Errorf(requestFailureTemplateConstant, link, responseError)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		response.Body.Close()
		return nil, DownloadError{Method: method, Link: link, StatusCode: response.StatusCode}
	}
	return response, nil
}

func parseLastModified(header http.Header) (time.Time, bool) {
	value := strings.TrimSpace(header.Get(lastModifiedHeaderConstant))
	if len(value) == 0 {
		return time.Time{}, false
	}
	parsed, parseError := http.ParseTime(value)
	if parseError != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// writeAtomically streams content next to targetPath and renames it into place, returning the md5 hex digest.
func writeAtomically(targetPath string, content io.Reader) (string, error) {
	temporaryFile, createError := os.CreateTemp(filepath.Dir(targetPath), temporaryFilePatternConstant)
	if createError != nil {
		return "", createError
	}
	temporaryPath := temporaryFile.Name()
	defer os.Remove(temporaryPath)

	hasher := md5.New()
	if _, copyError := io.Copy(io.MultiWriter(temporaryFile, hasher), content); copyError != nil {
		temporaryFile.Close()
		return "", copyError
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		return "", closeError
	}
	if chmodError := os.Chmod(temporaryPath, archiveFilePermissionsConstant); chmodError != nil {
		return "", chmodError
	}
	if renameError := os.Rename(temporaryPath, targetPath); renameError != nil {
		return "", renameError
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
