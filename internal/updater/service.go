// Package updater scrapes the ITPEC listing pages and downloads every archive they link to.
package updater

import (
	"context"
	"errors"
	"net/url"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/archive"
	"github.com/tyemirov/iteehub/internal/itpec"
)

const (
	fetcherMissingMessageConstant    = "page fetcher not configured"
	downloaderMissingMessageConstant = "archive downloader not configured"
	loggerMissingMessageConstant     = "logger not configured"
	pageFailureMessageConstant       = "failed to load listing page"
	pageURLInvalidMessageConstant    = "listing page url invalid"
	yearUnparsedMessageConstant      = "failed to parse year from archive link"
	downloadFailureMessageConstant   = "failed to download archive"
	linksDiscoveredMessageConstant   = "archive links discovered"
	updateCompletedMessageConstant   = "listing update completed"
	pageFieldNameConstant            = "page"
	linkFieldNameConstant            = "link"
	countFieldNameConstant           = "count"
	downloadedFieldNameConstant      = "downloaded"
	skippedFieldNameConstant         = "skipped"
	failedFieldNameConstant          = "failed"
)

var (
	// ErrFetcherNotConfigured indicates the Service was constructed without a page fetcher.
	ErrFetcherNotConfigured = errors.New(fetcherMissingMessageConstant)
	// ErrDownloaderNotConfigured indicates the Service was constructed without a downloader.
	ErrDownloaderNotConfigured = errors.New(downloaderMissingMessageConstant)
	// ErrLoggerNotConfigured indicates the Service was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
)

// PageFetcher loads listing pages.
type PageFetcher interface {
	Document(executionContext context.Context, pageURL string) (*goquery.Document, error)
}

// ArchiveDownloader stores a single archive.
type ArchiveDownloader interface {
	Download(executionContext context.Context, request archive.Request) (archive.Result, error)
}

// Dependencies enumerates collaborators required by the Service.
type Dependencies struct {
	Fetcher    PageFetcher
	Downloader ArchiveDownloader
	Logger     *zap.Logger
}

// Summary tallies the archives handled by an update.
type Summary struct {
	Discovered int
	Downloaded int
	Skipped    int
	Failed     int
}

// Add merges another summary into this one.
func (summary Summary) Add(other Summary) Summary {
	return Summary{
		Discovered: summary.Discovered + other.Discovered,
		Downloaded: summary.Downloaded + other.Downloaded,
		Skipped:    summary.Skipped + other.Skipped,
		Failed:     summary.Failed + other.Failed,
	}
}

// Service runs listing updates.
type Service struct {
	fetcher    PageFetcher
	downloader ArchiveDownloader
	logger     *zap.Logger
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Fetcher == nil {
		return nil, ErrFetcherNotConfigured
	}
	if dependencies.Downloader == nil {
		return nil, ErrDownloaderNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Service{fetcher: dependencies.Fetcher, downloader: dependencies.Downloader, logger: dependencies.Logger}, nil
}

// UpdateQuestions downloads every question archive listed on pageURL into <year>/questions.
// Unreachable pages and failed archives are logged; only context cancellation is returned.
func (service *Service) UpdateQuestions(executionContext context.Context, pageURL string, refresh bool) (Summary, error) {
	baseURL, document, loaded := service.load(executionContext, pageURL)
	if !loaded {
		return Summary{}, executionContext.Err()
	}

	links := itpec.ExtractQuestionLinks(baseURL, document, service.logger)
	service.logger.Info(linksDiscoveredMessageConstant, zap.String(pageFieldNameConstant, pageURL), zap.Int(countFieldNameConstant, len(links)))

	summary := Summary{Discovered: len(links)}
	for _, link := range links {
		if contextError := executionContext.Err(); contextError != nil {
			return summary, contextError
		}
		year, found := itpec.YearFromText(pathOf(link.Link))
		if !found {
			service.logger.Error(yearUnparsedMessageConstant, zap.String(linkFieldNameConstant, link.Link))
			summary.Failed++
			continue
		}
		service.download(executionContext, archive.Request{
			Link:      link.Link,
			Directory: itpec.QuestionsDirectory(year),
			YearMonth: link.YearMonth,
			Refresh:   refresh,
		}, &summary)
	}

	service.logSummary(pageURL, summary)
	return summary, executionContext.Err()
}

// UpdateResults downloads every passer-list archive listed on pageURL into <year>/results,
// prefixing file names with the country they were published for.
func (service *Service) UpdateResults(executionContext context.Context, pageURL string, refresh bool) (Summary, error) {
	baseURL, document, loaded := service.load(executionContext, pageURL)
	if !loaded {
		return Summary{}, executionContext.Err()
	}

	linksByYear := itpec.ExtractResultLinks(baseURL, document, service.logger)
	years := make([]string, 0, len(linksByYear))
	summary := Summary{}
	for year, links := range linksByYear {
		years = append(years, year)
		summary.Discovered += len(links)
	}
	sort.Strings(years)
	service.logger.Info(linksDiscoveredMessageConstant, zap.String(pageFieldNameConstant, pageURL), zap.Int(countFieldNameConstant, summary.Discovered))

	for _, year := range years {
		for _, link := range linksByYear[year] {
			if contextError := executionContext.Err(); contextError != nil {
				return summary, contextError
			}
			service.download(executionContext, archive.Request{
				Link:       link.Link,
				Directory:  itpec.ResultsDirectory(year),
				YearMonth:  link.YearMonth,
				FilePrefix: link.Country,
				Refresh:    refresh,
			}, &summary)
		}
	}

	service.logSummary(pageURL, summary)
	return summary, executionContext.Err()
}

func (service *Service) load(executionContext context.Context, pageURL string) (*url.URL, *goquery.Document, bool) {
	baseURL, parseError := url.Parse(pageURL)
	if parseError != nil {
		service.logger.Error(pageURLInvalidMessageConstant, zap.String(pageFieldNameConstant, pageURL), zap.Error(parseError))
		return nil, nil, false
	}
	document, fetchError := service.fetcher.Document(executionContext, pageURL)
	if fetchError != nil {
		service.logger.Error(pageFailureMessageConstant, zap.String(pageFieldNameConstant, pageURL), zap.Error(fetchError))
		return nil, nil, false
	}
	if document.Url != nil {
		baseURL = document.Url
	}
	return baseURL, document, true
}

func (service *Service) download(executionContext context.Context, request archive.Request, summary *Summary) {
	result, downloadError := service.downloader.Download(executionContext, request)
	if downloadError != nil {
		service.logger.Error(downloadFailureMessageConstant, zap.String(linkFieldNameConstant, request.Link), zap.Error(downloadError))
		summary.Failed++
		return
	}
	if result.Outcome == archive.OutcomeDownloaded {
		summary.Downloaded++
		return
	}
	summary.Skipped++
}

func (service *Service) logSummary(pageURL string, summary Summary) {
	service.logger.Info(updateCompletedMessageConstant,
		zap.String(pageFieldNameConstant, pageURL),
		zap.Int(downloadedFieldNameConstant, summary.Downloaded),
		zap.Int(skippedFieldNameConstant, summary.Skipped),
		zap.Int(failedFieldNameConstant, summary.Failed),
	)
}

func pathOf(rawURL string) string {
	parsedURL, parseError := url.Parse(rawURL)
	if parseError != nil {
		return rawURL
	}
	return parsedURL.Path
}
