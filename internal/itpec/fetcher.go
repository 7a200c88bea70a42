package itpec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgentHeaderConstant          = "User-Agent"
	pageStatusErrorTemplateConstant  = "page %s returned status %d"
	pageRequestFailureTemplate       = "failed to request page %s: %w"
	pageParseFailureTemplate         = "failed to parse page %s: %w"
	httpClientMissingMessageConstant = "http client not configured"
)

// ErrHTTPClientNotConfigured indicates the fetcher was constructed without an HTTP client.
var ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)

// PageStatusError reports a non-success HTTP status for a listing page.
type PageStatusError struct {
	URL        string
	StatusCode int
}

// Error describes the failing page.
func (statusError PageStatusError) Error() string {
	return fmt.Sprintf(pageStatusErrorTemplateConstant, statusError.URL, statusError.StatusCode)
}

// PageFetcher downloads and parses ITPEC listing pages.
type PageFetcher struct {
	client    *http.Client
	userAgent string
}

// NewPageFetcher constructs a PageFetcher using the provided client.
func NewPageFetcher(client *http.Client, userAgent string) (*PageFetcher, error) {
	if client == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	return &PageFetcher{client: client, userAgent: strings.TrimSpace(userAgent)}, nil
}

// Document fetches the page and parses it as UTF-8 HTML.
func (fetcher *PageFetcher) Document(executionContext context.Context, pageURL string) (*goquery.Document, error) {
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, pageURL, nil)
	if requestError != nil {
		return nil, fmt.Errorf(pageRequestFailureTemplate, pageURL, requestError)
	}
	if len(fetcher.userAgent) > 0 {
		request.Header.Set(userAgentHeaderConstant, fetcher.userAgent)
	}

	response, responseError := fetcher.client.Do(request)
	if responseError != nil {
		return nil, fmt.Errorf(pageRequestFailureTemplate, pageURL, responseError)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, PageStatusError{URL: pageURL, StatusCode: response.StatusCode}
	}

	document, parseError := goquery.NewDocumentFromReader(response.Body)
	if parseError != nil {
		return nil, fmt.Errorf(pageParseFailureTemplate, pageURL, parseError)
	}
	document.Url = response.Request.URL
	return document, nil
}
