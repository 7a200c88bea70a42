package itpec_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/iteehub/internal/itpec"
)

func TestPageFetcherDocument(testInstance *testing.T) {
	var receivedUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedUserAgent = request.Header.Get("User-Agent")
		if request.URL.Path == "/missing.html" {
			http.NotFound(writer, request)
			return
		}
		writer.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = writer.Write([]byte(questionPageFixture))
	}))
	defer server.Close()

	fetcher, creationError := itpec.NewPageFetcher(server.Client(), "iteehub/test")
	require.NoError(testInstance, creationError)

	document, fetchError := fetcher.Document(context.Background(), server.URL+"/pastexamqa/fe.html")
	require.NoError(testInstance, fetchError)
	require.Equal(testInstance, "iteehub/test", receivedUserAgent)
	require.Equal(testInstance, "/pastexamqa/fe.html", document.Url.Path)
	require.Equal(testInstance, 7, document.Find("table tr").Length())

	_, missingError := fetcher.Document(context.Background(), server.URL+"/missing.html")
	var statusError itpec.PageStatusError
	require.ErrorAs(testInstance, missingError, &statusError)
	require.Equal(testInstance, http.StatusNotFound, statusError.StatusCode)
}

func TestNewPageFetcherRequiresClient(testInstance *testing.T) {
	_, creationError := itpec.NewPageFetcher(nil, "")
	require.ErrorIs(testInstance, creationError, itpec.ErrHTTPClientNotConfigured)
}
