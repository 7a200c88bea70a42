package telegram_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/iteehub/internal/archive"
	"github.com/tyemirov/iteehub/internal/itpec"
	"github.com/tyemirov/iteehub/internal/store"
	"github.com/tyemirov/iteehub/internal/telegram"
	"github.com/tyemirov/iteehub/internal/updater"
)

const resultListingFixture = `<html><body><table>
<tr><td colspan="4"><div>Philippines</div></td></tr>
<tr>
  <td><div align="left">2024 April</div></td>
  <td><div><a href="/files/all-passers-information/philippines/2024A_FE.pdf">FE</a></div></td>
  <td><div></div></td>
  <td><div></div></td>
</tr>
</table></body></html>`

func TestDownloadedResultsAreDelivered(testInstance *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/all-passers", func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte(resultListingFixture))
	})
	mux.HandleFunc("/files/all-passers-information/philippines/2024A_FE.pdf", func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Last-Modified", time.Date(2024, 4, 21, 9, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		_, _ = writer.Write([]byte("passers"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	dataDirectory := filepath.Join(testInstance.TempDir(), "data")
	records, openError := store.Open(ctx, filepath.Join(dataDirectory, "data.db"), zap.NewNop())
	require.NoError(testInstance, openError)
	defer records.Close()

	fetcher, fetcherError := itpec.NewPageFetcher(server.Client(), "iteehub/test")
	require.NoError(testInstance, fetcherError)
	downloader, downloaderError := archive.NewDownloader(archive.Dependencies{
		HTTPClient:    server.Client(),
		Records:       records,
		Logger:        zap.NewNop(),
		DataDirectory: dataDirectory,
	})
	require.NoError(testInstance, downloaderError)
	updateService, serviceError := updater.NewService(updater.Dependencies{Fetcher: fetcher, Downloader: downloader, Logger: zap.NewNop()})
	require.NoError(testInstance, serviceError)

	summary, updateError := updateService.UpdateResults(ctx, server.URL+"/all-passers", false)
	require.NoError(testInstance, updateError)
	require.Equal(testInstance, 1, summary.Downloaded)

	sender := &recordingSender{}
	notifier, notifierError := telegram.NewNotifier(telegram.Dependencies{
		Store:         records,
		Sender:        sender,
		Logger:        zap.NewNop(),
		DataDirectory: dataDirectory,
	})
	require.NoError(testInstance, notifierError)

	delivered, deliveryError := notifier.Update(ctx, "-100")
	require.NoError(testInstance, deliveryError)
	require.Equal(testInstance, telegram.Summary{Pending: 1, Sent: 1}, delivered)
	require.Len(testInstance, sender.documents, 1)
	require.Equal(testInstance, filepath.Join(dataDirectory, "2024", "results", "Philippines_2024A_FE.pdf"), sender.documents[0].Path)
	require.Contains(testInstance, sender.documents[0].Caption, "#FE #FE_2024 #FE_2024A #result #philippines")

	pending, pendingError := records.PendingFiles(ctx, "-100")
	require.NoError(testInstance, pendingError)
	require.Empty(testInstance, pending)
}
