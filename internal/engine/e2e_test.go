package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/bookharvest/internal/fetcher"
	"github.com/IshaanNene/bookharvest/internal/storage"
)

func TestEndToEndTwoPageSite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	var page2Hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/book/page/2/", func(w http.ResponseWriter, r *http.Request) {
		page2Hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/book/page/1/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingHTML([]string{"a", "b", "c"}, true)))
	})
	mux.HandleFunc("/book/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/book/" {
			_, _ = w.Write([]byte(indexHTML(2)))
			return
		}
		slug := strings.Trim(strings.TrimPrefix(r.URL.Path, "/book/"), "/")
		_, _ = w.Write([]byte(detailHTML(slug)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.Site.BaseURL = srv.URL
	cfg.Engine.RequestTimeout = 100 * time.Millisecond
	cfg.Storage.OutputPath = filepath.Join(t.TempDir(), "data", "raw_data")

	f, err := fetcher.NewHTTPFetcher(cfg, testLogger, nil)
	require.NoError(t, err)
	defer f.Close()

	e, err := New(cfg, f, testLogger)
	require.NoError(t, err)

	final, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(5), page2Hits.Load())
	assert.Equal(t, 3, final.Len())

	initial, err := storage.ReadCSV(filepath.Join(cfg.Storage.OutputPath, "book_data_initial.csv"))
	require.NoError(t, err)
	require.Len(t, initial, 3)
	for _, rec := range initial {
		assert.NotEmpty(t, rec.Title)
		assert.Len(t, rec.Authors, 1)
		assert.False(t, rec.IsEnriched(), "initial checkpoint has empty detail columns")
	}

	enriched, err := storage.ReadCSV(filepath.Join(cfg.Storage.OutputPath, "book_data_final.csv"))
	require.NoError(t, err)
	require.Len(t, enriched, 3)
	for _, rec := range enriched {
		assert.True(t, rec.IsEnriched(), "row %d", rec.ID)
		assert.True(t, strings.HasPrefix(rec.EPUB, srv.URL+"/download/"), rec.EPUB)
	}
}
