package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperifyio/deepsearch/internal/fetch"
)

func TestFetchMany_PreservesOrderAndSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><main><p>Paragraph with plenty of readable words in it right here.</p></main></body></html>`))
		case "/empty":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body></body></html>`))
		case "/notfound":
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := &Fetcher{Client: &fetch.Client{HTTPClient: srv.Client(), MaxAttempts: 1}}
	urls := []string{srv.URL + "/good", srv.URL + "/notfound", srv.URL + "/empty"}
	pages := f.FetchMany(context.Background(), urls, 5*time.Second, 2, 1000)

	if len(pages) != 1 {
		t.Fatalf("expected exactly one successful page, got %d: %+v", len(pages), pages)
	}
	if pages[0].Index != 0 || pages[0].URL != srv.URL+"/good" {
		t.Fatalf("unexpected page: %+v", pages[0])
	}
}

func TestFetchMany_EmptyBatchOnTotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := &Fetcher{Client: &fetch.Client{HTTPClient: srv.Client(), MaxAttempts: 1}}
	pages := f.FetchMany(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"}, 2*time.Second, 2, 1000)
	if len(pages) != 0 {
		t.Fatalf("expected empty result on total failure, got %d", len(pages))
	}
}
