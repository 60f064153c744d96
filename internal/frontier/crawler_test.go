package frontier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		switch r.URL.Path {
		case "/paper.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>hello</html>"))
		case "/redirect":
			http.Redirect(w, r, "/page", http.StatusFound)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestCrawler(t *testing.T, f *Frontier, timeout time.Duration) (*Crawler, string) {
	t.Helper()
	dir := t.TempDir()
	c := NewCrawler(f, NewFetcher(timeout, true), CrawlerConfig{DownloadsDir: dir, BatchSize: 10, Concurrency: 3}, zap.NewNop())
	return c, dir
}

func TestCrawler_Drain(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, nil)
	f := newTestFrontier()
	_, err := f.EnqueueMany(ctx, []string{srv.URL + "/paper.pdf", srv.URL + "/missing", srv.URL + "/redirect"}, "")
	require.NoError(t, err)

	c, dir := newTestCrawler(t, f, time.Second)
	var hooked []string
	c.OnCrawled(func(_ context.Context, entry model.QueueEntry, _ string) error {
		hooked = append(hooked, entry.URL)
		return nil
	})

	report, err := c.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainReport{Attempted: 3, Crawled: 2, Failed: 1}, report)
	require.ElementsMatch(t, []string{srv.URL + "/paper.pdf", srv.URL + "/redirect"}, hooked)

	body, err := os.ReadFile(filepath.Join(dir, "1.pdf"))
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(body))

	// The 404 stays queued for the next pass.
	pending, err := f.DequeueBatch(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, srv.URL+"/missing", pending[0].URL)

	// Text responses are snapshotted into the cache.
	fresh, err := f.IsRecentlyCached(ctx, srv.URL+"/redirect")
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestCrawler_TimeoutLeavesEntryQueued(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, nil)
	f := newTestFrontier()
	_, err := f.Enqueue(ctx, srv.URL+"/slow", "")
	require.NoError(t, err)

	c, _ := newTestCrawler(t, f, 20*time.Millisecond)
	report, err := c.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)

	pending, err := f.DequeueBatch(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestCrawler_ExistingDownloadSkipsFetch(t *testing.T) {
	ctx := context.Background()
	var hits int32
	srv := newTestServer(t, &hits)
	f := newTestFrontier()
	_, err := f.Enqueue(ctx, srv.URL+"/paper.pdf", "")
	require.NoError(t, err)

	c, dir := newTestCrawler(t, f, time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.pdf"), []byte("cached"), 0o644))

	report, err := c.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Crawled)
	require.Zero(t, atomic.LoadInt32(&hits))
}

func TestCrawler_LocalFiles(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("local"), 0o644))

	f := newTestFrontier()
	_, err := f.EnqueueDirectory(ctx, src)
	require.NoError(t, err)

	c, _ := newTestCrawler(t, f, time.Second)
	report, err := c.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Crawled)

	crawled, err := f.Crawled(ctx)
	require.NoError(t, err)
	require.Len(t, crawled, 1)
	require.Equal(t, filepath.Join(src, "notes.txt"), crawled[0].Path)
}

func TestCrawler_EmptyFrontier(t *testing.T) {
	c, _ := newTestCrawler(t, newTestFrontier(), time.Second)
	report, err := c.Drain(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Attempted)
}

func TestValidateURL(t *testing.T) {
	require.NoError(t, validateURL("https://example.com/a.pdf", false))
	require.Error(t, validateURL("ftp://example.com/a.pdf", false))
	require.Error(t, validateURL("http://localhost:8080", false))
	require.Error(t, validateURL("http://127.0.0.1/", false))
	require.Error(t, validateURL("http://10.1.2.3/", false))
	require.Error(t, validateURL("http://[::1]/", false))
	require.NoError(t, validateURL("http://127.0.0.1/", true))
}

func TestFetcher_RedirectsAreValidated(t *testing.T) {
	f := NewFetcher(time.Second, false)
	via := []*http.Request{httptest.NewRequest(http.MethodGet, "https://example.com/", nil)}

	next := httptest.NewRequest(http.MethodGet, "http://10.0.0.7/admin", nil)
	require.Error(t, f.checkRedirect(next, via))
	next = httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
	require.Error(t, f.checkRedirect(next, via))
	next = httptest.NewRequest(http.MethodGet, "https://example.org/paper.pdf", nil)
	require.NoError(t, f.checkRedirect(next, via))

	hops := make([]*http.Request, 10)
	require.Error(t, f.checkRedirect(next, hops))
}

func TestRefusePrivateDial(t *testing.T) {
	require.Error(t, refusePrivateDial("tcp", "127.0.0.1:80", nil))
	require.Error(t, refusePrivateDial("tcp", "192.168.1.10:443", nil))
	require.Error(t, refusePrivateDial("tcp6", "[fd00::1]:443", nil))
	require.NoError(t, refusePrivateDial("tcp", "93.184.216.34:443", nil))
}

func TestPageCache_Consult(t *testing.T) {
	ctx := context.Background()
	f := newTestFrontier()
	pc := NewPageCache(f, zap.NewNop())

	var calls int
	extract := func(_ context.Context, content string) (json.RawMessage, error) {
		calls++
		return json.Marshal(map[string]int{"length": len(content)})
	}

	out, err := pc.Consult(ctx, "http://x", "hello", extract, false)
	require.NoError(t, err)
	require.JSONEq(t, `{"length":5}`, string(out))

	out, err = pc.Consult(ctx, "http://x", "hello", extract, false)
	require.NoError(t, err)
	require.JSONEq(t, `{"length":5}`, string(out))
	require.Equal(t, 1, calls)

	_, err = pc.Consult(ctx, "http://x", "hello!", extract, false)
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	_, err = pc.Consult(ctx, "http://x", "hello!", extract, true)
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	failing := func(context.Context, string) (json.RawMessage, error) { return nil, errors.New("boom") }
	_, err = pc.Consult(ctx, "http://y", "z", failing, false)
	require.Error(t, err)
	ok, err := f.IsFullyCached(ctx, "http://y", "z")
	require.NoError(t, err)
	require.False(t, ok)
}
