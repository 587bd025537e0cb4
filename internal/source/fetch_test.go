package source

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatson/internal/cache"
	domainerrors "whatson/internal/errors"
	"whatson/internal/metrics"
)

const twoGalaDates = `[
	{"id": "1", "fields": {"title": "Gala", "date": "2024-03-01T19:00:00Z", "large_image": "g.jpg"}},
	{"id": "2", "fields": {"title": "Gala", "date": "2024-03-08T19:00:00Z"}}
]`

// countingTransport answers every Get with a canned response.
type countingTransport struct {
	mu      sync.Mutex
	calls   int
	body    string
	err     error
	headers http.Header
}

func (c *countingTransport) Get(_ context.Context, _ string, header http.Header) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.headers = header.Clone()
	if c.err != nil {
		return nil, c.err
	}
	return &Response{StatusCode: http.StatusOK, Body: []byte(c.body)}, nil
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestFetcher(tr Transport, clk *clock) (*Fetcher, *cache.MemoryStore) {
	store := cache.NewMemoryStore()
	f := NewFetcher(Options{
		APIKey:    "secret",
		Transport: tr,
		Cache:     cache.NewEventCache(store, cache.WithClock(clk.now)),
	})
	return f, store
}

func TestGetEvents_FetchesAndNormalizes(t *testing.T) {
	tr := &countingTransport{body: twoGalaDates}
	f, _ := newTestFetcher(tr, &clock{t: time.Now()})

	events, err := f.GetEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Gala", events[0].Title)
	assert.Equal(t, DefaultCDNBase+"/g.jpg", events[0].Image)
	assert.Equal(t, "secret", tr.headers.Get("X-API-Key"))
	assert.Equal(t, "application/json", tr.headers.Get("Content-Type"))
}

func TestGetEvents_SingleObjectBody(t *testing.T) {
	tr := &countingTransport{body: `{"id": "solo", "fields": {"title": "Solo"}}`}
	f, _ := newTestFetcher(tr, &clock{t: time.Now()})

	events, err := f.GetEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "solo", events[0].ID)
}

func TestGetEvents_FreshCacheSkipsNetwork(t *testing.T) {
	tr := &countingTransport{body: twoGalaDates}
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	f, _ := newTestFetcher(tr, clk)
	ctx := context.Background()

	_, err := f.GetEvents(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, tr.count())

	clk.t = clk.t.Add(30 * time.Minute)
	events, err := f.GetEvents(ctx)
	require.NoError(t, err)

	assert.Len(t, events, 2)
	assert.Equal(t, 1, tr.count(), "fresh entry must short-circuit the transport")
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	tr := &countingTransport{body: twoGalaDates}
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	f, store := newTestFetcher(tr, clk)
	ctx := context.Background()

	_, err := f.GetEvents(ctx)
	require.NoError(t, err)

	f.Invalidate(ctx)
	_, err = store.Get(ctx, cache.DefaultKey)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	_, err = f.GetEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.count())
}

func TestGetEvents_StaleCacheRefetchesAndOverwrites(t *testing.T) {
	tr := &countingTransport{body: twoGalaDates}
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	f, _ := newTestFetcher(tr, clk)
	ctx := context.Background()

	_, err := f.GetEvents(ctx)
	require.NoError(t, err)

	tr.body = `[{"id": "3", "fields": {"title": "Panto"}}]`
	clk.t = clk.t.Add(3_600_001 * time.Millisecond)

	events, err := f.GetEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.count())
	require.Len(t, events, 1)
	assert.Equal(t, "Panto", events[0].Title)

	// The overwrite is now the fresh entry.
	events, err = f.GetEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.count())
	assert.Equal(t, "Panto", events[0].Title)
}

func TestGetEvents_CorruptCacheFallsThrough(t *testing.T) {
	tr := &countingTransport{body: twoGalaDates}
	f, store := newTestFetcher(tr, &clock{t: time.Now()})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, cache.DefaultKey, []byte("not json")))

	events, err := f.GetEvents(ctx)
	require.NoError(t, err)

	assert.Len(t, events, 2)
	assert.Equal(t, 1, tr.count())
}

func TestGetEvents_EmptyBody(t *testing.T) {
	for _, body := range []string{"", "  ", "null", "false", `""`} {
		t.Run(body, func(t *testing.T) {
			tr := &countingTransport{body: body}
			f, store := newTestFetcher(tr, &clock{t: time.Now()})

			_, err := f.GetEvents(context.Background())

			require.Error(t, err)
			assert.True(t, domainerrors.Is(err, domainerrors.ErrEmptyResponse))
			assert.Equal(t, "no data received", err.Error())
			_, getErr := store.Get(context.Background(), cache.DefaultKey)
			assert.ErrorIs(t, getErr, cache.ErrNotFound, "nothing cached on failure")
		})
	}
}

func TestGetEvents_InvalidJSON(t *testing.T) {
	tr := &countingTransport{body: "<html>maintenance</html>"}
	f, _ := newTestFetcher(tr, &clock{t: time.Now()})

	_, err := f.GetEvents(context.Background())

	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrFetch))
}

func TestGetEvents_TransportErrorSurfaced(t *testing.T) {
	tr := &countingTransport{err: domainerrors.Fetch(http.StatusUnauthorized, "Unauthorized", nil)}
	f, _ := newTestFetcher(tr, &clock{t: time.Now()})

	_, err := f.GetEvents(context.Background())

	require.Error(t, err)
	assert.Equal(t, "API Error: 401 - Unauthorized", err.Error())
}

func TestRefresh_BypassesFreshCache(t *testing.T) {
	tr := &countingTransport{body: twoGalaDates}
	f, _ := newTestFetcher(tr, &clock{t: time.Now()})
	ctx := context.Background()

	_, err := f.GetEvents(ctx)
	require.NoError(t, err)
	_, err = f.Refresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, tr.count())
}

func TestHTTPTransport_SendsHeadersAndReadsBody(t *testing.T) {
	var gotKey, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(twoGalaDates))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(Options{
		Endpoint:  srv.URL,
		APIKey:    "k-123",
		Transport: NewHTTPTransport(5*time.Second, 0),
	})

	events, err := f.GetEvents(context.Background())
	require.NoError(t, err)

	assert.Len(t, events, 2)
	assert.Equal(t, "k-123", gotKey)
	assert.Equal(t, "application/json", gotType)
}

func TestHTTPTransport_Non2xxCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	tr := NewHTTPTransport(5*time.Second, 60)
	_, err := tr.Get(context.Background(), srv.URL, nil)

	require.Error(t, err)
	var domainErr *domainerrors.Error
	require.True(t, domainerrors.As(err, &domainErr))
	assert.Equal(t, http.StatusServiceUnavailable, domainErr.Status)
	assert.Equal(t, "Service Unavailable", domainErr.StatusText)
	assert.Equal(t, "API Error: 503 - Service Unavailable", err.Error())
}

// rawStatusServer answers every request with the given status line and an
// empty body, so reason phrases net/http would not produce can be sent.
func rawStatusServer(t *testing.T, statusLine string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = http.ReadRequest(bufio.NewReader(c))
				_, _ = c.Write([]byte(statusLine + "\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
			}(conn)
		}
	}()
	return "http://" + ln.Addr().String()
}

func TestHTTPTransport_UpstreamReasonPhrase(t *testing.T) {
	tests := []struct {
		name       string
		statusLine string
		wantStatus int
		wantText   string
	}{
		{"non-standard code", "HTTP/1.1 599 Venue Closed", 599, "Venue Closed"},
		{"custom phrase", "HTTP/1.1 503 Back Soon", 503, "Back Soon"},
		{"missing phrase", "HTTP/1.1 404", 404, "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := rawStatusServer(t, tt.statusLine)

			_, err := NewHTTPTransport(5*time.Second, 0).Get(context.Background(), url, nil)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.wantStatus, domainErr.Status)
			assert.Equal(t, tt.wantText, domainErr.StatusText)
		})
	}
}

func TestHTTPTransport_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPTransport(time.Second, 0).Get(ctx, srv.URL, nil)

	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrFetch))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://api.example/...(redacted)", redactURL("https://api.example/api/challenge?key=1"))
	assert.Equal(t, "...(redacted)", redactURL("not a url"))
}

func TestGetEvents_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	clk := &clock{t: time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)}
	tr := &countingTransport{body: twoGalaDates}
	f := NewFetcher(Options{
		Transport: tr,
		Cache:     cache.NewEventCache(cache.NewMemoryStore(), cache.WithClock(clk.now)),
		Metrics:   m,
	})

	_, err := f.GetEvents(context.Background())
	require.NoError(t, err)
	_, err = f.GetEvents(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `whatson_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, body, `whatson_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `whatson_fetch_total{result="ok"} 1`)
	assert.Contains(t, body, "whatson_events 2")
}
