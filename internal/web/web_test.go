package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatson/internal/config"
	domainerrors "whatson/internal/errors"
	"whatson/internal/metrics"
	"whatson/internal/model"
)

var now = time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu            sync.Mutex
	events        []model.Event
	err           error
	gets          int
	refreshes     int
	invalidations int
}

func (f *fakeProvider) GetEvents(context.Context) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.events, f.err
}

func (f *fakeProvider) Refresh(context.Context) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.events, f.err
}

func (f *fakeProvider) Invalidate(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
}

func listing(id, title, date string, category ...string) model.Event {
	if len(category) == 0 {
		category = []string{"Other"}
	}
	return model.Event{
		ID:          id,
		Title:       title,
		Date:        date,
		Category:    category,
		OnsaleDate:  "2024-01-01T00:00:00Z",
		OffsaleDate: "2024-12-31T23:59:59Z",
	}
}

func sampleEvents() []model.Event {
	game := listing("4", "Panthers v Stars", "2024-04-02T19:30:00Z", "Sport")
	game.IsPanthersGame = true
	game.Time = "Face-off 7:30pm"
	return []model.Event{
		listing("1", "Gala", "2024-03-08T19:00:00Z", "Music"),
		listing("2", "Gala", "2024-03-01T19:00:00Z", "Music"),
		listing("3", "Comedy Night", "2024-03-20T20:00:00Z", "Comedy"),
		game,
	}
}

type testServer struct {
	srv      *Server
	provider *fakeProvider
}

func setupTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}
	p := &fakeProvider{events: sampleEvents()}
	return &testServer{
		srv:      NewServer(cfg, p, WithClock(func() time.Time { return now })),
		provider: p,
	}
}

func (ts *testServer) do(method, target string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Zero(t, ts.provider.gets)
}

func TestEvents_GroupsAndLabels(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[eventsResponse](t, rec)
	require.Equal(t, 3, resp.Count)
	assert.Empty(t, resp.Message)

	gala := resp.Events[0]
	assert.Equal(t, "Gala", gala.Title)
	assert.Equal(t, "1", gala.ID)
	assert.Equal(t, []string{"2024-03-01T19:00:00Z", "2024-03-08T19:00:00Z"}, gala.Dates)
	assert.Equal(t, "Fri 1 & Fri 8 March 2024", gala.DateLabel)
	assert.Equal(t, "7:00 PM", gala.TimeLabel)

	game := resp.Events[2]
	assert.Equal(t, "Face-off 7:30pm", game.TimeLabel)
}

func TestEvents_QueryFilters(t *testing.T) {
	ts := setupTestServer(t, nil)

	tests := []struct {
		query string
		want  []string
	}{
		{"?search=gala", []string{"Gala"}},
		{"?category=panthers", []string{"Panthers v Stars"}},
		{"?category=all&tag=Comedy", []string{"Comedy Night"}},
		{"?month=April+2024", []string{"Panthers v Stars"}},
		{"?month=all&category=all", []string{"Gala", "Comedy Night", "Panthers v Stars"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/api/events"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			resp := decode[eventsResponse](t, rec)
			got := make([]string, 0, len(resp.Events))
			for _, e := range resp.Events {
				got = append(got, e.Title)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvents_NoMatches(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/events?search=nothing-like-this", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[eventsResponse](t, rec)
	assert.Zero(t, resp.Count)
	assert.Equal(t, "No events found matching your criteria.", resp.Message)
	assert.NotNil(t, resp.Events)
}

func TestEvents_FetchFailure(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.provider.err = domainerrors.Fetch(http.StatusServiceUnavailable, "Service Unavailable", nil)

	rec := ts.do(http.MethodGet, "/api/events", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "Failed to load events. Please try again later.", body["error"])
	assert.NotContains(t, rec.Body.String(), "503")
}

func TestEvents_UnclassifiedFailureIsBadGateway(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.provider.err = context.DeadlineExceeded

	rec := ts.do(http.MethodGet, "/api/events", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFacets(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/facets?search=gala", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[facetsResponse](t, rec)
	assert.Equal(t, []facetDTO{
		{Value: "all", Label: "All"},
		{Value: "Music", Label: "Music"},
		{Value: "Comedy", Label: "Comedy"},
		{Value: "Sport", Label: "Sport"},
	}, resp.Categories)
	assert.Equal(t, []facetDTO{
		{Value: "all", Label: "All"},
		{Value: "March 2024", Label: "March 2024"},
		{Value: "April 2024", Label: "April 2024"},
	}, resp.Months)
}

func TestEventsICS(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/events.ics?search=gala", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	body := rec.Body.String()
	assert.Contains(t, body, "SUMMARY:Gala")
	assert.Contains(t, body, "RDATE:20240308T190000Z")
	assert.NotContains(t, body, "Comedy Night")
}

func TestRefresh(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.provider.refreshes)

	resp := decode[refreshResponse](t, rec)
	assert.Equal(t, 4, resp.Count)
	assert.True(t, resp.RefreshedAt.Equal(now))

	assert.Zero(t, ts.provider.invalidations)

	rec = ts.do(http.MethodGet, "/api/refresh", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefresh_FailureInvalidatesCache(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.provider.err = domainerrors.Fetch(http.StatusInternalServerError, "Internal Server Error", nil)

	rec := ts.do(http.MethodPost, "/api/refresh", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 1, ts.provider.invalidations)
}

func TestBasicAuth(t *testing.T) {
	ts := setupTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	})

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", nil).Code)

	rec := ts.do(http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	rec = ts.do(http.MethodGet, "/api/events", func(r *http.Request) { r.SetBasicAuth("admin", "wrong") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/events", func(r *http.Request) { r.SetBasicAuth("admin", "pw") })
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth_EmptyPasswordDisables(t *testing.T) {
	ts := setupTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin"}
	})

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/events", nil).Code)
}

func TestCORS(t *testing.T) {
	ts := setupTestServer(t, func(c *config.Config) {
		c.AllowedOrigins = []string{"https://listings.example"}
	})

	rec := ts.do(http.MethodGet, "/api/events", func(r *http.Request) {
		r.Header.Set("Origin", "https://listings.example")
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://listings.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "abcd"))
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	m := metrics.New()
	m.ObserveCache(true)
	srv := NewServer(cfg, &fakeProvider{}, WithMetrics(m))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "whatson_cache_lookups_total")
}

func TestMetricsEndpoint_AbsentWithoutMetrics(t *testing.T) {
	ts := setupTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/metrics", nil).Code)
}
