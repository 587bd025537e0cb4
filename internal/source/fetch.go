package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"whatson/internal/cache"
	domainerrors "whatson/internal/errors"
	appLog "whatson/internal/log"
	"whatson/internal/metrics"
	"whatson/internal/model"
)

// DefaultEndpoint is the venue listings API.
const DefaultEndpoint = "https://whatson.motorpointarenanottingham.com/api/challenge"

// Options configures a Fetcher. Zero values take defaults.
type Options struct {
	Endpoint  string
	APIKey    string
	CDNBase   string
	Transport Transport
	Cache     *cache.EventCache
	Metrics   *metrics.Metrics
}

// Fetcher loads the venue's events, serving them from the event cache while
// it is fresh and refilling it from the API otherwise.
type Fetcher struct {
	endpoint  string
	apiKey    string
	cdnBase   string
	transport Transport
	cache     *cache.EventCache
	metrics   *metrics.Metrics
}

// NewFetcher creates a Fetcher. Without an explicit cache, an in-memory store
// with the default key and TTL is used.
func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		endpoint:  opts.Endpoint,
		apiKey:    opts.APIKey,
		cdnBase:   opts.CDNBase,
		transport: opts.Transport,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
	}
	if f.endpoint == "" {
		f.endpoint = DefaultEndpoint
	}
	if f.cdnBase == "" {
		f.cdnBase = DefaultCDNBase
	}
	if f.transport == nil {
		f.transport = NewHTTPTransport(0, 0)
	}
	if f.cache == nil {
		f.cache = cache.NewEventCache(cache.NewMemoryStore())
	}
	return f
}

// GetEvents returns the normalized event list. A fresh cache entry is
// returned without touching the network.
func (f *Fetcher) GetEvents(ctx context.Context) ([]model.Event, error) {
	events, ok := f.cache.Load(ctx)
	f.metrics.ObserveCache(ok)
	if ok {
		return events, nil
	}
	return f.Refresh(ctx)
}

// Refresh skips the cache read, fetches from the API and overwrites the
// cache entry.
func (f *Fetcher) Refresh(ctx context.Context) ([]model.Event, error) {
	start := time.Now()
	events, err := f.fetch(ctx)
	f.metrics.ObserveFetch(time.Since(start), len(events), err)
	return events, err
}

// Invalidate drops the cached list so the next GetEvents goes to the API.
func (f *Fetcher) Invalidate(ctx context.Context) {
	f.cache.Invalidate(ctx)
}

func (f *Fetcher) fetch(ctx context.Context) ([]model.Event, error) {
	header := http.Header{}
	header.Set("X-API-Key", f.apiKey)
	header.Set("Content-Type", "application/json")

	appLog.Info("events fetch start", "url", redactURL(f.endpoint))

	resp, err := f.transport.Get(ctx, f.endpoint, header)
	if err != nil {
		appLog.Error("events fetch failed", err, "url", redactURL(f.endpoint))
		return nil, err
	}

	raws, err := decodeRecords(resp.Body)
	if err != nil {
		appLog.Error("events decode failed", err, "url", redactURL(f.endpoint))
		return nil, err
	}

	events := NormalizeAll(raws, f.cdnBase)
	f.cache.Save(ctx, events)

	appLog.Info("events fetch success", "url", redactURL(f.endpoint), "status", resp.StatusCode, "event_count", len(events))
	return events, nil
}

// decodeRecords accepts a single record or an array of records. An absent
// body or a falsy JSON value (null, false, 0, "") counts as no data.
func decodeRecords(body []byte) ([]model.RawRecord, error) {
	body = bytes.TrimSpace(body)
	if isEmptyBody(body) {
		return nil, domainerrors.EmptyResponse()
	}

	if body[0] == '[' {
		var raws []model.RawRecord
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, domainerrors.Fetch(0, "", fmt.Errorf("decode response: %w", err))
		}
		return raws, nil
	}

	if !json.Valid(body) {
		return nil, domainerrors.Fetch(0, "", domainerrors.New("decode response: invalid JSON"))
	}
	var raw model.RawRecord
	_ = json.Unmarshal(body, &raw) // lenient, never fails on valid JSON
	return []model.RawRecord{raw}, nil
}

func isEmptyBody(body []byte) bool {
	switch string(body) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

// redactURL keeps scheme and host only.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "...(redacted)"
	}
	j := i + 3
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
