package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	domainerrors "whatson/internal/errors"
	appLog "whatson/internal/log"
	"whatson/internal/model"
)

const (
	// DefaultKey is the fixed key the event list is stored under.
	DefaultKey = "events_cache"
	// DefaultTTL is how long a stored event list stays fresh (3,600,000 ms).
	DefaultTTL = time.Hour
)

// Entry is the stored representation of the cached event list.
type Entry struct {
	Timestamp int64         `json:"timestamp"` // epoch milliseconds
	Events    []model.Event `json:"events"`
}

// EventCache applies the TTL policy for the single event-list entry on top of
// any Store.
type EventCache struct {
	store Store
	key   string
	ttl   time.Duration
	now   func() time.Time
}

// Option customizes an EventCache.
type Option func(*EventCache)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(c *EventCache) {
		if key != "" {
			c.key = key
		}
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *EventCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *EventCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewEventCache wraps store with the event-list TTL policy.
func NewEventCache(store Store, opts ...Option) *EventCache {
	c := &EventCache{
		store: store,
		key:   DefaultKey,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the cached events and true when a fresh entry exists.
//
// A corrupt or expired entry is deleted and reported as a miss; read errors
// are never returned to the caller.
func (c *EventCache) Load(ctx context.Context) ([]model.Event, bool) {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			appLog.Error("event cache read failed", err, "key", c.key)
		}
		return nil, false
	}

	entry, err := decodeEntry(data)
	if err != nil {
		appLog.Error("event cache entry discarded", domainerrors.CacheCorrupt(err), "key", c.key)
		c.drop(ctx)
		return nil, false
	}

	age := c.now().Sub(time.UnixMilli(entry.Timestamp))
	if age > c.ttl {
		appLog.Debug("event cache expired", "key", c.key, "age", age.String(), "ttl", c.ttl.String())
		c.drop(ctx)
		return nil, false
	}

	appLog.Debug("event cache hit", "key", c.key, "age", age.String(), "event_count", len(entry.Events))
	return entry.Events, true
}

// Save stores events with the current timestamp. Failures are logged and the
// possibly partial entry is removed; Save never fails the caller.
func (c *EventCache) Save(ctx context.Context, events []model.Event) {
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.Marshal(Entry{
		Timestamp: c.now().UnixMilli(),
		Events:    events,
	})
	if err == nil {
		err = c.store.Set(ctx, c.key, data)
	}
	if err != nil {
		appLog.Error("event cache write failed", domainerrors.CacheWrite(err), "key", c.key)
		c.drop(ctx)
	}
}

// Invalidate removes the stored entry.
func (c *EventCache) Invalidate(ctx context.Context) {
	c.drop(ctx)
}

func (c *EventCache) drop(ctx context.Context) {
	if err := c.store.Delete(ctx, c.key); err != nil && !errors.Is(err, ErrNotFound) {
		appLog.Error("event cache delete failed", err, "key", c.key)
	}
}

func decodeEntry(data []byte) (Entry, error) {
	var raw struct {
		Timestamp *int64          `json:"timestamp"`
		Events    json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, err
	}
	if raw.Timestamp == nil {
		return Entry{}, errors.New("entry has no timestamp")
	}
	var events []model.Event
	if err := json.Unmarshal(raw.Events, &events); err != nil {
		return Entry{}, err
	}
	if events == nil {
		return Entry{}, errors.New("entry has no events")
	}
	return Entry{Timestamp: *raw.Timestamp, Events: events}, nil
}
