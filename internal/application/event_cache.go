package application

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultEventCacheSize = 128
	defaultEventCacheTTL  = time.Minute
)

// EventCache holds recent calendar range queries. Entries expire after a TTL
// and the whole cache is purged whenever an event is written.
type EventCache struct {
	entries *expirable.LRU[string, []Event]
}

// NewEventCache creates a cache holding at most size ranges for ttl each.
func NewEventCache(size int, ttl time.Duration) *EventCache {
	if size <= 0 {
		size = defaultEventCacheSize
	}
	if ttl <= 0 {
		ttl = defaultEventCacheTTL
	}
	return &EventCache{entries: expirable.NewLRU[string, []Event](size, nil, ttl)}
}

// Get returns a copy of the cached events for key.
func (c *EventCache) Get(key string) ([]Event, bool) {
	if c == nil {
		return nil, false
	}
	events, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return cloneEvents(events), true
}

// Store caches a copy of events under key.
func (c *EventCache) Store(key string, events []Event) {
	if c == nil {
		return
	}
	c.entries.Add(key, cloneEvents(events))
}

// Invalidate drops every cached range.
func (c *EventCache) Invalidate() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Len reports the number of cached ranges.
func (c *EventCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func cloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, event := range events {
		out[i] = event
		out[i].Categories = append([]string(nil), event.Categories...)
		out[i].Tags = append([]string(nil), event.Tags...)
	}
	return out
}

func buildRangeCacheKey(from, to time.Time, category, tag string) string {
	return strings.Join([]string{
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
		strings.ToLower(category),
		strings.ToLower(tag),
	}, "|")
}
