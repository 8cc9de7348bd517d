package llm

import (
	"errors"
	"sync"
	"time"
)

// ErrDailyLimit is returned once the rolling 24 hour request cap is reached.
var ErrDailyLimit = errors.New("llm: daily request limit reached")

// UsageStats reports consumption over the rolling windows and the caps in
// force. A zero cap is disabled.
type UsageStats struct {
	RequestsLastMinute int
	RequestsLastDay    int
	TokensLastMinute   int
	RequestsPerDay     int
	TokensPerMinute    int
}

type tokenSpend struct {
	at     time.Time
	tokens int
}

// usageWindow tracks requests per day and tokens per minute. The per-minute
// request rate is left to the rate.Limiter.
type usageWindow struct {
	mu              sync.Mutex
	now             func() time.Time
	requestsPerDay  int
	tokensPerMinute int
	requests        []time.Time
	spends          []tokenSpend
}

func newUsageWindow(requestsPerDay, tokensPerMinute int) *usageWindow {
	return &usageWindow{
		now:             time.Now,
		requestsPerDay:  requestsPerDay,
		tokensPerMinute: tokensPerMinute,
	}
}

// admit counts one request. When the token budget for the last minute is
// spent it counts nothing and returns how long until the oldest spend ages
// out.
func (u *usageWindow) admit() (time.Duration, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	u.prune(now)

	if u.requestsPerDay > 0 && len(u.requests) >= u.requestsPerDay {
		return 0, ErrDailyLimit
	}
	if u.tokensPerMinute > 0 && u.tokensUsed() >= u.tokensPerMinute && len(u.spends) > 0 {
		if wait := u.spends[0].at.Add(time.Minute).Sub(now); wait > 0 {
			return wait, nil
		}
	}
	u.requests = append(u.requests, now)
	return 0, nil
}

func (u *usageWindow) record(tokens int) {
	if tokens <= 0 {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.spends = append(u.spends, tokenSpend{at: u.now(), tokens: tokens})
}

func (u *usageWindow) snapshot() UsageStats {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	u.prune(now)
	lastMinute := 0
	for _, at := range u.requests {
		if now.Sub(at) < time.Minute {
			lastMinute++
		}
	}
	return UsageStats{
		RequestsLastMinute: lastMinute,
		RequestsLastDay:    len(u.requests),
		TokensLastMinute:   u.tokensUsed(),
		RequestsPerDay:     u.requestsPerDay,
		TokensPerMinute:    u.tokensPerMinute,
	}
}

// prune drops entries older than their window. Both slices are in time order.
func (u *usageWindow) prune(now time.Time) {
	i := 0
	for i < len(u.requests) && now.Sub(u.requests[i]) >= 24*time.Hour {
		i++
	}
	u.requests = u.requests[i:]

	j := 0
	for j < len(u.spends) && now.Sub(u.spends[j].at) >= time.Minute {
		j++
	}
	u.spends = u.spends[j:]
}

func (u *usageWindow) tokensUsed() int {
	total := 0
	for _, spend := range u.spends {
		total += spend.tokens
	}
	return total
}
