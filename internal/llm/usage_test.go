package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestClient_UsageCaps(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}],"usage":{"prompt_tokens":60,"completion_tokens":20,"total_tokens":80}}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, Model: "test-model", RequestsPerDay: 3, TokensPerMinute: 100})
	client.limiter = rate.NewLimiter(rate.Inf, 1)
	clock := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	client.usage.now = func() time.Time { return clock }
	var waits []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		clock = clock.Add(d)
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Generate(ctx, "system", "prompt"); err != nil {
			t.Fatalf("Generate %d failed: %v", i+1, err)
		}
	}
	if len(waits) != 0 {
		t.Fatalf("expected no waits under the token budget, got %v", waits)
	}

	if _, err := client.Generate(ctx, "system", "prompt"); err != nil {
		t.Fatalf("Generate 3 failed: %v", err)
	}
	if len(waits) != 1 || waits[0] != time.Minute {
		t.Fatalf("expected one wait of a minute for the token budget, got %v", waits)
	}

	usage := client.Usage()
	if usage.RequestsLastDay != 3 || usage.RequestsLastMinute != 1 || usage.TokensLastMinute != 80 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if usage.RequestsPerDay != 3 || usage.TokensPerMinute != 100 {
		t.Fatalf("expected caps in the report, got %+v", usage)
	}

	if _, err := client.Generate(ctx, "system", "prompt"); !errors.Is(err, ErrDailyLimit) {
		t.Fatalf("expected ErrDailyLimit, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected the capped request to stay local, got %d calls", calls.Load())
	}

	clock = clock.Add(24 * time.Hour)
	if _, err := client.Generate(ctx, "system", "prompt"); err != nil {
		t.Fatalf("expected the daily window to roll over, got %v", err)
	}
}

func TestUsageWindowUncapped(t *testing.T) {
	t.Parallel()

	window := newUsageWindow(0, 0)
	for i := 0; i < 10; i++ {
		if wait, err := window.admit(); err != nil || wait != 0 {
			t.Fatalf("expected uncapped admit, got %s %v", wait, err)
		}
		window.record(1_000_000)
	}
	if usage := window.snapshot(); usage.RequestsLastDay != 10 || usage.TokensLastMinute != 10_000_000 {
		t.Fatalf("unexpected usage %+v", usage)
	}
}
