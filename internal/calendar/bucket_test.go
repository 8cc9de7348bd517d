package calendar

import (
	"testing"
	"time"
)

func ts(t *testing.T, raw string) *time.Time {
	t.Helper()
	parsed := ParseTimestamp(raw)
	if parsed == nil {
		t.Fatalf("failed to parse %q", raw)
	}
	return parsed
}

func ids(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, event.ID)
	}
	return out
}

func TestBucket(t *testing.T) {
	t.Parallel()

	t.Run("orders events within a day by start time", func(t *testing.T) {
		t.Parallel()

		events := []Event{
			{ID: "1", Start: ts(t, "2024-03-15T09:00:00Z")},
			{ID: "2", Start: ts(t, "2024-03-15T08:00:00Z")},
		}

		buckets := Bucket(events, time.UTC)
		if len(buckets) != 1 {
			t.Fatalf("expected one bucket, got %d", len(buckets))
		}
		got := ids(buckets[DateKey{Year: 2024, Month: time.March, Day: 15}])
		if len(got) != 2 || got[0] != "2" || got[1] != "1" {
			t.Fatalf("expected [2 1], got %v", got)
		}
	})

	t.Run("omits events without a start", func(t *testing.T) {
		t.Parallel()

		events := []Event{{ID: "3"}}
		buckets := Bucket(events, time.UTC)
		if len(buckets) != 0 {
			t.Fatalf("expected no buckets, got %d", len(buckets))
		}
		undated := Undated(events)
		if len(undated) != 1 || undated[0].ID != "3" {
			t.Fatalf("expected event 3 to be reported as undated, got %v", ids(undated))
		}
	})

	t.Run("places every dated event in exactly one bucket", func(t *testing.T) {
		t.Parallel()

		events := []Event{
			{ID: "a", Start: ts(t, "2024-01-01T00:00:00Z")},
			{ID: "b", Start: ts(t, "2024-01-01T23:59:59Z")},
			{ID: "c", Start: ts(t, "2024-01-02T12:00:00Z")},
			{ID: "d"},
			{ID: "e", Start: ts(t, "2023-12-31T18:30:00Z")},
		}

		buckets := Bucket(events, time.UTC)
		seen := make(map[string]DateKey)
		for key, bucket := range buckets {
			for _, event := range bucket {
				if prev, ok := seen[event.ID]; ok {
					t.Fatalf("event %s appears in %s and %s", event.ID, prev, key)
				}
				seen[event.ID] = key
				if KeyOf(event.Start.In(time.UTC)) != key {
					t.Fatalf("event %s bucketed under %s", event.ID, key)
				}
			}
		}
		if len(seen) != 4 {
			t.Fatalf("expected 4 bucketed events, got %d", len(seen))
		}
	})

	t.Run("keys by the viewer's local date", func(t *testing.T) {
		t.Parallel()

		newYork, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}

		events := []Event{{ID: "late", Start: ts(t, "2024-03-16T02:00:00Z")}}
		buckets := Bucket(events, newYork)
		if _, ok := buckets[DateKey{Year: 2024, Month: time.March, Day: 15}]; !ok {
			t.Fatalf("expected event to land on March 15 in New York, got keys %v", buckets.Keys())
		}
	})

	t.Run("keeps input order for identical starts", func(t *testing.T) {
		t.Parallel()

		start := ts(t, "2024-05-01T10:00:00Z")
		events := []Event{
			{ID: "x", Start: start},
			{ID: "y", Start: start},
			{ID: "z", Start: ts(t, "2024-05-01T09:00:00Z")},
		}

		got := ids(Bucket(events, time.UTC)[DateKey{Year: 2024, Month: time.May, Day: 1}])
		want := []string{"z", "x", "y"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("orders every bucket ascending", func(t *testing.T) {
		t.Parallel()

		var events []Event
		base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 50; i++ {
			start := base.Add(time.Duration((i*37)%96) * 30 * time.Minute)
			events = append(events, Event{ID: string(rune('A' + i%26)), Start: &start})
		}

		for key, bucket := range Bucket(events, time.UTC) {
			for i := 1; i < len(bucket); i++ {
				if bucket[i].Start.Before(*bucket[i-1].Start) {
					t.Fatalf("bucket %s out of order at %d", key, i)
				}
			}
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		raw   string
		want  string
		isNil bool
	}{
		{name: "rfc3339 with zone", raw: "2024-03-15T09:00:00Z", want: "2024-03-15T09:00:00Z"},
		{name: "rfc3339 with offset", raw: "2024-03-15T09:00:00-05:00", want: "2024-03-15T14:00:00Z"},
		{name: "postgres style", raw: "2024-03-15 09:00:00+00", want: "2024-03-15T09:00:00Z"},
		{name: "naive datetime treated as utc", raw: "2024-03-15T09:00:00", want: "2024-03-15T09:00:00Z"},
		{name: "date only", raw: "2024-03-15", want: "2024-03-15T00:00:00Z"},
		{name: "blank", raw: "   ", isNil: true},
		{name: "garbage", raw: "next tuesday", isNil: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseTimestamp(tc.raw)
			if tc.isNil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got nil", tc.want)
			}
			if formatted := got.UTC().Format(time.RFC3339); formatted != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, formatted)
			}
		})
	}
}

func TestDateKey(t *testing.T) {
	t.Parallel()

	key, err := ParseDateKey("2024-02-29")
	if err != nil {
		t.Fatalf("ParseDateKey returned error: %v", err)
	}
	if key.String() != "2024-02-29" {
		t.Fatalf("unexpected round trip: %s", key)
	}
	if _, err := ParseDateKey("2024-02-30"); err == nil {
		t.Fatalf("expected error for impossible date")
	}
	if !key.Before(DateKey{Year: 2024, Month: time.March, Day: 1}) {
		t.Fatalf("expected Feb 29 to precede Mar 1")
	}
}
