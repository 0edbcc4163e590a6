package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestRingKeepsMostRecent(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Record(Entry{TokensUsed: i, Success: true})
	}
	snap := r.Snapshot()
	if len(snap) != 3 || r.Len() != 3 {
		t.Fatalf("want 3 entries, got %d", len(snap))
	}
	for i, want := range []int{3, 4, 5} {
		if snap[i].TokensUsed != want {
			t.Fatalf("entry %d: got %d want %d", i, snap[i].TokensUsed, want)
		}
	}
}

func TestRingPartial(t *testing.T) {
	r := NewRing(0)
	r.Record(Entry{TokensUsed: 7})
	if r.Len() != 1 || r.Snapshot()[0].TokensUsed != 7 {
		t.Fatalf("unexpected snapshot: %+v", r.Snapshot())
	}
	if cap(r.entries) != DefaultCapacity {
		t.Fatalf("default capacity: %d", cap(r.entries))
	}
}

func TestSummarize(t *testing.T) {
	r := NewRing(10)
	start := time.Unix(0, 0)
	r.Record(Entry{RequestedAt: start, RespondedAt: start.Add(100 * time.Millisecond), Success: true, TokensUsed: 10})
	r.Record(Entry{RequestedAt: start, RespondedAt: start.Add(300 * time.Millisecond), Success: true, Fallback: true})
	r.Record(Entry{Error: "content_too_long"})
	s := r.Summarize()
	if s.Attempts != 3 || s.Successes != 1 || s.Fallbacks != 1 || s.Failures != 1 {
		t.Fatalf("summary: %+v", s)
	}
	if s.TotalTokens != 10 || s.AvgDurationMs < 133 || s.AvgDurationMs > 134 {
		t.Fatalf("summary: %+v", s)
	}
}

func TestRingConcurrentRecord(t *testing.T) {
	r := NewRing(50)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(Entry{Success: true})
			r.RecordPlatform("twitter", true)
		}()
	}
	wg.Wait()
	if r.Len() != 50 {
		t.Fatalf("len: %d", r.Len())
	}
}
