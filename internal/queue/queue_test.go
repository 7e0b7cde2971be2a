package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"TechTreeCost/internal/domain"
)

type stubFetcher struct {
	mu     sync.Mutex
	costs  map[string]domain.CostRecord
	failed map[string]bool
	calls  []string
	active int
	maxRun int
}

func (s *stubFetcher) FetchCosts(_ context.Context, unitID string) (domain.CostRecord, error) {
	s.mu.Lock()
	s.calls = append(s.calls, unitID)
	s.active++
	if s.active > s.maxRun {
		s.maxRun = s.active
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if s.failed[unitID] {
		return domain.CostRecord{}, errors.New("connection reset")
	}
	return s.costs[unitID], nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]domain.CostRecord
}

func (m *mapCache) Get(_ context.Context, unitID string) (domain.CostRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[unitID]
	return rec, ok, nil
}

func (m *mapCache) Set(_ context.Context, unitID string, rec domain.CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[unitID] = rec
	return nil
}

type completion struct {
	unitID string
	res    domain.Resolution
	at     time.Time
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueRunsFIFOWithDelay(t *testing.T) {
	t.Parallel()

	const delay = 40 * time.Millisecond
	fetcher := &stubFetcher{costs: map[string]domain.CostRecord{
		"A": {ResearchPoints: 1},
		"B": {ResearchPoints: 2},
		"C": {ResearchPoints: 3},
	}}
	cache := &mapCache{data: map[string]domain.CostRecord{}}
	q := New(fetcher, cache, delay, discardLogger())

	var (
		mu   sync.Mutex
		done []completion
	)
	record := func(id string) func(domain.Resolution) {
		return func(res domain.Resolution) {
			mu.Lock()
			done = append(done, completion{unitID: id, res: res, at: time.Now()})
			mu.Unlock()
		}
	}

	for _, id := range []string{"A", "B", "C"} {
		q.Enqueue(id, record(id))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	if len(done) != 3 {
		t.Fatalf("expected 3 completions, got %d", len(done))
	}
	for i, want := range []string{"A", "B", "C"} {
		if done[i].unitID != want {
			t.Fatalf("completion %d: got %s, want %s", i, done[i].unitID, want)
		}
		if !done[i].res.Resolved || done[i].res.Record.ResearchPoints != int64(i+1) {
			t.Fatalf("completion %d: unexpected result %+v", i, done[i].res)
		}
	}
	for i := 1; i < len(done); i++ {
		if gap := done[i].at.Sub(done[i-1].at); gap < delay {
			t.Fatalf("completions %d and %d only %v apart", i-1, i, gap)
		}
	}
	if fetcher.maxRun != 1 {
		t.Fatalf("jobs overlapped: max concurrent %d", fetcher.maxRun)
	}
	if len(cache.data) != 3 {
		t.Fatalf("expected 3 cached records, got %d", len(cache.data))
	}
}

func TestQueueFailSoft(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		costs:  map[string]domain.CostRecord{"Y": {ResearchPoints: 7, PurchaseCost: 9}},
		failed: map[string]bool{"X": true},
	}
	cache := &mapCache{data: map[string]domain.CostRecord{}}
	q := New(fetcher, cache, time.Millisecond, discardLogger())
	fixed := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	results := make(chan completion, 2)
	q.Enqueue("X", func(res domain.Resolution) { results <- completion{unitID: "X", res: res} })
	q.Enqueue("Y", func(res domain.Resolution) { results <- completion{unitID: "Y", res: res} })

	first := <-results
	second := <-results

	if first.unitID != "X" || first.res.Resolved {
		t.Fatalf("expected unresolved X first, got %+v", first)
	}
	want := domain.CostRecord{FetchedAt: fixed}
	if first.res.Record != want {
		t.Fatalf("expected zero record stamped now, got %+v", first.res.Record)
	}
	if second.unitID != "Y" || !second.res.Resolved || second.res.Record.PurchaseCost != 9 {
		t.Fatalf("queue did not continue after failure: %+v", second)
	}

	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if _, ok := cache.data["X"]; ok {
		t.Fatalf("failed fetch must not be cached")
	}
}

func TestQueueEnqueueWhileRunning(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{costs: map[string]domain.CostRecord{}}
	q := New(fetcher, nil, 5*time.Millisecond, discardLogger())

	var (
		mu    sync.Mutex
		order []string
	)
	q.Enqueue("first", func(domain.Resolution) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		q.Enqueue("nested", func(domain.Resolution) {
			mu.Lock()
			order = append(order, "nested")
			mu.Unlock()
		})
	})
	q.Enqueue("second", func(domain.Resolution) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "nested" {
		t.Fatalf("unexpected order: %v", order)
	}
	if fetcher.maxRun != 1 {
		t.Fatalf("jobs overlapped: max concurrent %d", fetcher.maxRun)
	}
}

func TestQueueWaitIdle(t *testing.T) {
	t.Parallel()

	q := New(&stubFetcher{}, nil, 0, discardLogger())
	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on idle queue: %v", err)
	}
	q.mu.Lock()
	pending, running := len(q.pending), q.running
	q.mu.Unlock()
	if pending != 0 || running {
		t.Fatalf("expected idle queue, pending=%d running=%v", pending, running)
	}
}

type failingCache struct {
	mu     sync.Mutex
	writes int
}

func (f *failingCache) Get(context.Context, string) (domain.CostRecord, bool, error) {
	return domain.CostRecord{}, false, nil
}

func (f *failingCache) Set(context.Context, string, domain.CostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return errors.New("database is locked")
}

func TestQueueCacheWriteFailureStillResolves(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{costs: map[string]domain.CostRecord{
		"us_m4a1": {ResearchPoints: 2900, PurchaseCost: 3100},
	}}
	cache := &failingCache{}
	q := New(fetcher, cache, 0, discardLogger())

	results := make(chan domain.Resolution, 1)
	q.Enqueue("us_m4a1", func(res domain.Resolution) { results <- res })

	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	res := <-results
	if !res.Resolved || res.Record.ResearchPoints != 2900 || res.Record.PurchaseCost != 3100 {
		t.Fatalf("fetched record must be delivered despite the cache error: %+v", res)
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.writes != 1 {
		t.Fatalf("expected one cache write attempt, got %d", cache.writes)
	}
}
