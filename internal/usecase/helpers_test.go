package usecase

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/page"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string]domain.CostRecord
}

func newMemoryCache(seed map[string]domain.CostRecord) *memoryCache {
	data := map[string]domain.CostRecord{}
	for k, v := range seed {
		data[k] = v
	}
	return &memoryCache{data: data}
}

func (m *memoryCache) Get(_ context.Context, unitID string) (domain.CostRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[unitID]
	return rec, ok, nil
}

func (m *memoryCache) Set(_ context.Context, unitID string, rec domain.CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[unitID] = rec
	return nil
}

type pendingJob struct {
	unitID string
	onDone func(domain.Resolution)
}

// manualQueue records jobs and lets the test decide when they complete.
type manualQueue struct {
	mu   sync.Mutex
	jobs []pendingJob
}

func (q *manualQueue) Enqueue(unitID string, onDone func(domain.Resolution)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, pendingJob{unitID: unitID, onDone: onDone})
}

func (q *manualQueue) Wait(context.Context) error { return nil }

func (q *manualQueue) ids() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.unitID)
	}
	return out
}

func (q *manualQueue) complete(t *testing.T, unitID string, res domain.Resolution) {
	t.Helper()

	q.mu.Lock()
	var found *pendingJob
	for i := range q.jobs {
		if q.jobs[i].unitID == unitID {
			j := q.jobs[i]
			found = &j
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if found == nil {
		t.Fatalf("no queued job for %s", unitID)
	}
	found.onDone(res)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadPage(t *testing.T, path string) *page.Page {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	pg, err := page.Parse(f)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return pg
}

func textOf(pg *page.Page, selector string) string {
	var out string
	pg.Do(func(doc *goquery.Document) {
		out = doc.Find(selector).First().Text()
	})
	return out
}
