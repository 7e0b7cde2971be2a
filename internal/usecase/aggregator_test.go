package usecase

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/page"
	"TechTreeCost/internal/techtree"
)

func visibleTree(pg *page.Page) *goquery.Selection {
	var tree *goquery.Selection
	pg.Do(func(doc *goquery.Document) {
		tree = techtree.VisibleTree(doc)
	})
	return tree
}

func rankSums(pg *page.Page) []string {
	var out []string
	pg.Do(func(doc *goquery.Document) {
		doc.Find(".wt-rank-sum").Each(func(_ int, s *goquery.Selection) {
			out = append(out, s.Text())
		})
	})
	return out
}

func TestProcessTreeScenario(t *testing.T) {
	t.Parallel()

	pg := loadPage(t, "testdata/two_ranks.html")
	cache := newMemoryCache(map[string]domain.CostRecord{
		"u1": {ResearchPoints: 100, PurchaseCost: 50},
	})
	queue := &manualQueue{}
	var renders atomic.Int32

	agg := NewAggregator(AggregatorDeps{
		Cache:     cache,
		Queue:     queue,
		ShowTotal: true,
		Logger:    discardLogger(),
		OnRender:  func() { renders.Add(1) },
	})

	session := agg.ProcessTree(context.Background(), pg, visibleTree(pg))

	wantInitial := []string{
		"— RP 100 • SL 50 — Total Cost: RP 100 • SL 50",
		"— RP 0 • SL 0",
	}
	if got := rankSums(pg); !reflect.DeepEqual(got, wantInitial) {
		t.Fatalf("unexpected initial sums: %q", got)
	}
	if got := textOf(pg, `[data-unit-id="u1"] span.br`); got != "RP 100 | SL 50" {
		t.Fatalf("unexpected u1 badge: %q", got)
	}
	if got := textOf(pg, `[data-unit-id="u2"] span.br`); got != "RP 0 | SL 0" {
		t.Fatalf("unexpected u2 placeholder: %q", got)
	}
	if got := queue.ids(); !reflect.DeepEqual(got, []string{"u2"}) {
		t.Fatalf("unexpected queued units: %v", got)
	}
	if renders.Load() != 1 {
		t.Fatalf("expected one render notification, got %d", renders.Load())
	}

	queue.complete(t, "u2", domain.Resolution{
		Record:   domain.CostRecord{ResearchPoints: 200, PurchaseCost: 75, FetchedAt: time.Now()},
		Resolved: true,
	})

	wantFinal := []string{
		"— RP 100 • SL 50 — Total Cost: RP 300 • SL 125",
		"— RP 200 • SL 75",
	}
	if got := rankSums(pg); !reflect.DeepEqual(got, wantFinal) {
		t.Fatalf("unexpected final sums: %q", got)
	}
	if got := textOf(pg, `[data-unit-id="u2"] span.br`); got != "RP 200 | SL 75" {
		t.Fatalf("unexpected u2 badge: %q", got)
	}
	if renders.Load() != 2 {
		t.Fatalf("expected a render notification per completion, got %d", renders.Load())
	}

	ranks := session.Ranks()
	if len(ranks) != 2 || ranks[0].RPSum != 100 || ranks[1].SLSum != 75 {
		t.Fatalf("unexpected rank snapshot: %+v", ranks)
	}
	if !reflect.DeepEqual(ranks[1].MemberUnitIDs, []string{"u2"}) {
		t.Fatalf("unexpected rank II members: %v", ranks[1].MemberUnitIDs)
	}
	if session.Unresolved() != 0 {
		t.Fatalf("expected no unresolved units")
	}
}

func TestProcessTreeRecomputeIsIdempotent(t *testing.T) {
	t.Parallel()

	pg := loadPage(t, "testdata/two_ranks.html")
	agg := NewAggregator(AggregatorDeps{
		Cache: newMemoryCache(map[string]domain.CostRecord{
			"u1": {ResearchPoints: 10, PurchaseCost: 20},
			"u2": {ResearchPoints: 30, PurchaseCost: 40},
		}),
		Queue:     &manualQueue{},
		ShowTotal: true,
		Logger:    discardLogger(),
	})

	session := agg.ProcessTree(context.Background(), pg, visibleTree(pg))

	pg.Do(func(*goquery.Document) { session.recompute() })
	first, err := pg.HTML()
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	pg.Do(func(*goquery.Document) { session.recompute() })
	second, err := pg.HTML()
	if err != nil {
		t.Fatalf("html: %v", err)
	}

	if first != second {
		t.Fatalf("recompute changed the page without new data")
	}
	if got := rankSums(pg)[0]; got != "— RP 10 • SL 20 — Total Cost: RP 40 • SL 60" {
		t.Fatalf("unexpected rank I text: %q", got)
	}
}

func TestProcessTreeFailSoftAndNoTotal(t *testing.T) {
	t.Parallel()

	pg := loadPage(t, "testdata/two_ranks.html")
	queue := &manualQueue{}
	agg := NewAggregator(AggregatorDeps{
		Cache:  newMemoryCache(nil),
		Queue:  queue,
		Logger: discardLogger(),
	})

	session := agg.ProcessTree(context.Background(), pg, visibleTree(pg))
	queue.complete(t, "u1", domain.Resolution{Record: domain.CostRecord{ResearchPoints: 5, PurchaseCost: 6}, Resolved: true})
	queue.complete(t, "u2", domain.Unresolved(time.Now()))

	if got := rankSums(pg); !reflect.DeepEqual(got, []string{"— RP 5 • SL 6", "— RP 0 • SL 0"}) {
		t.Fatalf("unexpected sums without total: %q", got)
	}
	if got := textOf(pg, `[data-unit-id="u2"] span.br`); got != "RP 0 | SL 0" {
		t.Fatalf("unresolved unit must render as zero: %q", got)
	}
	if session.Unresolved() != 1 {
		t.Fatalf("expected one unresolved unit, got %d", session.Unresolved())
	}
}

func TestProcessListHandlesAppendedRows(t *testing.T) {
	t.Parallel()

	pg := loadPage(t, "testdata/two_ranks.html")
	queue := &manualQueue{}
	agg := NewAggregator(AggregatorDeps{
		Cache: newMemoryCache(map[string]domain.CostRecord{
			"u1": {ResearchPoints: 1200},
			"u3": {ResearchPoints: 3400},
		}),
		Queue:  queue,
		Logger: discardLogger(),
	})

	var list *goquery.Selection
	pg.Do(func(doc *goquery.Document) {
		list = techtree.VisibleList(doc)
	})

	session := agg.ProcessList(context.Background(), pg, list)
	if session == nil {
		t.Fatalf("expected a list session")
	}
	defer session.Close()

	if got := textOf(pg, `tr[data-ulist-id="u1"] .br`); got != "RP 1,200" {
		t.Fatalf("unexpected cached cell: %q", got)
	}
	if got := textOf(pg, `tr[data-ulist-id="u2"] .br`); got != "…" {
		t.Fatalf("unexpected pending cell: %q", got)
	}

	if _, err := pg.Append("#wt-unit-list tbody",
		`<tr class="wt-ulist_unit" data-ulist-id="u3"><td class="br">3.0</td></tr>`+
			`<tr class="wt-ulist_unit" data-ulist-id="u4"><td class="br">4.0</td></tr>`); err != nil {
		t.Fatalf("append: %v", err)
	}

	if got := textOf(pg, `tr[data-ulist-id="u3"] .br span.wt-ulist-rp`); got != "RP 3,400" {
		t.Fatalf("appended cached row not rendered: %q", got)
	}
	if got := queue.ids(); !reflect.DeepEqual(got, []string{"u2", "u4"}) {
		t.Fatalf("unexpected queued rows: %v", got)
	}

	queue.complete(t, "u2", domain.Resolution{Record: domain.CostRecord{ResearchPoints: 2500}, Resolved: true})
	if got := textOf(pg, `tr[data-ulist-id="u2"] .br`); got != "RP 2,500" {
		t.Fatalf("unexpected resolved cell: %q", got)
	}
	if session.Rows() != 4 {
		t.Fatalf("expected 4 handled rows, got %d", session.Rows())
	}

	session.Close()
	if _, err := pg.Append("#wt-unit-list tbody", `<tr class="wt-ulist_unit" data-ulist-id="u5"><td class="br">5.0</td></tr>`); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := textOf(pg, `tr[data-ulist-id="u5"] .br`); got != "5.0" {
		t.Fatalf("closed session must not touch new rows: %q", got)
	}
}
