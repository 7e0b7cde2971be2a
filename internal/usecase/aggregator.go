package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/page"
	"TechTreeCost/internal/ports"
	"TechTreeCost/internal/techtree"
)

// AggregatorDeps wires the cache and fetch queue into the aggregator.
type AggregatorDeps struct {
	Cache     ports.CostCache
	Queue     ports.FetchQueue
	ShowTotal bool
	Logger    *slog.Logger
	// OnRender runs after every render, outside the page lock.
	OnRender func()
}

// Aggregator badges tree and list pages with unit costs and keeps rank sums current.
type Aggregator struct {
	cache     ports.CostCache
	queue     ports.FetchQueue
	showTotal bool
	logger    *slog.Logger
	onRender  func()
}

// NewAggregator constructs the aggregator.
func NewAggregator(deps AggregatorDeps) *Aggregator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		cache:     deps.Cache,
		queue:     deps.Queue,
		showTotal: deps.ShowTotal,
		logger:    logger,
		onRender:  deps.OnRender,
	}
}

// TreeSession is the state of one tree pass. Its fields are guarded by the page lock.
type TreeSession struct {
	page       *page.Page
	root       *goquery.Selection
	ranks      []*techtree.Rank
	seen       map[string]domain.CostRecord
	unresolved map[string]bool
	showTotal  bool
}

// ProcessTree badges every representative unit of tree and renders rank sums.
// Cached units render immediately; the rest are queued and re-rendered as
// their fetches complete. The caller must not hold the page lock.
func (a *Aggregator) ProcessTree(ctx context.Context, pg *page.Page, tree *goquery.Selection) *TreeSession {
	s := &TreeSession{
		page:       pg,
		root:       tree,
		seen:       map[string]domain.CostRecord{},
		unresolved: map[string]bool{},
		showTotal:  a.showTotal,
	}

	var queued int
	pg.Do(func(doc *goquery.Document) {
		techtree.EnsureStylesheet(doc)
		s.ranks = techtree.CollectRanks(tree)

		for _, r := range s.ranks {
			for _, item := range r.Items {
				unitID := techtree.UnitID(item)
				if unitID == "" {
					continue
				}

				if rec, ok := a.lookup(ctx, unitID); ok {
					s.seen[unitID] = rec
					techtree.SetBadge(item, rec)
					s.recompute()
					continue
				}

				techtree.SetBadge(item, domain.CostRecord{})
				queued++
				a.queue.Enqueue(unitID, func(res domain.Resolution) {
					pg.Do(func(*goquery.Document) {
						s.seen[unitID] = res.Record
						if res.Resolved {
							delete(s.unresolved, unitID)
						} else {
							s.unresolved[unitID] = true
						}
						techtree.SetBadge(item, res.Record)
						s.recompute()
					})
					a.rendered()
				})
			}
		}

		s.recompute()
	})

	a.logger.Debug("tree processed", "ranks", len(s.ranks), "queued", queued)
	a.rendered()
	return s
}

// recompute rebuilds every rank sum from the units seen so far and re-renders.
func (s *TreeSession) recompute() {
	for _, r := range s.ranks {
		var rp, sl int64
		for _, item := range r.Items {
			unitID := techtree.UnitID(item)
			if unitID == "" {
				continue
			}
			if rec, ok := s.seen[unitID]; ok {
				rp += rec.ResearchPoints
				sl += rec.PurchaseCost
			}
		}
		r.RPSum, r.SLSum = rp, sl
		techtree.RenderRankSum(r)
	}

	if s.showTotal {
		techtree.RenderTotal(s.root, s.ranks)
	}
}

// Ranks returns a snapshot of the rank groups with their current sums.
func (s *TreeSession) Ranks() []domain.RankGroup {
	var out []domain.RankGroup
	s.page.Do(func(*goquery.Document) {
		out = make([]domain.RankGroup, 0, len(s.ranks))
		for _, r := range s.ranks {
			g := r.RankGroup
			g.MemberUnitIDs = append([]string(nil), r.MemberUnitIDs...)
			out = append(out, g)
		}
	})
	return out
}

// Unresolved returns how many units fell back to the fail-soft zero record.
func (s *TreeSession) Unresolved() int {
	var n int
	s.page.Do(func(*goquery.Document) {
		n = len(s.unresolved)
	})
	return n
}

// ListSession tracks a unit list and the observer that picks up appended rows.
type ListSession struct {
	cancel func()
	rows   atomic.Int64
}

// Rows returns how many rows with a unit id were handled so far.
func (l *ListSession) Rows() int {
	if l == nil {
		return 0
	}
	return int(l.rows.Load())
}

// Close stops watching the list body.
func (l *ListSession) Close() {
	if l != nil && l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// ProcessList renders the research cost of every unit-list row and keeps
// watching the table body for rows added later. It returns nil when the list
// has no body.
func (a *Aggregator) ProcessList(ctx context.Context, pg *page.Page, list *goquery.Selection) *ListSession {
	var (
		tbody *html.Node
		ls    = &ListSession{}
	)

	pg.Do(func(doc *goquery.Document) {
		body := list.Find("tbody").First()
		if body.Length() == 0 {
			return
		}
		tbody = body.Get(0)
		techtree.ListRows(body).Each(func(_ int, row *goquery.Selection) {
			if a.applyRow(ctx, pg, row) {
				ls.rows.Add(1)
			}
		})
	})
	if tbody == nil {
		return nil
	}
	a.rendered()

	ls.cancel = pg.Observe(tbody, func(added []*html.Node) {
		pg.Do(func(doc *goquery.Document) {
			doc.FindNodes(added...).Each(func(_ int, row *goquery.Selection) {
				if techtree.IsListRow(row) && a.applyRow(ctx, pg, row) {
					ls.rows.Add(1)
				}
			})
		})
		a.rendered()
	})

	return ls
}

// applyRow must run under the page lock. It reports whether the row had a unit id and cell.
func (a *Aggregator) applyRow(ctx context.Context, pg *page.Page, row *goquery.Selection) bool {
	unitID := techtree.ListUnitID(row)
	if unitID == "" {
		return false
	}
	cell := techtree.ListCell(row)
	if cell.Length() == 0 {
		return false
	}

	if rec, ok := a.lookup(ctx, unitID); ok {
		techtree.SetListCell(cell, rec)
		return true
	}

	techtree.SetListPending(cell)
	a.queue.Enqueue(unitID, func(res domain.Resolution) {
		pg.Do(func(*goquery.Document) {
			techtree.SetListCell(cell, res.Record)
		})
		a.rendered()
	})
	return true
}

func (a *Aggregator) lookup(ctx context.Context, unitID string) (domain.CostRecord, bool) {
	if a.cache == nil {
		return domain.CostRecord{}, false
	}
	rec, ok, err := a.cache.Get(ctx, unitID)
	if err != nil {
		a.logger.Warn("cache read failed", "unit", unitID, "error", err)
		return domain.CostRecord{}, false
	}
	return rec, ok
}

func (a *Aggregator) rendered() {
	if a.onRender != nil {
		a.onRender()
	}
}
