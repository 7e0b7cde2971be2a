package ports

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/domain"
)

// CostCache persists unit costs between runs.
type CostCache interface {
	Get(ctx context.Context, unitID string) (domain.CostRecord, bool, error)
	Set(ctx context.Context, unitID string, rec domain.CostRecord) error
}

// CostFetcher loads the costs of a single unit from the wiki.
type CostFetcher interface {
	FetchCosts(ctx context.Context, unitID string) (domain.CostRecord, error)
}

// FetchQueue serializes unit fetches; callbacks may run on another goroutine.
type FetchQueue interface {
	Enqueue(unitID string, onDone func(domain.Resolution))
	Wait(ctx context.Context) error
}

// PageSource produces the current HTML of a tree or list page.
type PageSource interface {
	Name() string
	Load(ctx context.Context) (*goquery.Document, error)
}

// RowWatcher is implemented by sources that can push unit-list rows added
// after the page was loaded. fn receives the HTML of the new rows.
type RowWatcher interface {
	WatchRows(ctx context.Context, fn func(fragment string)) error
}

// Publisher receives the annotated page after it changes.
type Publisher interface {
	Publish(ctx context.Context, html string) error
}

// Notifier delivers a short text summary to an external channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Poller runs a job periodically until stopped.
type Poller interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
