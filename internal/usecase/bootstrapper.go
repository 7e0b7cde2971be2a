package usecase

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"TechTreeCost/internal/page"
	"TechTreeCost/internal/ports"
	"TechTreeCost/internal/techtree"
)

// DefaultDebounce is the minimum spacing between two mutation-triggered passes.
// A pass asked for sooner is deferred, not dropped.
const DefaultDebounce = 300 * time.Millisecond

// State is the lifecycle phase of a Bootstrapper.
type State int32

const (
	StateWaitingForTreeContainer State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "waiting_for_tree_container"
}

// BootstrapperDeps wires the page source, pollers and aggregator.
type BootstrapperDeps struct {
	Source     ports.PageSource
	Aggregator *Aggregator
	// ReadyPoller drives readiness checks while waiting for the tree container.
	ReadyPoller ports.Poller
	// WatchPoller re-polls the source once active; nil disables change detection.
	WatchPoller ports.Poller
	Debounce    time.Duration
	Logger      *slog.Logger
}

// Bootstrapper waits for the tree container, then reprocesses the visible
// tree and list whenever the page structure changes.
type Bootstrapper struct {
	source  ports.PageSource
	agg     *Aggregator
	ready   ports.Poller
	watch   ports.Poller
	limiter *rateGate
	logger  *slog.Logger

	state  atomic.Int32
	signal chan struct{}

	mu       sync.Mutex
	page     *page.Page
	lastHash [sha256.Size]byte
	list     *ListSession
	tree     *TreeSession
}

// NewBootstrapper constructs a bootstrapper in the waiting state.
func NewBootstrapper(deps BootstrapperDeps) *Bootstrapper {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := deps.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Bootstrapper{
		source:  deps.Source,
		agg:     deps.Aggregator,
		ready:   deps.ReadyPoller,
		watch:   deps.WatchPoller,
		limiter: newRateGate(debounce),
		logger:  logger,
		signal:  make(chan struct{}, 1),
	}
}

// State reports the current lifecycle phase.
func (b *Bootstrapper) State() State {
	return State(b.state.Load())
}

// Page returns the active page, or nil while still waiting.
func (b *Bootstrapper) Page() *page.Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

// Tree returns the session of the latest tree pass, if any.
func (b *Bootstrapper) Tree() *TreeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree
}

// Run blocks until ctx is done. It returns an error only when the source
// never became ready.
func (b *Bootstrapper) Run(ctx context.Context) error {
	if b.source == nil || b.agg == nil || b.ready == nil {
		return fmt.Errorf("bootstrapper is not configured")
	}

	doc, err := b.waitReady(ctx)
	if err != nil {
		return fmt.Errorf("wait for tree container: %w", err)
	}

	pg := page.New(doc)
	b.mu.Lock()
	b.page = pg
	b.mu.Unlock()
	b.state.Store(int32(StateActive))
	b.logger.Info("tree container ready", "source", b.source.Name())

	cancel := pg.Observe(nil, func([]*html.Node) { b.schedule() })
	defer cancel()

	if rw, ok := b.source.(ports.RowWatcher); ok {
		if err := rw.WatchRows(ctx, b.appendRows); err != nil {
			b.logger.Warn("live row watch unavailable", "source", b.source.Name(), "error", err)
		}
	}

	b.pass(ctx)

	if b.watch != nil {
		if err := b.watch.Start(ctx, func(time.Time) { b.refresh(ctx) }); err != nil {
			return fmt.Errorf("start change watch: %w", err)
		}
		defer func() { _ = b.watch.Stop(context.Background()) }()
	}

	// retry fires once the gate reopens for a signal that arrived too early.
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			b.closeList()
			return nil
		case <-b.signal:
			if wait := b.limiter.wait(); wait > 0 {
				if retry == nil {
					retry = time.After(wait)
				}
				continue
			}
			retry = nil
			b.pass(ctx)
		case <-retry:
			retry = nil
			b.schedule()
		}
	}
}

func (b *Bootstrapper) waitReady(ctx context.Context) (*goquery.Document, error) {
	ready := make(chan *goquery.Document, 1)

	err := b.ready.Start(ctx, func(time.Time) {
		doc, err := b.source.Load(ctx)
		if err != nil {
			b.logger.Debug("page not loaded yet", "source", b.source.Name(), "error", err)
			return
		}
		if doc.Find(techtree.SelTreesContainer).Length() == 0 {
			return
		}
		select {
		case ready <- doc:
			_ = b.ready.Stop(ctx)
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	select {
	case doc := <-ready:
		b.mu.Lock()
		b.lastHash = hashDocument(doc)
		b.mu.Unlock()
		return doc, nil
	case <-ctx.Done():
		_ = b.ready.Stop(context.Background())
		return nil, ctx.Err()
	}
}

// schedule requests a pass; bursts collapse into the single pending signal.
func (b *Bootstrapper) schedule() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// appendRows inserts rows pushed by the source into the list body; the list
// observer of the current pass badges them.
func (b *Bootstrapper) appendRows(fragment string) {
	pg := b.Page()
	if pg == nil {
		return
	}
	n, err := pg.Append(techtree.SelListBody, fragment)
	if err != nil {
		b.logger.Debug("drop pushed rows", "error", err)
		return
	}
	b.logger.Debug("rows appended", "rows", n)
}

// refresh reloads the source and swaps the document when its markup changed.
func (b *Bootstrapper) refresh(ctx context.Context) {
	doc, err := b.source.Load(ctx)
	if err != nil {
		b.logger.Warn("reload page failed", "source", b.source.Name(), "error", err)
		return
	}

	hash := hashDocument(doc)
	b.mu.Lock()
	if hash == b.lastHash {
		b.mu.Unlock()
		return
	}
	b.lastHash = hash
	pg := b.page
	b.mu.Unlock()

	b.logger.Debug("page changed", "source", b.source.Name())
	pg.Replace(doc)
}

func (b *Bootstrapper) pass(ctx context.Context) {
	pg := b.Page()
	logger := b.logger.With("pass", uuid.NewString())

	var tree, list *goquery.Selection
	pg.Do(func(doc *goquery.Document) {
		tree = techtree.VisibleTree(doc)
		list = techtree.VisibleList(doc)
	})

	if tree != nil {
		session := b.agg.ProcessTree(ctx, pg, tree)
		b.mu.Lock()
		b.tree = session
		b.mu.Unlock()
		logger.Info("tree pass done", "ranks", len(session.Ranks()))
	}

	b.closeList()
	if list != nil {
		session := b.agg.ProcessList(ctx, pg, list)
		b.mu.Lock()
		b.list = session
		b.mu.Unlock()
		logger.Info("list pass done", "rows", session.Rows())
	}

	if tree == nil && list == nil {
		logger.Debug("no visible tree or list")
	}
}

func (b *Bootstrapper) closeList() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.list.Close()
	b.list = nil
}

func hashDocument(doc *goquery.Document) [sha256.Size]byte {
	out, err := doc.Html()
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256([]byte(out))
}

// rateGate spaces runs at least interval apart. A run asked for too early is
// told how long to wait; the caller re-asks after that.
type rateGate struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newRateGate(interval time.Duration) *rateGate {
	return &rateGate{interval: interval, now: time.Now}
}

// wait returns zero and records the run when the gate is open, otherwise the
// time left until it opens.
func (g *rateGate) wait() time.Duration {
	now := g.now()
	if !g.last.IsZero() {
		if left := g.interval - now.Sub(g.last); left > 0 {
			return left
		}
	}
	g.last = now
	return 0
}
