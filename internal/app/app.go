package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/config"
	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/infrastructure/output"
	"TechTreeCost/internal/infrastructure/parser"
	"TechTreeCost/internal/infrastructure/scheduler"
	"TechTreeCost/internal/infrastructure/server"
	infrasource "TechTreeCost/internal/infrastructure/source"
	"TechTreeCost/internal/infrastructure/storage"
	"TechTreeCost/internal/infrastructure/telegram"
	"TechTreeCost/internal/logging"
	"TechTreeCost/internal/page"
	"TechTreeCost/internal/ports"
	"TechTreeCost/internal/queue"
	"TechTreeCost/internal/source"
	"TechTreeCost/internal/techtree"
	"TechTreeCost/internal/usecase"
)

// ErrNoTree is returned by RunTree when the loaded page has no tech tree container.
var ErrNoTree = errors.New("page has no tech tree container")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	cache    *storage.SQLCache
	queue    *queue.Queue
	sources  *source.Registry
	browser  *infrasource.BrowserSource
	sink     ports.Publisher
	notifier *telegram.Notifier
}

// TreeReport summarizes a one-shot pass over a page.
type TreeReport struct {
	Ranks      []domain.RankGroup
	Unresolved int
	ListRows   int
}

// Summary renders the rank sums and the grand total as plain text.
func (r TreeReport) Summary() string {
	var b strings.Builder
	for _, rank := range r.Ranks {
		fmt.Fprintf(&b, "%s %s (%d units)\n", rank.Label, domain.RankSummary(rank.RPSum, rank.SLSum), len(rank.MemberUnitIDs))
	}
	rp, sl := domain.Totals(r.Ranks)
	fmt.Fprintf(&b, "Total Cost: RP %s • SL %s\n", domain.FormatInt(rp), domain.FormatInt(sl))
	if r.Unresolved > 0 {
		fmt.Fprintf(&b, "%d units could not be resolved\n", r.Unresolved)
	}
	if r.ListRows > 0 {
		fmt.Fprintf(&b, "%d list rows annotated\n", r.ListRows)
	}
	return b.String()
}

// UnitCost is the resolved cost of a single unit.
type UnitCost struct {
	UnitID string
	domain.Resolution
	Cached bool
}

// New opens the cache and builds every component. out receives the annotated
// page when no output path is configured.
func New(cfg config.Config, baseLogger *slog.Logger, out io.Writer) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, placeholder, err := storage.Open(cfg.Cache.DSN)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	cache := storage.NewSQLCache(db, placeholder, cfg.Cache.KeyPrefix)

	client := &http.Client{Timeout: cfg.Wiki.Timeout}
	fetcher := parser.NewUnitFetcher(client, cfg.Wiki.BaseURL, cfg.Wiki.UserAgent, baseLogger.With("component", "fetcher"))
	q := queue.New(fetcher, cache, cfg.Wiki.RequestDelay, baseLogger.With("component", "queue"))

	browser := infrasource.NewBrowserSource(infrasource.BrowserConfig{
		URL:         cfg.Source.Location,
		RemoteURL:   cfg.Browser.RemoteURL,
		Headless:    cfg.Browser.IsHeadless(),
		Stealth:     cfg.Browser.Stealth,
		LoadTimeout: cfg.Browser.LoadTimeout,
	}, baseLogger.With("component", "source.browser"))

	registry := source.NewRegistry()
	registry.Register(infrasource.NewFileSource(cfg.Source.Location))
	registry.Register(infrasource.NewHTTPSource(client, cfg.Source.Location, cfg.Wiki.UserAgent))
	registry.Register(browser)

	tg := cfg.Notifications.Telegram

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		cache:    cache,
		queue:    q,
		sources:  registry,
		browser:  browser,
		sink:     output.NewFileSink(cfg.Output.Path, out),
		notifier: telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.APIBase),
	}, nil
}

// Close releases the browser and the cache database.
func (a *Application) Close() error {
	var errs []error
	if a.browser != nil {
		errs = append(errs, a.browser.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// RunTree loads the configured page once, annotates its visible tree and list,
// waits for every queued fetch and publishes the result.
func (a *Application) RunTree(ctx context.Context) (TreeReport, error) {
	src, err := a.sources.Resolve(a.cfg.Source.Kind)
	if err != nil {
		return TreeReport{}, err
	}

	doc, err := src.Load(ctx)
	if err != nil {
		return TreeReport{}, fmt.Errorf("load page: %w", err)
	}
	if doc.Find(techtree.SelTreesContainer).Length() == 0 {
		return TreeReport{}, ErrNoTree
	}

	pg := page.New(doc)
	agg := a.aggregator(nil)

	var tree, list *goquery.Selection
	pg.Do(func(doc *goquery.Document) {
		tree = techtree.VisibleTree(doc)
		list = techtree.VisibleList(doc)
	})

	var session *usecase.TreeSession
	if tree != nil {
		session = agg.ProcessTree(ctx, pg, tree)
	}
	var listSession *usecase.ListSession
	if list != nil {
		listSession = agg.ProcessList(ctx, pg, list)
		defer listSession.Close()
	}

	if err := a.queue.Wait(ctx); err != nil {
		return TreeReport{}, fmt.Errorf("wait for fetches: %w", err)
	}

	if err := a.publish(ctx, pg); err != nil {
		return TreeReport{}, err
	}

	var report TreeReport
	if session != nil {
		report.Ranks = session.Ranks()
		report.Unresolved = session.Unresolved()
	}
	if listSession != nil {
		report.ListRows = listSession.Rows()
	}
	return report, nil
}

// NotifyReport sends the report summary to Telegram when a bot is configured.
func (a *Application) NotifyReport(ctx context.Context, report TreeReport) error {
	if !a.notifier.Configured() {
		return nil
	}
	if err := a.notifier.Notify(ctx, report.Summary()); err != nil {
		return fmt.Errorf("notify telegram: %w", err)
	}
	return nil
}

// Watch keeps the page annotated until ctx is done, publishing after every render.
func (a *Application) Watch(ctx context.Context) error {
	src, err := a.sources.Resolve(a.cfg.Source.Kind)
	if err != nil {
		return err
	}

	var boot *usecase.Bootstrapper
	agg := a.aggregator(func() {
		if pg := boot.Page(); pg != nil {
			if err := a.publish(ctx, pg); err != nil && ctx.Err() == nil {
				a.logger.Warn("publish page failed", "error", err)
			}
		}
	})

	boot = usecase.NewBootstrapper(usecase.BootstrapperDeps{
		Source:      src,
		Aggregator:  agg,
		ReadyPoller: scheduler.NewIntervalPoller(a.cfg.Bootstrap.ReadyInterval),
		WatchPoller: scheduler.NewIntervalPoller(a.cfg.Bootstrap.WatchInterval),
		Debounce:    a.cfg.Bootstrap.Debounce,
		Logger:      a.logger.With("component", "bootstrapper"),
	})
	return boot.Run(ctx)
}

// Units resolves the costs of the given units through the cache and fetch queue.
func (a *Application) Units(ctx context.Context, unitIDs []string) ([]UnitCost, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]UnitCost, len(unitIDs))
	)

	for _, id := range unitIDs {
		mu.Lock()
		_, dup := results[id]
		mu.Unlock()
		if dup {
			continue
		}

		rec, ok, err := a.cache.Get(ctx, id)
		if err != nil {
			a.logger.Warn("cache read failed", "unit", id, "error", err)
		}
		if ok {
			mu.Lock()
			results[id] = UnitCost{UnitID: id, Resolution: domain.Resolution{Record: rec, Resolved: true}, Cached: true}
			mu.Unlock()
			continue
		}

		mu.Lock()
		results[id] = UnitCost{UnitID: id}
		mu.Unlock()

		unitID := id
		a.queue.Enqueue(unitID, func(res domain.Resolution) {
			mu.Lock()
			results[unitID] = UnitCost{UnitID: unitID, Resolution: res}
			mu.Unlock()
		})
	}

	if err := a.queue.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for fetches: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]UnitCost, 0, len(results))
	for _, id := range unitIDs {
		if res, ok := results[id]; ok {
			out = append(out, res)
			delete(results, id)
		}
	}
	return out, nil
}

// Serve exposes the cost lookup over HTTP until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	srv := server.New(a.cache, a.queue, a.logger.With("component", "server"))
	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// CachedUnits lists the unit ids present in the cache, sorted.
func (a *Application) CachedUnits(ctx context.Context) ([]string, error) {
	return a.cache.Keys(ctx)
}

func (a *Application) aggregator(onRender func()) *usecase.Aggregator {
	return usecase.NewAggregator(usecase.AggregatorDeps{
		Cache:     a.cache,
		Queue:     a.queue,
		ShowTotal: a.cfg.Render.TotalEnabled(),
		Logger:    a.logger.With("component", "aggregator"),
		OnRender:  onRender,
	})
}

func (a *Application) publish(ctx context.Context, pg *page.Page) error {
	out, err := pg.HTML()
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	if err := a.sink.Publish(ctx, out); err != nil {
		return fmt.Errorf("publish page: %w", err)
	}
	return nil
}
