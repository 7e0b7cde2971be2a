package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"TechTreeCost/internal/ports"
	"TechTreeCost/internal/techtree"
)

const rowsBinding = "__wtcost_rows"

// rowObserverJS installs one MutationObserver on the unit-list body that
// reports the outerHTML of every added row through the rowsBinding.
var rowObserverJS = fmt.Sprintf(`() => {
	const body = document.querySelector(%q);
	if (!body || body.__wtCostObserved) return false;
	body.__wtCostObserved = true;
	new MutationObserver((records) => {
		const rows = [];
		for (const r of records) {
			for (const n of r.addedNodes) {
				if (n.nodeType === 1 && n.matches(%q)) rows.push(n.outerHTML);
			}
		}
		if (rows.length) window[%q](JSON.stringify(rows));
	}).observe(body, { childList: true });
	return true;
}`, techtree.SelListBody, techtree.SelListRow, rowsBinding)

// BrowserConfig controls the headless Chrome used for client-rendered pages.
type BrowserConfig struct {
	URL string
	// RemoteURL connects to an existing DevTools endpoint instead of launching Chrome.
	RemoteURL   string
	Headless    bool
	Stealth     bool
	LoadTimeout time.Duration
}

// BrowserSource keeps one tab open on the page and reads its live DOM on
// every Load, so trees rendered by page scripts show up once they exist.
type BrowserSource struct {
	cfg    BrowserConfig
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

var (
	_ ports.PageSource = (*BrowserSource)(nil)
	_ ports.RowWatcher = (*BrowserSource)(nil)
)

// NewBrowserSource defers launching Chrome until the first Load.
func NewBrowserSource(cfg BrowserConfig, logger *slog.Logger) *BrowserSource {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{cfg: cfg, logger: logger}
}

// Name identifies the source inside the registry.
func (b *BrowserSource) Name() string {
	return "browser"
}

// Load returns the current rendered HTML of the tab.
func (b *BrowserSource) Load(ctx context.Context) (*goquery.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		if err := b.open(ctx); err != nil {
			return nil, err
		}
	}

	raw, err := b.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("browser source: read html: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("browser source: parse document: %w", err)
	}
	return doc, nil
}

// WatchRows forwards unit-list rows that page scripts append to the open tab.
// It needs a prior Load and stops when ctx is done.
func (b *BrowserSource) WatchRows(ctx context.Context, fn func(fragment string)) error {
	b.mu.Lock()
	pg := b.page
	b.mu.Unlock()
	if pg == nil {
		return fmt.Errorf("browser source: tab is not open")
	}

	if err := (proto.RuntimeAddBinding{Name: rowsBinding}).Call(pg); err != nil {
		return fmt.Errorf("browser source: add binding: %w", err)
	}

	watching := pg.Context(ctx)
	wait := watching.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != rowsBinding {
			return
		}
		rows, err := decodeRows(e.Payload)
		if err != nil {
			b.logger.Warn("row binding payload", "error", err)
			return
		}
		if len(rows) > 0 {
			fn(strings.Join(rows, ""))
		}
	})
	go wait()

	res, err := watching.Eval(rowObserverJS)
	if err != nil {
		return fmt.Errorf("browser source: inject row observer: %w", err)
	}
	if !res.Value.Bool() {
		b.logger.Debug("unit list body absent, rows arrive with page reloads only")
	}
	return nil
}

func decodeRows(payload string) ([]string, error) {
	var rows []string
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// Close shuts the tab and the browser.
func (b *BrowserSource) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser, b.page = nil, nil
	return err
}

func (b *BrowserSource) open(ctx context.Context) error {
	if b.cfg.URL == "" {
		return fmt.Errorf("browser source: no url configured")
	}

	controlURL := b.cfg.RemoteURL
	if controlURL == "" {
		u, err := launcher.New().Headless(b.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("browser source: launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("browser source: connect: %w", err)
	}

	var (
		pg  *rod.Page
		err error
	)
	if b.cfg.Stealth {
		pg, err = stealth.Page(browser)
	} else {
		pg, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("browser source: open tab: %w", err)
	}

	loading := pg.Context(ctx).Timeout(b.cfg.LoadTimeout)
	if err := loading.Navigate(b.cfg.URL); err != nil {
		_ = browser.Close()
		return fmt.Errorf("browser source: navigate %s: %w", b.cfg.URL, err)
	}
	if err := loading.WaitLoad(); err != nil {
		_ = browser.Close()
		return fmt.Errorf("browser source: wait load: %w", err)
	}

	b.logger.Info("browser tab opened", "url", b.cfg.URL, "stealth", b.cfg.Stealth)
	b.browser, b.page = browser, pg
	return nil
}
