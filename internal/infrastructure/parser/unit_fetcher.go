package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/ports"
)

const (
	defaultBaseURL   = "https://wiki.warthunder.com"
	defaultUserAgent = "TechTreeCost/1.0"

	selInfoItem  = ".game-unit_card-info_item"
	selInfoTitle = ".game-unit_card-info_title"
	selInfoValue = ".game-unit_card-info_value div"

	labelResearch = "Research"
	labelPurchase = "Purchase"
)

// UnitFetcher loads a unit's wiki page and reads its research and purchase costs.
type UnitFetcher struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.CostFetcher = (*UnitFetcher)(nil)

// NewUnitFetcher wires an HTTP client against baseURL; empty values get defaults.
func NewUnitFetcher(client *http.Client, baseURL, userAgent string, logger *slog.Logger) *UnitFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &UnitFetcher{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}
}

// FetchCosts issues a single GET for the unit page and parses the cost fields.
func (f *UnitFetcher) FetchCosts(ctx context.Context, unitID string) (domain.CostRecord, error) {
	doc, err := f.fetchDocument(ctx, UnitURL(f.baseURL, unitID))
	if err != nil {
		return domain.CostRecord{}, fmt.Errorf("unit %s: %w", unitID, err)
	}

	rec, err := parseCosts(doc)
	if err != nil {
		return domain.CostRecord{}, fmt.Errorf("unit %s: %w", unitID, err)
	}
	rec.FetchedAt = f.now()

	if f.logger != nil {
		f.logger.Debug("unit costs fetched", "unit", unitID, "rp", rec.ResearchPoints, "sl", rec.PurchaseCost)
	}
	return rec, nil
}

func (f *UnitFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: wiki returned %s", domain.ErrFetch, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrParse, err)
	}

	return doc, nil
}

func parseCosts(doc *goquery.Document) (domain.CostRecord, error) {
	items := doc.Find(selInfoItem)
	if items.Length() == 0 {
		return domain.CostRecord{}, fmt.Errorf("%w: no %s elements", domain.ErrParse, selInfoItem)
	}

	var rec domain.CostRecord
	items.Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(selInfoTitle).First().Text())
		value := item.Find(selInfoValue).First().Text()
		switch title {
		case labelResearch:
			rec.ResearchPoints = digitsToInt(value)
		case labelPurchase:
			rec.PurchaseCost = digitsToInt(value)
		}
	})

	return rec, nil
}

// digitsToInt keeps only the decimal digits of s, so "12 500 RP" yields 12500.
func digitsToInt(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// UnitURL builds the wiki page address of a unit.
func UnitURL(baseURL, unitID string) string {
	return strings.TrimSuffix(baseURL, "/") + "/unit/" + url.PathEscape(unitID)
}
