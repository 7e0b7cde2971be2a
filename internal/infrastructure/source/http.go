package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/ports"
)

// HTTPSource GETs a tree page such as {base}/ground.
type HTTPSource struct {
	url       string
	userAgent string
	client    *http.Client
}

var _ ports.PageSource = (*HTTPSource)(nil)

// NewHTTPSource wires an HTTP client; a nil client gets a 20s timeout.
func NewHTTPSource(client *http.Client, pageURL, userAgent string) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPSource{url: pageURL, userAgent: userAgent, client: client}
}

// Name identifies the source inside the registry.
func (h *HTTPSource) Name() string {
	return "http"
}

// Load fetches and parses the page.
func (h *HTTPSource) Load(ctx context.Context) (*goquery.Document, error) {
	if h.url == "" {
		return nil, fmt.Errorf("http source: no url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("http source: build request: %w", err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http source: request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http source: %s returned %s", h.url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http source: parse document: %w", err)
	}
	return doc, nil
}
