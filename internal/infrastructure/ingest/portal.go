package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ancile/internal/domain"
	"ancile/internal/source"
)

const (
	// Links with shorter text are navigation chrome, not releases.
	portalMinTitleLength = 20
	portalMaxLinks       = 10
)

// Portal describes one official press-release page to scrape.
type Portal struct {
	Name     string
	URL      string
	Category domain.Category
}

// PortalAdapter scrapes configured portal pages for release links.
// The extraction is deliberately generic: link text becomes both title
// and body; the analysis stage works from the linked headline.
type PortalAdapter struct {
	portals []Portal
	client  *http.Client
	logger  *slog.Logger
}

var _ source.Adapter = (*PortalAdapter)(nil)

// NewPortalAdapter wires an HTTP client over the portal list.
func NewPortalAdapter(portals []Portal, client *http.Client, logger *slog.Logger) *PortalAdapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PortalAdapter{portals: portals, client: client, logger: logger}
}

// Name identifies the adapter in logs.
func (a *PortalAdapter) Name() string { return "portal" }

// Fetch scrapes every portal. A failing portal is logged and skipped;
// the adapter fails only when none could be reached.
func (a *PortalAdapter) Fetch(ctx context.Context, _ time.Duration) ([]domain.RawItem, error) {
	var (
		items   []domain.RawItem
		ok      int
		lastErr error
	)

	for _, portal := range a.portals {
		batch, err := a.scrape(ctx, portal)
		if err != nil {
			lastErr = err
			a.log("portal scrape failed", "portal", portal.Name, "error", err)
			continue
		}
		ok++
		items = append(items, batch...)
	}

	if ok == 0 && len(a.portals) > 0 {
		return nil, &domain.SourceUnavailableError{Source: a.Name(), Err: lastErr}
	}
	return items, nil
}

func (a *PortalAdapter) scrape(ctx context.Context, portal Portal) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, portal.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ancile/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	base, err := url.Parse(portal.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid portal url %s: %w", portal.URL, err)
	}

	var items []domain.RawItem
	doc.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if len(items) >= portalMaxLinks {
			return false
		}

		title := strings.TrimSpace(link.Text())
		if len(title) < portalMinTitleLength {
			return true
		}

		href, _ := link.Attr("href")
		if href == "" {
			return true
		}
		if parsed, pErr := url.Parse(href); pErr == nil {
			href = base.ResolveReference(parsed).String()
		}

		items = append(items, domain.RawItem{
			Title:      title,
			Body:       title,
			URL:        href,
			SourceName: portal.Name,
			Category:   portal.Category,
		})
		return true
	})

	return items, nil
}

func (a *PortalAdapter) log(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
