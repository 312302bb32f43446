package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"ancile/internal/domain"
	"ancile/internal/source"
)

// RSSAdapter pulls per-category feed lists and normalizes entries.
type RSSAdapter struct {
	feeds  map[domain.Category][]string
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ source.Adapter = (*RSSAdapter)(nil)

// NewRSSAdapter wires a gofeed parser over the configured feed map.
func NewRSSAdapter(feeds map[domain.Category][]string, client *http.Client, logger *slog.Logger) *RSSAdapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.Client = client

	return &RSSAdapter{feeds: feeds, parser: parser, logger: logger}
}

// Name identifies the adapter in logs.
func (a *RSSAdapter) Name() string { return "rss" }

// Fetch walks every configured feed. A broken feed is logged and
// skipped; the adapter fails only when no feed could be read at all.
func (a *RSSAdapter) Fetch(ctx context.Context, lookback time.Duration) ([]domain.RawItem, error) {
	cutoff := time.Now().UTC().Add(-lookback)

	var (
		items    []domain.RawItem
		fetched  int
		lastErr  error
		attempts int
	)

	for category, urls := range a.feeds {
		for _, feedURL := range urls {
			attempts++
			feed, err := a.parser.ParseURLWithContext(feedURL, ctx)
			if err != nil {
				lastErr = err
				a.log("feed fetch failed", "url", feedURL, "error", err)
				continue
			}
			fetched++

			sourceName := strings.TrimSpace(feed.Title)
			if sourceName == "" {
				sourceName = "RSS Feed"
			}

			for _, entry := range feed.Items {
				published := time.Time{}
				if entry.PublishedParsed != nil {
					published = entry.PublishedParsed.UTC()
				}
				if !published.IsZero() && published.Before(cutoff) {
					continue
				}

				body := entry.Description
				if body == "" && entry.Content != "" {
					body = entry.Content
				}

				items = append(items, domain.RawItem{
					Title:       strings.TrimSpace(entry.Title),
					Body:        stripHTML(body),
					URL:         entry.Link,
					SourceName:  sourceName,
					Category:    category,
					PublishedAt: published,
				})
			}
		}
	}

	if fetched == 0 && attempts > 0 {
		return nil, &domain.SourceUnavailableError{Source: a.Name(), Err: fmt.Errorf("all %d feeds failed: %w", attempts, lastErr)}
	}
	return items, nil
}

// stripHTML reduces feed markup to plain text.
func stripHTML(markup string) string {
	if !strings.Contains(markup, "<") {
		return strings.TrimSpace(markup)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.TrimSpace(markup)
	}
	return strings.TrimSpace(doc.Text())
}

func (a *RSSAdapter) log(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
