package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ancile/internal/domain"
	"ancile/internal/source"
)

// categoryQueries are the per-category search expressions sent to the
// news API.
var categoryQueries = map[domain.Category]string{
	domain.CategoryGeopolitics: "geopolitics OR diplomacy OR international relations OR sanctions",
	domain.CategoryDefense:     "military OR defense OR NATO OR weapons OR warfare",
	domain.CategoryCyber:       "cybersecurity OR cyber attack OR APT OR ransomware OR breach",
	domain.CategoryFinance:     "economy OR markets OR central bank OR fiscal policy OR sovereign debt",
}

// NewsAPIAdapter queries a NewsAPI-compatible endpoint per category.
type NewsAPIAdapter struct {
	baseURL  string
	apiKey   string
	pageSize int
	client   *http.Client
	logger   *slog.Logger
}

var _ source.Adapter = (*NewsAPIAdapter)(nil)

// NewNewsAPIAdapter builds the adapter; pageSize defaults to 20.
func NewNewsAPIAdapter(baseURL, apiKey string, pageSize int, client *http.Client, logger *slog.Logger) *NewsAPIAdapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &NewsAPIAdapter{
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: pageSize,
		client:   client,
		logger:   logger,
	}
}

// Name identifies the adapter in logs.
func (a *NewsAPIAdapter) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// Fetch issues one search per category. Without an API key the adapter
// yields nothing; a category query failure is logged and skipped.
func (a *NewsAPIAdapter) Fetch(ctx context.Context, lookback time.Duration) ([]domain.RawItem, error) {
	if a.apiKey == "" {
		a.log("api key not configured, skipping")
		return nil, nil
	}

	from := time.Now().UTC().Add(-lookback).Format("2006-01-02")

	var (
		items   []domain.RawItem
		ok      int
		lastErr error
	)

	for _, category := range domain.Categories() {
		query := categoryQueries[category]
		batch, err := a.search(ctx, category, query, from)
		if err != nil {
			lastErr = err
			a.log("category query failed", "category", category, "error", err)
			continue
		}
		ok++
		items = append(items, batch...)
	}

	if ok == 0 {
		return nil, &domain.SourceUnavailableError{Source: a.Name(), Err: lastErr}
	}
	return items, nil
}

func (a *NewsAPIAdapter) search(ctx context.Context, category domain.Category, query, from string) ([]domain.RawItem, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("from", from)
	params.Set("language", "en")
	params.Set("sortBy", "relevancy")
	params.Set("pageSize", strconv.Itoa(a.pageSize))
	params.Set("apiKey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news api returned %s", resp.Status)
	}

	var payload newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("news api status %q", payload.Status)
	}

	items := make([]domain.RawItem, 0, len(payload.Articles))
	for _, entry := range payload.Articles {
		published := time.Time{}
		if entry.PublishedAt != "" {
			if parsed, pErr := time.Parse(time.RFC3339, entry.PublishedAt); pErr == nil {
				published = parsed.UTC()
			}
		}

		sourceName := entry.Source.Name
		if sourceName == "" {
			sourceName = "NewsAPI"
		}

		items = append(items, domain.RawItem{
			Title:       strings.TrimSpace(entry.Title),
			Body:        strings.TrimSpace(entry.Description + "\n\n" + entry.Content),
			URL:         entry.URL,
			SourceName:  sourceName,
			Category:    category,
			PublishedAt: published,
		})
	}
	return items, nil
}

func (a *NewsAPIAdapter) log(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
