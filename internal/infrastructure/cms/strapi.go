package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ancile/internal/domain"
	"ancile/internal/ports"
)

// Client publishes finished articles to a Strapi-style headless CMS
// over its REST content API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.CMSSink = (*Client)(nil)

// NewClient registers the CMS endpoint and bearer token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type articlePayload struct {
	Data articleData `json:"data"`
}

type articleData struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	Summary        string `json:"summary,omitempty"`
	Category       string `json:"category"`
	SourceURL      string `json:"source_url,omitempty"`
	WordCount      int    `json:"word_count,omitempty"`
	SEODescription string `json:"seo_description,omitempty"`
	PublishedAt    string `json:"publishedAt"`
}

// Publish posts the article and returns the remote id as platform
// data. Any failure surfaces as a PublishError for the queue entry.
func (c *Client) Publish(ctx context.Context, article domain.Article, meta domain.ArticleMetadata) (map[string]any, error) {
	if c.token == "" || c.baseURL == "" {
		return nil, &domain.PublishError{Platform: domain.PlatformCMS, Err: fmt.Errorf("cms sink misconfigured")}
	}

	body, err := json.Marshal(articlePayload{Data: articleData{
		Title:          article.Title,
		Content:        article.Content,
		Summary:        article.Summary,
		Category:       string(article.Category),
		SourceURL:      article.SourceURL,
		WordCount:      article.WordCount,
		SEODescription: meta.SEODescription,
		PublishedAt:    time.Now().UTC().Format(time.RFC3339),
	}})
	if err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformCMS, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/articles", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformCMS, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformCMS, Err: fmt.Errorf("post article: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &domain.PublishError{
			Platform: domain.PlatformCMS,
			Err:      fmt.Errorf("cms error %s: %s", resp.Status, strings.TrimSpace(string(excerpt))),
		}
	}

	var decoded struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformCMS, Err: fmt.Errorf("decode response: %w", err)}
	}

	if c.logger != nil {
		c.logger.Info("published to cms", "article", article.ID, "remote_id", decoded.Data.ID)
	}
	return map[string]any{"remote_id": decoded.Data.ID}, nil
}
