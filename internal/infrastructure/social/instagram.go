package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ancile/internal/config"
	"ancile/internal/domain"
	"ancile/internal/ports"
)

// NewSink picks the configured transport. Both take an image reference
// and a caption and return opaque platform data; from the pipeline's
// perspective they are interchangeable.
func NewSink(cfg config.SocialConfig, logger *slog.Logger) (ports.SocialSink, error) {
	switch cfg.Method {
	case "graph":
		if cfg.AccessToken == "" || cfg.AccountID == "" {
			return nil, fmt.Errorf("graph transport requires access token and account id")
		}
		return NewGraphClient(cfg.AccessToken, cfg.AccountID, logger), nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook transport requires a webhook url")
		}
		return NewWebhookClient(cfg.WebhookURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown social method %q", cfg.Method)
	}
}

const graphBaseURL = "https://graph.facebook.com/v19.0"

// GraphClient posts through the platform content-publishing API:
// create a media container, then publish it.
type GraphClient struct {
	baseURL     string
	accessToken string
	accountID   string
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.SocialSink = (*GraphClient)(nil)

// NewGraphClient wires the direct API transport.
func NewGraphClient(accessToken, accountID string, logger *slog.Logger) *GraphClient {
	return &GraphClient{
		baseURL:     graphBaseURL,
		accessToken: accessToken,
		accountID:   accountID,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Publish uploads the image with caption and returns the post id.
func (c *GraphClient) Publish(ctx context.Context, imageRef, caption string) (map[string]any, error) {
	containerID, err := c.createContainer(ctx, imageRef, caption)
	if err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformSocial, Err: err}
	}

	postID, err := c.publishContainer(ctx, containerID)
	if err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformSocial, Err: err}
	}

	if c.logger != nil {
		c.logger.Info("posted to social platform", "post_id", postID)
	}
	return map[string]any{"method": "graph", "post_id": postID}, nil
}

func (c *GraphClient) createContainer(ctx context.Context, imageRef, caption string) (string, error) {
	form := url.Values{}
	form.Set("image_url", imageRef)
	form.Set("caption", caption)
	form.Set("access_token", c.accessToken)

	endpoint := fmt.Sprintf("%s/%s/media", c.baseURL, c.accountID)
	return c.postForm(ctx, endpoint, form)
}

func (c *GraphClient) publishContainer(ctx context.Context, containerID string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", c.accessToken)

	endpoint := fmt.Sprintf("%s/%s/media_publish", c.baseURL, c.accountID)
	return c.postForm(ctx, endpoint, form)
}

func (c *GraphClient) postForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("platform error %s: %s", resp.Status, strings.TrimSpace(string(excerpt)))
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("platform returned empty id")
	}
	return decoded.ID, nil
}

// WebhookClient hands the post off to an automation webhook that owns
// the actual platform login.
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.SocialSink = (*WebhookClient)(nil)

// NewWebhookClient wires the webhook transport.
func NewWebhookClient(webhookURL string, logger *slog.Logger) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type webhookPayload struct {
	Image     string `json:"image"`
	Caption   string `json:"caption"`
	Timestamp string `json:"timestamp"`
}

// Publish posts the payload to the webhook and returns its response as
// platform data.
func (c *WebhookClient) Publish(ctx context.Context, imageRef, caption string) (map[string]any, error) {
	body, err := json.Marshal(webhookPayload{
		Image:     imageRef,
		Caption:   caption,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformSocial, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformSocial, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.PublishError{Platform: domain.PlatformSocial, Err: fmt.Errorf("post webhook: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &domain.PublishError{
			Platform: domain.PlatformSocial,
			Err:      fmt.Errorf("webhook error %s: %s", resp.Status, strings.TrimSpace(string(excerpt))),
		}
	}

	response := map[string]any{}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &response)
	}

	if c.logger != nil {
		c.logger.Info("webhook handoff accepted")
	}
	return map[string]any{"method": "webhook", "response": response}, nil
}
