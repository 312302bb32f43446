package ports

import (
	"context"
	"time"

	"ancile/internal/domain"
)

// ItemSource pulls normalized raw items from upstream providers within
// the lookback window.
type ItemSource interface {
	Fetch(ctx context.Context, lookback time.Duration) ([]domain.RawItem, error)
}

// Generator is the black-box generative-text service: given a system
// instruction and a user prompt it returns free text.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int, temperature float64) (string, error)
}

// Analyzer turns raw source content into a structured analysis record.
type Analyzer interface {
	Analyze(ctx context.Context, body string, category domain.Category, sourceURL, sourceName string) (domain.AnalysisResult, error)
	SocialCaption(ctx context.Context, article domain.Article, meta domain.ArticleMetadata) (string, error)
}

// ArticleStore owns persisted articles and their metadata.
type ArticleStore interface {
	SaveArticle(ctx context.Context, article domain.Article) (domain.Article, error)
	SaveMetadata(ctx context.Context, meta domain.ArticleMetadata) (domain.ArticleMetadata, error)
	GetArticle(ctx context.Context, id int64) (domain.Article, error)
	GetMetadata(ctx context.Context, articleID int64) (domain.ArticleMetadata, error)
	MarkPublished(ctx context.Context, id int64) error
}

// DedupCache tracks processed source URLs and content hashes. Checked
// before the expensive analysis step; recorded only after an article
// has been durably persisted.
type DedupCache interface {
	IsDuplicate(ctx context.Context, url, body string) (bool, error)
	Record(ctx context.Context, url, body string) error
	MarkSkipped(ctx context.Context, url string) error
}

// PublishQueue records delivery obligations per (article, platform)
// and moves them through pending -> processing -> completed/failed.
type PublishQueue interface {
	Enqueue(ctx context.Context, articleID int64, platform domain.Platform, scheduled *time.Time) (domain.PublishQueueEntry, error)
	Pending(ctx context.Context) ([]domain.PublishQueueEntry, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, platformData map[string]any) error
	MarkFailed(ctx context.Context, id int64, message string) error
}

// CMSSink delivers a finished article to the headless CMS and returns
// opaque platform data (remote id).
type CMSSink interface {
	Publish(ctx context.Context, article domain.Article, meta domain.ArticleMetadata) (map[string]any, error)
}

// SocialSink posts an image reference with a caption to the social
// platform and returns opaque platform data (post id).
type SocialSink interface {
	Publish(ctx context.Context, imageRef, caption string) (map[string]any, error)
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
