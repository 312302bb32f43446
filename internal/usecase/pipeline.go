package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ancile/internal/analysis"
	"ancile/internal/domain"
	"ancile/internal/ports"
	"ancile/internal/relevance"
)

// errorMessageLimit bounds what gets stored on a failed queue entry.
const errorMessageLimit = 500

// PipelineDeps wires all driven adapters into the orchestration
// pipeline.
type PipelineDeps struct {
	Source   ports.ItemSource
	Filter   *relevance.Filter
	Analyzer ports.Analyzer
	Store    ports.ArticleStore
	Dedup    ports.DedupCache
	Queue    ports.PublishQueue
	CMS      ports.CMSSink
	Social   ports.SocialSink
	Logger   *slog.Logger
}

// Settings bounds one pipeline run.
type Settings struct {
	Lookback      time.Duration
	MaxArticles   int
	MinWords      int
	SocialEnabled bool
	SocialImage   string
}

// Options are per-invocation overrides.
type Options struct {
	DryRun      bool
	MaxArticles int
}

// Summary is the run report: counts and wall time.
type Summary struct {
	Fetched   int
	Processed int
	Skipped   int
	Duration  time.Duration
}

// Pipeline sequences ingest, filter, dedup gate, analysis, persistence
// and distribution for one run. Strictly sequential: failures are
// contained per item or per platform and never abort the batch; only
// store failures are run-fatal.
type Pipeline struct {
	source   ports.ItemSource
	filter   *relevance.Filter
	analyzer ports.Analyzer
	store    ports.ArticleStore
	dedup    ports.DedupCache
	queue    ports.PublishQueue
	cms      ports.CMSSink
	social   ports.SocialSink
	settings Settings
	logger   *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, settings Settings) *Pipeline {
	return &Pipeline{
		source:   deps.Source,
		filter:   deps.Filter,
		analyzer: deps.Analyzer,
		store:    deps.Store,
		dedup:    deps.Dedup,
		queue:    deps.Queue,
		cms:      deps.CMS,
		social:   deps.Social,
		settings: settings,
		logger:   deps.Logger,
	}
}

// Run executes one complete pass: fetch, filter, trim to the most
// relevant N, then per item dedup gate, analysis, persistence and
// queueing, finishing with a queue drain unless dry-run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	summary := Summary{}

	items, err := p.source.Fetch(ctx, p.settings.Lookback)
	if err != nil {
		return summary, fmt.Errorf("fetch sources: %w", err)
	}

	items = p.filter.Apply(items)
	summary.Fetched = len(items)
	if len(items) == 0 {
		p.logger.Info("no items to process")
		summary.Duration = time.Since(start)
		return summary, nil
	}

	limit := opts.MaxArticles
	if limit <= 0 {
		limit = p.settings.MaxArticles
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	p.logger.Info("processing batch", "items", len(items), "dry_run", opts.DryRun)

	for i := range items {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		processed, err := p.processItem(ctx, items[i], opts.DryRun)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		if processed {
			summary.Processed++
		} else {
			summary.Skipped++
		}
	}

	if !opts.DryRun {
		if err := p.Drain(ctx); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
	}

	summary.Duration = time.Since(start)
	p.logger.Info("run complete",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"duration", summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// processItem takes one item through the dedup gate, analysis,
// persistence and enqueueing. It returns (false, nil) for contained
// per-item skips; an error return is run-fatal.
func (p *Pipeline) processItem(ctx context.Context, item domain.RawItem, dryRun bool) (bool, error) {
	dup, err := p.dedup.IsDuplicate(ctx, item.URL, item.Body)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		p.logger.Info("skipped duplicate", "url", item.URL)
		if err := p.dedup.MarkSkipped(ctx, item.URL); err != nil {
			p.logger.Warn("mark skipped failed", "url", item.URL, "error", err)
		}
		return false, nil
	}

	// The dedup gate sits before this call: analysis is the expensive
	// step and must not run twice for the same source.
	result, err := p.analyzer.Analyze(ctx, item.Body, item.Category, item.URL, item.SourceName)
	if err != nil {
		p.logger.Warn("analysis failed, skipping item", "url", item.URL, "error", err)
		return false, nil
	}

	if result.WordCount < p.settings.MinWords {
		p.logger.Info("skipped short analysis", "url", item.URL, "words", result.WordCount, "min_words", p.settings.MinWords)
		return false, nil
	}

	article, err := p.store.SaveArticle(ctx, domain.Article{
		Title:          result.Title,
		Content:        result.Content,
		Summary:        result.Summary,
		Category:       item.Category,
		SourceURL:      item.URL,
		SourceName:     item.SourceName,
		RawContent:     item.Body,
		WordCount:      result.WordCount,
		RelevanceScore: item.RelevanceScore,
	})
	if err != nil {
		var invalid *domain.ValidationError
		if errors.As(err, &invalid) {
			p.logger.Warn("invalid article, skipping item", "url", item.URL, "error", err)
			return false, nil
		}
		return false, fmt.Errorf("save article: %w", err)
	}

	// Recorded only now that the article is durable: a dedup record
	// always implies a persisted article.
	if err := p.dedup.Record(ctx, item.URL, item.Body); err != nil {
		return false, fmt.Errorf("record dedup: %w", err)
	}

	meta := domain.ArticleMetadata{
		ArticleID:      article.ID,
		Tags:           firstN(result.Keywords, 5),
		Keywords:       result.Keywords,
		SEODescription: result.SEODescription,
		Entities:       result.Entities,
		SocialCaption:  result.SocialSummary,
		SocialHashtags: analysis.Hashtags(item.Category),
	}
	if p.settings.SocialEnabled {
		if caption, cErr := p.analyzer.SocialCaption(ctx, article, meta); cErr == nil && caption != "" {
			meta.SocialCaption = caption
		}
	}

	meta, err = p.store.SaveMetadata(ctx, meta)
	if err != nil {
		var invalid *domain.ValidationError
		if errors.As(err, &invalid) {
			p.logger.Warn("invalid metadata, article kept without it", "article", article.ID, "error", err)
		} else {
			return false, fmt.Errorf("save metadata: %w", err)
		}
	}

	if !dryRun {
		if _, err := p.queue.Enqueue(ctx, article.ID, domain.PlatformCMS, nil); err != nil {
			return false, fmt.Errorf("enqueue cms: %w", err)
		}
		if p.settings.SocialEnabled && p.social != nil {
			if _, err := p.queue.Enqueue(ctx, article.ID, domain.PlatformSocial, nil); err != nil {
				return false, fmt.Errorf("enqueue social: %w", err)
			}
		}
	}

	p.logger.Info("item processed", "article", article.ID, "words", result.WordCount)
	return true, nil
}

// Drain sweeps pending queue entries in creation order, delivering
// each through its platform sink. One entry's failure never blocks the
// rest. The sweep is single-threaded; the processing claim in the
// store is the compare-and-set that would guard a concurrent drain.
func (p *Pipeline) Drain(ctx context.Context) error {
	entries, err := p.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("load pending entries: %w", err)
	}

	for _, entry := range entries {
		if err := p.queue.MarkProcessing(ctx, entry.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Already claimed or removed; not ours to deliver.
				continue
			}
			return fmt.Errorf("claim entry %d: %w", entry.ID, err)
		}
		p.deliver(ctx, entry)
	}
	return nil
}

func (p *Pipeline) deliver(ctx context.Context, entry domain.PublishQueueEntry) {
	article, err := p.store.GetArticle(ctx, entry.ArticleID)
	if err != nil {
		p.fail(ctx, entry, err)
		return
	}

	meta, err := p.store.GetMetadata(ctx, entry.ArticleID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		p.fail(ctx, entry, err)
		return
	}

	switch entry.Platform {
	case domain.PlatformCMS:
		data, err := p.cms.Publish(ctx, article, meta)
		if err != nil {
			p.fail(ctx, entry, err)
			return
		}
		p.complete(ctx, entry, data)
		if err := p.store.MarkPublished(ctx, article.ID); err != nil {
			p.logger.Warn("mark published failed", "article", article.ID, "error", err)
		}

	case domain.PlatformSocial:
		if p.social == nil {
			p.fail(ctx, entry, errors.New("social sink not configured"))
			return
		}
		caption := meta.SocialCaption
		if caption == "" {
			caption = article.Summary
		}
		data, err := p.social.Publish(ctx, p.settings.SocialImage, caption)
		if err != nil {
			p.fail(ctx, entry, err)
			return
		}
		p.complete(ctx, entry, data)

	default:
		p.fail(ctx, entry, fmt.Errorf("unknown platform %q", entry.Platform))
	}
}

func (p *Pipeline) complete(ctx context.Context, entry domain.PublishQueueEntry, data map[string]any) {
	if err := p.queue.MarkCompleted(ctx, entry.ID, data); err != nil {
		p.logger.Warn("mark completed failed", "entry", entry.ID, "error", err)
		return
	}
	p.logger.Info("delivered", "entry", entry.ID, "platform", entry.Platform, "article", entry.ArticleID)
}

func (p *Pipeline) fail(ctx context.Context, entry domain.PublishQueueEntry, cause error) {
	message := cause.Error()
	if len(message) > errorMessageLimit {
		message = message[:errorMessageLimit]
	}
	if err := p.queue.MarkFailed(ctx, entry.ID, message); err != nil {
		p.logger.Warn("mark failed failed", "entry", entry.ID, "error", err)
	}
	p.logger.Warn("delivery failed", "entry", entry.ID, "platform", entry.Platform, "error", cause)
}

func firstN(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}
