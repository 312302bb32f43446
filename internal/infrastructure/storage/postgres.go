package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ancile/internal/domain"
	"ancile/internal/ports"
)

// psql builds Postgres-flavored queries ($N placeholders).
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store persists articles, metadata, the dedup cache, and the publish
// queue in Postgres. It is the only owner of persisted state.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ ports.ArticleStore = (*Store)(nil)
	_ ports.DedupCache   = (*Store)(nil)
	_ ports.PublishQueue = (*Store)(nil)
)

// Open connects to Postgres and verifies the connection. A failure
// here is run-fatal: the pipeline cannot proceed without its store.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// New wires a sql.DB implementation.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Migrate creates the archive schema when absent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(500) NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			category VARCHAR(32) NOT NULL,
			source_url TEXT,
			source_name VARCHAR(200),
			raw_content TEXT,
			word_count INTEGER,
			relevance_score DOUBLE PRECISION,
			status VARCHAR(16) NOT NULL DEFAULT 'draft',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			published_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status)`,
		`CREATE TABLE IF NOT EXISTS article_metadata (
			id BIGSERIAL PRIMARY KEY,
			article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
			tags TEXT[],
			keywords TEXT[],
			seo_description TEXT,
			entities JSONB,
			social_caption TEXT,
			social_hashtags TEXT[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS publish_queue (
			id BIGSERIAL PRIMARY KEY,
			article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
			platform VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			scheduled_time TIMESTAMPTZ,
			published_time TIMESTAMPTZ,
			retry_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			platform_data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_publish_queue_status ON publish_queue(status)`,
		`CREATE TABLE IF NOT EXISTS source_cache (
			id BIGSERIAL PRIMARY KEY,
			source_url VARCHAR(500) NOT NULL UNIQUE,
			content_hash VARCHAR(64) NOT NULL UNIQUE,
			first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ,
			skip_count INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveArticle validates and inserts a new article in draft status.
func (s *Store) SaveArticle(ctx context.Context, article domain.Article) (domain.Article, error) {
	if err := validateArticle(article); err != nil {
		return domain.Article{}, err
	}
	article.Status = domain.StatusDraft

	query, args, err := psql.Insert("articles").
		Columns("title", "content", "summary", "category", "source_url",
			"source_name", "raw_content", "word_count", "relevance_score", "status").
		Values(article.Title, article.Content, article.Summary, article.Category,
			nullString(article.SourceURL), nullString(article.SourceName),
			nullString(article.RawContent), article.WordCount,
			article.RelevanceScore, article.Status).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build insert: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&article.ID, &article.CreatedAt, &article.UpdatedAt); err != nil {
		return domain.Article{}, fmt.Errorf("insert article: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("article saved", "id", article.ID, "category", article.Category)
	}
	return article, nil
}

// SaveMetadata inserts the metadata record for an article.
func (s *Store) SaveMetadata(ctx context.Context, meta domain.ArticleMetadata) (domain.ArticleMetadata, error) {
	if meta.ArticleID == 0 {
		return domain.ArticleMetadata{}, &domain.ValidationError{Field: "articleId", Reason: "required"}
	}

	entities, err := json.Marshal(meta.Entities)
	if err != nil {
		return domain.ArticleMetadata{}, fmt.Errorf("marshal entities: %w", err)
	}

	query, args, err := psql.Insert("article_metadata").
		Columns("article_id", "tags", "keywords", "seo_description",
			"entities", "social_caption", "social_hashtags").
		Values(meta.ArticleID, pq.Array(meta.Tags), pq.Array(meta.Keywords),
			meta.SEODescription, entities, meta.SocialCaption, pq.Array(meta.SocialHashtags)).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return domain.ArticleMetadata{}, fmt.Errorf("build insert: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&meta.ID, &meta.CreatedAt); err != nil {
		return domain.ArticleMetadata{}, fmt.Errorf("insert metadata: %w", err)
	}
	return meta, nil
}

// GetArticle loads one article by id.
func (s *Store) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	query, args, err := psql.Select("id", "title", "content", "summary", "category",
		"source_url", "source_name", "raw_content", "word_count",
		"relevance_score", "status", "created_at", "published_at", "updated_at").
		From("articles").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build select: %w", err)
	}

	var (
		article    domain.Article
		sourceURL  sql.NullString
		sourceName sql.NullString
		rawContent sql.NullString
		summary    sql.NullString
		wordCount  sql.NullInt64
		score      sql.NullFloat64
		published  sql.NullTime
	)

	row := s.db.QueryRowContext(ctx, query, args...)
	err = row.Scan(&article.ID, &article.Title, &article.Content, &summary,
		&article.Category, &sourceURL, &sourceName, &rawContent, &wordCount,
		&score, &article.Status, &article.CreatedAt, &published, &article.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Article{}, fmt.Errorf("article %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("select article: %w", err)
	}

	article.Summary = summary.String
	article.SourceURL = sourceURL.String
	article.SourceName = sourceName.String
	article.RawContent = rawContent.String
	article.WordCount = int(wordCount.Int64)
	article.RelevanceScore = score.Float64
	if published.Valid {
		t := published.Time
		article.PublishedAt = &t
	}
	return article, nil
}

// GetMetadata loads the metadata record for an article.
func (s *Store) GetMetadata(ctx context.Context, articleID int64) (domain.ArticleMetadata, error) {
	query, args, err := psql.Select("id", "article_id", "tags", "keywords",
		"seo_description", "entities", "social_caption", "social_hashtags", "created_at").
		From("article_metadata").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.ArticleMetadata{}, fmt.Errorf("build select: %w", err)
	}

	var (
		meta     domain.ArticleMetadata
		seo      sql.NullString
		caption  sql.NullString
		entities []byte
	)

	row := s.db.QueryRowContext(ctx, query, args...)
	err = row.Scan(&meta.ID, &meta.ArticleID, pq.Array(&meta.Tags), pq.Array(&meta.Keywords),
		&seo, &entities, &caption, pq.Array(&meta.SocialHashtags), &meta.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.ArticleMetadata{}, fmt.Errorf("metadata for article %d: %w", articleID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ArticleMetadata{}, fmt.Errorf("select metadata: %w", err)
	}

	meta.SEODescription = seo.String
	meta.SocialCaption = caption.String
	meta.Entities = map[string][]string{}
	if len(entities) > 0 {
		// A malformed stored blob degrades to an empty map.
		_ = json.Unmarshal(entities, &meta.Entities)
	}
	return meta, nil
}

// MarkPublished moves a draft article to published. Terminal statuses
// are left untouched; status never regresses.
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	query, args, err := psql.Update("articles").
		Set("status", domain.StatusPublished).
		Set("published_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": domain.StatusDraft}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetArticle(ctx, id); getErr != nil {
			return getErr
		}
		// Exists but is no longer draft; nothing to do.
	}
	return nil
}

// IsDuplicate reports whether the URL or the body's content hash was
// already processed. Checked before the expensive analysis call.
func (s *Store) IsDuplicate(ctx context.Context, url, body string) (bool, error) {
	query, args, err := psql.Select("1").
		From("source_cache").
		Where(sq.Or{
			sq.Eq{"source_url": url},
			sq.Eq{"content_hash": domain.ContentHash(body)},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query source cache: %w", err)
	}
	return true, nil
}

// Record inserts a dedup record for a persisted article. Called only
// after the article committed, never speculatively.
func (s *Store) Record(ctx context.Context, url, body string) error {
	query, args, err := psql.Insert("source_cache").
		Columns("source_url", "content_hash", "processed_at").
		Values(url, domain.ContentHash(body), sq.Expr("NOW()")).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert source cache: %w", err)
	}
	return nil
}

// MarkSkipped bumps the skip counter when a duplicate is dropped.
func (s *Store) MarkSkipped(ctx context.Context, url string) error {
	query, args, err := psql.Update("source_cache").
		Set("skip_count", sq.Expr("skip_count + 1")).
		Where(sq.Eq{"source_url": url}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update source cache: %w", err)
	}
	return nil
}

// Enqueue creates a pending delivery obligation.
func (s *Store) Enqueue(ctx context.Context, articleID int64, platform domain.Platform, scheduled *time.Time) (domain.PublishQueueEntry, error) {
	if !platform.Valid() {
		return domain.PublishQueueEntry{}, &domain.ValidationError{Field: "platform", Reason: "unknown platform " + string(platform)}
	}

	entry := domain.PublishQueueEntry{
		ArticleID:     articleID,
		Platform:      platform,
		Status:        domain.QueuePending,
		ScheduledTime: scheduled,
	}

	query, args, err := psql.Insert("publish_queue").
		Columns("article_id", "platform", "status", "scheduled_time").
		Values(articleID, platform, domain.QueuePending, scheduled).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return domain.PublishQueueEntry{}, fmt.Errorf("build insert: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return domain.PublishQueueEntry{}, fmt.Errorf("insert queue entry: %w", err)
	}
	return entry, nil
}

// Pending returns pending entries in creation order.
func (s *Store) Pending(ctx context.Context) ([]domain.PublishQueueEntry, error) {
	query, args, err := psql.Select("id", "article_id", "platform", "status",
		"scheduled_time", "published_time", "retry_count", "error_message",
		"platform_data", "created_at", "updated_at").
		From("publish_queue").
		Where(sq.Eq{"status": domain.QueuePending}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	var entries []domain.PublishQueueEntry
	for rows.Next() {
		var (
			entry     domain.PublishQueueEntry
			scheduled sql.NullTime
			published sql.NullTime
			message   sql.NullString
			data      []byte
		)
		err := rows.Scan(&entry.ID, &entry.ArticleID, &entry.Platform, &entry.Status,
			&scheduled, &published, &entry.RetryCount, &message, &data,
			&entry.CreatedAt, &entry.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		if scheduled.Valid {
			t := scheduled.Time
			entry.ScheduledTime = &t
		}
		if published.Valid {
			t := published.Time
			entry.PublishedTime = &t
		}
		entry.ErrorMessage = message.String
		if len(data) > 0 {
			_ = json.Unmarshal(data, &entry.PlatformData)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkProcessing claims a pending entry. The status predicate doubles
// as a compare-and-set so a concurrent drain cannot claim it twice.
func (s *Store) MarkProcessing(ctx context.Context, id int64) error {
	return s.transition(ctx, id, domain.QueuePending, map[string]any{
		"status": domain.QueueProcessing,
	})
}

// MarkCompleted finishes a processing entry, recording the delivery
// time and the sink's opaque platform data.
func (s *Store) MarkCompleted(ctx context.Context, id int64, platformData map[string]any) error {
	data, err := json.Marshal(platformData)
	if err != nil {
		return fmt.Errorf("marshal platform data: %w", err)
	}
	return s.transition(ctx, id, domain.QueueProcessing, map[string]any{
		"status":         domain.QueueCompleted,
		"published_time": sq.Expr("NOW()"),
		"platform_data":  data,
	})
}

// MarkFailed fails a processing entry, incrementing retry_count and
// recording the error message for operators.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	return s.transition(ctx, id, domain.QueueProcessing, map[string]any{
		"status":        domain.QueueFailed,
		"retry_count":   sq.Expr("retry_count + 1"),
		"error_message": message,
	})
}

func (s *Store) transition(ctx context.Context, id int64, from domain.QueueStatus, sets map[string]any) error {
	builder := psql.Update("publish_queue").
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": from})
	for column, value := range sets {
		builder = builder.Set(column, value)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update queue entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue entry %d in status %s: %w", id, from, domain.ErrNotFound)
	}
	return nil
}

func validateArticle(article domain.Article) error {
	if article.Title == "" {
		return &domain.ValidationError{Field: "title", Reason: "required"}
	}
	if article.Content == "" {
		return &domain.ValidationError{Field: "content", Reason: "required"}
	}
	if !article.Category.Valid() {
		return &domain.ValidationError{Field: "category", Reason: "unknown category " + string(article.Category)}
	}
	return nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
