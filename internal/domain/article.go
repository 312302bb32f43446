package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Category is one of the fixed topical domains governing keyword sets
// and analysis framing.
type Category string

const (
	CategoryGeopolitics Category = "geopolitics"
	CategoryDefense     Category = "defense"
	CategoryCyber       Category = "cyber"
	CategoryFinance     Category = "finance"
)

// Categories lists every valid category in a stable order.
func Categories() []Category {
	return []Category{CategoryGeopolitics, CategoryDefense, CategoryCyber, CategoryFinance}
}

// Valid reports whether the category is a member of the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryGeopolitics, CategoryDefense, CategoryCyber, CategoryFinance:
		return true
	}
	return false
}

// ParseCategory converts a raw string into a Category or fails with a
// ValidationError for values outside the closed enumeration.
func ParseCategory(value string) (Category, error) {
	c := Category(value)
	if !c.Valid() {
		return "", &ValidationError{Field: "category", Reason: "unknown category " + value}
	}
	return c, nil
}

// ArticleStatus tracks the publication lifecycle of a persisted article.
// Status only moves forward from draft; it never regresses.
type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "draft"
	StatusPublished ArticleStatus = "published"
	StatusArchived  ArticleStatus = "archived"
	StatusFailed    ArticleStatus = "failed"
)

// Valid reports whether the status is a member of the closed set.
func (s ArticleStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived, StatusFailed:
		return true
	}
	return false
}

// Platform identifies a distribution sink.
type Platform string

const (
	PlatformCMS    Platform = "cms"
	PlatformSocial Platform = "social"
)

// Valid reports whether the platform is a member of the closed set.
func (p Platform) Valid() bool {
	return p == PlatformCMS || p == PlatformSocial
}

// QueueStatus tracks one delivery obligation through the publish queue
// state machine: pending -> processing -> {completed | failed}.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// RawItem is an ephemeral normalized item produced by source adapters.
// It is never persisted directly; the relevance filter mutates
// RelevanceScore in place.
type RawItem struct {
	Title          string
	Body           string
	URL            string
	SourceName     string
	Category       Category
	PublishedAt    time.Time
	RelevanceScore float64
}

// Article is the persisted analysis record. Owned by the store once
// created; queue entries reference it by ID only.
type Article struct {
	ID             int64
	Title          string
	Content        string
	Summary        string
	Category       Category
	SourceURL      string
	SourceName     string
	RawContent     string
	WordCount      int
	RelevanceScore float64
	Status         ArticleStatus
	CreatedAt      time.Time
	PublishedAt    *time.Time
	UpdatedAt      time.Time
}

// ArticleMetadata carries SEO and social enrichment, one record per
// article, deleted together with its parent.
type ArticleMetadata struct {
	ID             int64
	ArticleID      int64
	Tags           []string
	Keywords       []string
	SEODescription string
	Entities       map[string][]string
	SocialCaption  string
	SocialHashtags []string
	CreatedAt      time.Time
}

// PublishQueueEntry records one obligation to deliver one article to
// one platform. RetryCount grows only on failed transitions.
type PublishQueueEntry struct {
	ID            int64
	ArticleID     int64
	Platform      Platform
	Status        QueueStatus
	ScheduledTime *time.Time
	PublishedTime *time.Time
	RetryCount    int
	ErrorMessage  string
	PlatformData  map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DedupRecord marks a source URL and content hash as already turned
// into an article. A match on either dimension means "seen before".
type DedupRecord struct {
	ID          int64
	SourceURL   string
	ContentHash string
	FirstSeen   time.Time
	ProcessedAt *time.Time
	SkipCount   int
}

// AnalysisResult is the typed output of the generative analysis step.
type AnalysisResult struct {
	Title          string
	Content        string
	Summary        string
	SEODescription string
	Keywords       []string
	Entities       map[string][]string
	Category       string
	SocialSummary  string
	WordCount      int
}

// ContentHash returns the hex SHA-256 digest of the body, the key used
// for persistent content deduplication.
func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
