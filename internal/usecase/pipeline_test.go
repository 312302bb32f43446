package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ancile/internal/domain"
	"ancile/internal/relevance"
)

// ---- fakes -----------------------------------------------------------------

type fakeSource struct {
	items []domain.RawItem
	err   error
}

func (f *fakeSource) Fetch(context.Context, time.Duration) ([]domain.RawItem, error) {
	return f.items, f.err
}

type fakeAnalyzer struct {
	results map[string]domain.AnalysisResult
	errs    map[string]error
	calls   []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, _ domain.Category, sourceURL, _ string) (domain.AnalysisResult, error) {
	f.calls = append(f.calls, sourceURL)
	if err, ok := f.errs[sourceURL]; ok {
		return domain.AnalysisResult{}, err
	}
	if result, ok := f.results[sourceURL]; ok {
		return result, nil
	}
	return domain.AnalysisResult{Title: "Generated", Content: "body", Summary: "summary", WordCount: 2000}, nil
}

func (f *fakeAnalyzer) SocialCaption(_ context.Context, article domain.Article, _ domain.ArticleMetadata) (string, error) {
	return "caption for " + article.Title, nil
}

type fakeStore struct {
	nextID    int64
	articles  map[int64]domain.Article
	metadata  map[int64]domain.ArticleMetadata
	published []int64
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		articles: map[int64]domain.Article{},
		metadata: map[int64]domain.ArticleMetadata{},
	}
}

func (f *fakeStore) SaveArticle(_ context.Context, article domain.Article) (domain.Article, error) {
	if f.saveErr != nil {
		return domain.Article{}, f.saveErr
	}
	f.nextID++
	article.ID = f.nextID
	article.Status = domain.StatusDraft
	f.articles[article.ID] = article
	return article, nil
}

func (f *fakeStore) SaveMetadata(_ context.Context, meta domain.ArticleMetadata) (domain.ArticleMetadata, error) {
	meta.ID = meta.ArticleID
	f.metadata[meta.ArticleID] = meta
	return meta, nil
}

func (f *fakeStore) GetArticle(_ context.Context, id int64) (domain.Article, error) {
	article, ok := f.articles[id]
	if !ok {
		return domain.Article{}, fmt.Errorf("article %d: %w", id, domain.ErrNotFound)
	}
	return article, nil
}

func (f *fakeStore) GetMetadata(_ context.Context, articleID int64) (domain.ArticleMetadata, error) {
	meta, ok := f.metadata[articleID]
	if !ok {
		return domain.ArticleMetadata{}, fmt.Errorf("metadata for article %d: %w", articleID, domain.ErrNotFound)
	}
	return meta, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, id int64) error {
	article, ok := f.articles[id]
	if !ok {
		return domain.ErrNotFound
	}
	article.Status = domain.StatusPublished
	f.articles[id] = article
	f.published = append(f.published, id)
	return nil
}

type fakeDedup struct {
	known   map[string]bool
	records []string
	skipped []string
	checkEr error
}

func newFakeDedup(known ...string) *fakeDedup {
	d := &fakeDedup{known: map[string]bool{}}
	for _, url := range known {
		d.known[url] = true
	}
	return d
}

func (f *fakeDedup) IsDuplicate(_ context.Context, url, _ string) (bool, error) {
	if f.checkEr != nil {
		return false, f.checkEr
	}
	return f.known[url], nil
}

func (f *fakeDedup) Record(_ context.Context, url, _ string) error {
	f.records = append(f.records, url)
	f.known[url] = true
	return nil
}

func (f *fakeDedup) MarkSkipped(_ context.Context, url string) error {
	f.skipped = append(f.skipped, url)
	return nil
}

type fakeQueue struct {
	nextID  int64
	entries map[int64]*domain.PublishQueueEntry
	order   []int64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{entries: map[int64]*domain.PublishQueueEntry{}}
}

func (f *fakeQueue) Enqueue(_ context.Context, articleID int64, platform domain.Platform, scheduled *time.Time) (domain.PublishQueueEntry, error) {
	f.nextID++
	entry := &domain.PublishQueueEntry{
		ID:            f.nextID,
		ArticleID:     articleID,
		Platform:      platform,
		Status:        domain.QueuePending,
		ScheduledTime: scheduled,
	}
	f.entries[entry.ID] = entry
	f.order = append(f.order, entry.ID)
	return *entry, nil
}

func (f *fakeQueue) Pending(context.Context) ([]domain.PublishQueueEntry, error) {
	var pending []domain.PublishQueueEntry
	for _, id := range f.order {
		if f.entries[id].Status == domain.QueuePending {
			pending = append(pending, *f.entries[id])
		}
	}
	return pending, nil
}

func (f *fakeQueue) MarkProcessing(_ context.Context, id int64) error {
	return f.transition(id, domain.QueuePending, domain.QueueProcessing, "", nil)
}

func (f *fakeQueue) MarkCompleted(_ context.Context, id int64, platformData map[string]any) error {
	return f.transition(id, domain.QueueProcessing, domain.QueueCompleted, "", platformData)
}

func (f *fakeQueue) MarkFailed(_ context.Context, id int64, message string) error {
	if err := f.transition(id, domain.QueueProcessing, domain.QueueFailed, message, nil); err != nil {
		return err
	}
	f.entries[id].RetryCount++
	return nil
}

func (f *fakeQueue) transition(id int64, from, to domain.QueueStatus, message string, data map[string]any) error {
	entry, ok := f.entries[id]
	if !ok || entry.Status != from {
		return domain.ErrNotFound
	}
	entry.Status = to
	entry.ErrorMessage = message
	if data != nil {
		entry.PlatformData = data
	}
	return nil
}

type fakeCMS struct {
	published []int64
	err       error
}

func (f *fakeCMS) Publish(_ context.Context, article domain.Article, _ domain.ArticleMetadata) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, article.ID)
	return map[string]any{"remote_id": article.ID}, nil
}

type fakeSocial struct {
	captions []string
	err      error
}

func (f *fakeSocial) Publish(_ context.Context, _, caption string) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.captions = append(f.captions, caption)
	return map[string]any{"post_id": "p1"}, nil
}

// ---- helpers ---------------------------------------------------------------

func testItem(url string) domain.RawItem {
	return domain.RawItem{
		Title:    "Ransomware breach zero-day malware " + url,
		Body:     "ransomware breach zero-day malware " + strings.Repeat("context ", 20),
		URL:      url,
		Category: domain.CategoryCyber,
	}
}

func testFilter() *relevance.Filter {
	return relevance.NewFilter(map[domain.Category][]string{
		domain.CategoryCyber: {"malware", "ransomware", "breach", "zero-day"},
	}, 0.5, nil)
}

type fixture struct {
	pipeline *Pipeline
	store    *fakeStore
	dedup    *fakeDedup
	queue    *fakeQueue
	cms      *fakeCMS
	social   *fakeSocial
	analyzer *fakeAnalyzer
}

func newFixture(src *fakeSource, settings Settings) *fixture {
	f := &fixture{
		store:    newFakeStore(),
		dedup:    newFakeDedup(),
		queue:    newFakeQueue(),
		cms:      &fakeCMS{},
		social:   &fakeSocial{},
		analyzer: &fakeAnalyzer{results: map[string]domain.AnalysisResult{}, errs: map[string]error{}},
	}
	f.pipeline = NewPipeline(PipelineDeps{
		Source:   src,
		Filter:   testFilter(),
		Analyzer: f.analyzer,
		Store:    f.store,
		Dedup:    f.dedup,
		Queue:    f.queue,
		CMS:      f.cms,
		Social:   f.social,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, settings)
	return f
}

func defaultSettings() Settings {
	return Settings{
		Lookback:    24 * time.Hour,
		MaxArticles: 5,
		MinWords:    1500,
	}
}

// ---- tests -----------------------------------------------------------------

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: []domain.RawItem{testItem("https://src.example/a")}}
	f := newFixture(src, defaultSettings())

	summary, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Skipped)

	require.Len(t, f.store.articles, 1)
	article := f.store.articles[1]
	assert.Equal(t, domain.StatusPublished, article.Status)
	assert.Equal(t, []string{"https://src.example/a"}, f.dedup.records)

	// CMS entry completed, article marked published.
	require.Len(t, f.queue.entries, 1)
	entry := f.queue.entries[1]
	assert.Equal(t, domain.QueueCompleted, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, []int64{1}, f.cms.published)
}

func TestRunSkipsDuplicates(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: []domain.RawItem{testItem("https://src.example/dup")}}
	f := newFixture(src, defaultSettings())
	f.dedup.known["https://src.example/dup"] = true

	summary, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, f.store.articles)
	assert.Empty(t, f.analyzer.calls, "duplicates must never reach analysis")
	assert.Equal(t, []string{"https://src.example/dup"}, f.dedup.skipped)
}

func TestRunGenerationFailureLeavesNoTrace(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: []domain.RawItem{
		testItem("https://src.example/bad"),
		testItem("https://src.example/good"),
	}}
	f := newFixture(src, defaultSettings())
	f.analyzer.errs["https://src.example/bad"] = &domain.GenerationError{Err: errors.New("service down")}

	summary, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)

	// The failed item left no article and no dedup record, so a later
	// run can retry it.
	require.Len(t, f.store.articles, 1)
	assert.Equal(t, "https://src.example/good", f.store.articles[1].SourceURL)
	assert.NotContains(t, f.dedup.records, "https://src.example/bad")
}

func TestRunSkipsShortAnalyses(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: []domain.RawItem{testItem("https://src.example/short")}}
	f := newFixture(src, defaultSettings())
	f.analyzer.results["https://src.example/short"] = domain.AnalysisResult{
		Title: "Short", Content: "tiny", Summary: "s", WordCount: 300,
	}

	summary, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, f.store.articles)
	assert.Empty(t, f.dedup.records)
}

func TestRunStoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: []domain.RawItem{testItem("https://src.example/a")}}
	f := newFixture(src, defaultSettings())
	f.store.saveErr = errors.New("connection refused")

	_, err := f.pipeline.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save article")
}

func TestRunDryRun(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: []domain.RawItem{testItem("https://src.example/a")}}
	f := newFixture(src, defaultSettings())

	summary, err := f.pipeline.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	require.Len(t, f.store.articles, 1, "dry run still persists")
	assert.Empty(t, f.queue.entries, "dry run must not enqueue")
	assert.Empty(t, f.cms.published, "dry run must not publish")
}

func TestRunMaxArticlesOverride(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: []domain.RawItem{
		testItem("https://src.example/1"),
		testItem("https://src.example/2"),
		testItem("https://src.example/3"),
	}}
	f := newFixture(src, defaultSettings())

	summary, err := f.pipeline.Run(context.Background(), Options{MaxArticles: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Len(t, f.store.articles, 2)
}

func TestRunSocialEnabled(t *testing.T) {
	t.Parallel()

	settings := defaultSettings()
	settings.SocialEnabled = true
	settings.SocialImage = "https://img.example/default.png"

	src := &fakeSource{items: []domain.RawItem{testItem("https://src.example/a")}}
	f := newFixture(src, settings)

	summary, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	// One CMS and one social entry, both delivered.
	require.Len(t, f.queue.entries, 2)
	for _, entry := range f.queue.entries {
		assert.Equal(t, domain.QueueCompleted, entry.Status)
	}
	require.Len(t, f.social.captions, 1)
	assert.Contains(t, f.social.captions[0], "caption for")
}

func TestDrainFailureRecordsRetry(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: []domain.RawItem{testItem("https://src.example/a")}}
	f := newFixture(src, defaultSettings())
	f.cms.err = &domain.PublishError{Platform: domain.PlatformCMS, Err: errors.New("cms 502")}

	summary, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err, "delivery failure must not abort the run")
	assert.Equal(t, 1, summary.Processed)

	require.Len(t, f.queue.entries, 1)
	entry := f.queue.entries[1]
	assert.Equal(t, domain.QueueFailed, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	assert.Contains(t, entry.ErrorMessage, "cms 502")

	// The article stays draft when delivery fails.
	assert.Equal(t, domain.StatusDraft, f.store.articles[1].Status)
}

func TestDrainOneFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	settings := defaultSettings()
	settings.SocialEnabled = true

	src := &fakeSource{items: []domain.RawItem{testItem("https://src.example/a")}}
	f := newFixture(src, settings)
	f.cms.err = &domain.PublishError{Platform: domain.PlatformCMS, Err: errors.New("cms down")}

	_, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	var failed, completed int
	for _, entry := range f.queue.entries {
		switch entry.Status {
		case domain.QueueFailed:
			failed++
		case domain.QueueCompleted:
			completed++
		}
	}
	assert.Equal(t, 1, failed, "cms entry fails")
	assert.Equal(t, 1, completed, "social entry still delivers")
}

func TestRunBatchTitleDedup(t *testing.T) {
	t.Parallel()

	first := testItem("https://a.example/1")
	second := testItem("https://b.example/2")
	second.Title = strings.ToUpper(first.Title) + "!"

	src := &fakeSource{items: []domain.RawItem{first, second}}
	f := newFixture(src, defaultSettings())

	summary, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	require.Len(t, f.store.articles, 1)
	assert.Equal(t, "https://a.example/1", f.store.articles[1].SourceURL, "first occurrence wins")
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: &domain.SourceUnavailableError{Source: "rss", Err: errors.New("all feeds failed")}}
	f := newFixture(src, defaultSettings())

	_, err := f.pipeline.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch sources")
}

func TestRunEmptyBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeSource{}, defaultSettings())

	summary, err := f.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, summary.Skipped)
}
