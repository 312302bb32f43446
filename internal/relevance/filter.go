package relevance

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"ancile/internal/domain"
)

// minBodyLength drops stub items (navigation snippets, empty summaries)
// before they reach analysis.
const minBodyLength = 100

var nonWordExpr = regexp.MustCompile(`[^\w\s]`)

// Filter scores incoming items against per-category keyword sets and
// drops low-relevance, short, or same-title duplicates within a batch.
type Filter struct {
	keywords map[domain.Category][]string
	minScore float64
	logger   *slog.Logger
}

// NewFilter builds a filter from category keyword sets. Categories with
// an empty keyword set always score 0.0.
func NewFilter(keywords map[domain.Category][]string, minScore float64, logger *slog.Logger) *Filter {
	return &Filter{
		keywords: keywords,
		minScore: minScore,
		logger:   logger,
	}
}

// Score returns the normalized keyword-match ratio in [0,1]: the share
// of the item's category keywords appearing (case-insensitive) in its
// title plus body, capped at 1.0.
func (f *Filter) Score(item domain.RawItem) float64 {
	keywords := f.keywords[item.Category]
	if len(keywords) == 0 {
		return 0.0
	}

	text := strings.ToLower(item.Title + " " + item.Body)

	matches := 0
	for _, keyword := range keywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			matches++
		}
	}

	score := float64(matches) / float64(len(keywords))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Deduplicate drops items whose normalized title was already seen in
// this batch. The first occurrence wins; original order is preserved.
// This same-run safeguard is independent of the persistent dedup cache.
func (f *Filter) Deduplicate(items []domain.RawItem) []domain.RawItem {
	seen := map[string]struct{}{}
	unique := make([]domain.RawItem, 0, len(items))

	for _, item := range items {
		normalized := NormalizeTitle(item.Title)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		unique = append(unique, item)
	}

	if removed := len(items) - len(unique); removed > 0 && f.logger != nil {
		f.logger.Debug("removed duplicate titles", "removed", removed, "remaining", len(unique))
	}
	return unique
}

// Apply runs the full filter pass: title dedup, scoring (mutating
// RelevanceScore in place), threshold and minimum-length cuts, and a
// descending-score sort.
func (f *Filter) Apply(items []domain.RawItem) []domain.RawItem {
	items = f.Deduplicate(items)

	filtered := make([]domain.RawItem, 0, len(items))
	for i := range items {
		items[i].RelevanceScore = f.Score(items[i])

		if items[i].RelevanceScore < f.minScore {
			continue
		}
		if len(items[i].Body) < minBodyLength {
			continue
		}
		filtered = append(filtered, items[i])
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].RelevanceScore > filtered[j].RelevanceScore
	})

	if f.logger != nil {
		f.logger.Debug("filtered batch", "in", len(items), "out", len(filtered), "min_score", f.minScore)
	}
	return filtered
}

// NormalizeTitle lowercases a title and strips every non-word,
// non-space character, the key used for same-batch deduplication.
func NormalizeTitle(title string) string {
	return nonWordExpr.ReplaceAllString(strings.ToLower(title), "")
}
