package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"ancile/internal/domain"
)

// The generative service emits an article body followed by a metadata
// block fenced by these literal markers. The grammar below must stay
// stable: it is the wire contract with the prompt templates.
const (
	metadataMarker    = "---METADATA---"
	metadataEndMarker = "---END_METADATA---"

	fallbackTitle   = "Untitled Intelligence Report"
	summaryLimit    = 500
	seoLimit        = 160
	socialLimit     = 300
	defaultCategory = "Geopolitics"
)

var (
	headingExpr  = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	boldExpr     = regexp.MustCompile(`\*\*|__`)
	seoExpr      = regexp.MustCompile(`SEO_DESCRIPTION:\s*(.+)`)
	keywordsExpr = regexp.MustCompile(`KEYWORDS:\s*\[(.+?)\]`)
	entitiesExpr = regexp.MustCompile(`(?s)ENTITIES:\s*(\{.+?\})`)
	categoryExpr = regexp.MustCompile(`CATEGORY:\s*(.+)`)
	socialExpr   = regexp.MustCompile(`(?s)INSTAGRAM_SUMMARY:\s*(.+)`)
	metaKeyExpr  = regexp.MustCompile(`\n[A-Z_]+:`)
)

// ParseResponse extracts the typed analysis record from the service's
// semi-structured response. Every field has a documented fallback;
// parsing never fails.
func ParseResponse(text string) domain.AnalysisResult {
	body, metaBlock, hasMeta := splitMetadata(text)

	title, body := extractTitle(body)
	summary := extractSummary(body)

	result := domain.AnalysisResult{
		Title:     title,
		Content:   body,
		Summary:   summary,
		WordCount: len(strings.Fields(body)),
	}

	if hasMeta {
		result.SEODescription = firstGroup(seoExpr, metaBlock)
		result.Keywords = parseKeywords(metaBlock)
		result.Entities = parseEntities(metaBlock)
		result.Category = parseCategory(metaBlock)
		result.SocialSummary = parseSocialSummary(metaBlock, summary)
		return result
	}

	// No metadata block: derive everything from the summary.
	result.SEODescription = truncate(summary, seoLimit)
	result.Keywords = []string{}
	result.Entities = map[string][]string{}
	result.Category = defaultCategory
	result.SocialSummary = truncate(summary, socialLimit)
	return result
}

// splitMetadata separates the article body from the metadata block. A
// missing marker means the whole response is body.
func splitMetadata(text string) (body, metaBlock string, ok bool) {
	idx := strings.Index(text, metadataMarker)
	if idx < 0 {
		return text, "", false
	}

	body = text[:idx]
	metaBlock = text[idx+len(metadataMarker):]
	if end := strings.Index(metaBlock, metadataEndMarker); end >= 0 {
		metaBlock = metaBlock[:end]
	}
	return body, metaBlock, true
}

// extractTitle takes the first Markdown heading as the title, removing
// that line from the body. Without a heading the first line is the
// title.
func extractTitle(body string) (string, string) {
	if m := headingExpr.FindStringSubmatch(body); m != nil {
		title := strings.TrimSpace(m[1])
		body = strings.Replace(body, m[0], "", 1)
		return title, strings.TrimSpace(body)
	}

	lines := strings.Split(body, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return fallbackTitle, strings.TrimSpace(body)
	}
	title := strings.TrimSpace(lines[0])
	return title, strings.TrimSpace(strings.Join(lines[1:], "\n"))
}

// extractSummary pulls the EXECUTIVE SUMMARY section, ending at the
// next heading or all-caps line, with Markdown bold markers stripped.
// Fallback: the first non-empty paragraph. Truncated to 500 chars.
func extractSummary(body string) string {
	lower := strings.ToLower(body)
	if idx := strings.Index(lower, "executive summary"); idx >= 0 {
		rest := body[idx+len("executive summary"):]

		var collected []string
		for i, line := range strings.Split(rest, "\n") {
			if i > 0 && (isHeadingLine(line) || isAllCapsLine(line)) {
				break
			}
			collected = append(collected, line)
		}

		summary := strings.Join(collected, "\n")
		summary = boldExpr.ReplaceAllString(summary, "")
		summary = strings.TrimSpace(summary)
		if summary != "" {
			return truncate(summary, summaryLimit)
		}
	}

	for _, paragraph := range strings.Split(body, "\n\n") {
		if p := strings.TrimSpace(paragraph); p != "" {
			return truncate(p, summaryLimit)
		}
	}
	return ""
}

func isHeadingLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// isAllCapsLine reports a line that reads as a section header in caps,
// e.g. "KEY JUDGMENTS" or "OUTLOOK:".
func isAllCapsLine(line string) bool {
	line = strings.TrimSpace(line)
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return letters >= 2
}

func parseKeywords(metaBlock string) []string {
	m := keywordsExpr.FindStringSubmatch(metaBlock)
	if m == nil {
		return []string{}
	}
	parts := strings.Split(m[1], ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		keywords = append(keywords, strings.TrimSpace(part))
	}
	return keywords
}

// parseEntities decodes the ENTITIES JSON object. Parse failures yield
// an empty map, never an error.
func parseEntities(metaBlock string) map[string][]string {
	m := entitiesExpr.FindStringSubmatch(metaBlock)
	if m == nil {
		return map[string][]string{}
	}
	var entities map[string][]string
	if err := json.Unmarshal([]byte(m[1]), &entities); err != nil {
		return map[string][]string{}
	}
	if entities == nil {
		return map[string][]string{}
	}
	return entities
}

func parseCategory(metaBlock string) string {
	if m := categoryExpr.FindStringSubmatch(metaBlock); m != nil {
		return strings.TrimSpace(m[1])
	}
	return defaultCategory
}

// parseSocialSummary reads the multi-line INSTAGRAM_SUMMARY value up to
// the next ALL_CAPS: key or end of block.
func parseSocialSummary(metaBlock, summary string) string {
	m := socialExpr.FindStringSubmatch(metaBlock)
	if m == nil {
		return truncate(summary, socialLimit)
	}
	value := m[1]
	if loc := metaKeyExpr.FindStringIndex(value); loc != nil {
		value = value[:loc[0]]
	}
	return strings.TrimSpace(value)
}

func firstGroup(expr *regexp.Regexp, text string) string {
	if m := expr.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
