package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ancile/internal/domain"
	"ancile/internal/ports"
)

// DefaultSystemPrompt frames the generative service as an institutional
// analyst and pins down the response grammar ParseResponse expects.
const DefaultSystemPrompt = `You are a strategic intelligence analyst writing long-form analysis for an institutional audience.

Write a complete intelligence analysis of the supplied raw content:
- Institutional, data-driven register. No sensationalism, no emojis.
- Open with a "# " Markdown title, then an EXECUTIVE SUMMARY section.
- Target length 1500-3000 words.

After the article, append a metadata block fenced by ---METADATA--- and
---END_METADATA--- containing these line-prefixed fields:
SEO_DESCRIPTION: <one line, max 160 chars>
KEYWORDS: [comma, separated, list]
ENTITIES: {"countries": [...], "organizations": [...], "technologies": [...]}
CATEGORY: <one of Geopolitics, Defense, Cyber, Finance>
INSTAGRAM_SUMMARY: <3-5 bullet points, may span lines>`

const captionMaxTokens = 800

// Analyzer turns raw source content into a structured analysis record
// by delegating text generation to the configured service.
type Analyzer struct {
	generator    ports.Generator
	systemPrompt string
	maxTokens    int
	temperature  float64
	logger       *slog.Logger
}

var _ ports.Analyzer = (*Analyzer)(nil)

// NewAnalyzer wires a Generator. An empty systemPrompt selects the
// default institutional-writer instruction.
func NewAnalyzer(generator ports.Generator, systemPrompt string, maxTokens int, temperature float64, logger *slog.Logger) *Analyzer {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Analyzer{
		generator:    generator,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		temperature:  temperature,
		logger:       logger,
	}
}

// Analyze generates and parses one analysis. A failed service call
// surfaces as a GenerationError; the caller skips the item without
// persisting anything.
func (a *Analyzer) Analyze(ctx context.Context, body string, category domain.Category, sourceURL, sourceName string) (domain.AnalysisResult, error) {
	prompt := buildUserPrompt(body, category, sourceURL, sourceName)

	text, err := a.generator.Generate(ctx, a.systemPrompt, prompt, a.maxTokens, a.temperature)
	if err != nil {
		return domain.AnalysisResult{}, &domain.GenerationError{Err: err}
	}

	result := ParseResponse(text)
	if a.logger != nil {
		a.logger.Debug("analysis generated", "category", category, "words", result.WordCount)
	}
	return result, nil
}

// SocialCaption produces a bullet-point caption with a hashtag block
// for the social platform. A failed generation falls back to a static
// caption so posting never blocks on the service.
func (a *Analyzer) SocialCaption(ctx context.Context, article domain.Article, meta domain.ArticleMetadata) (string, error) {
	summary := meta.SocialCaption
	if summary == "" {
		summary = article.Summary
	}

	prompt := fmt.Sprintf(`Create a professional social media caption for this intelligence analysis.

Requirements:
- 3-5 bullet points using the bullet symbol
- Data-driven, objective, technical tone
- No emojis, no sensationalism, no informal language
- End with 12-15 professional hashtags

Article Title: %s
Category: %s
Summary: %s`, article.Title, article.Category, truncate(summary, summaryLimit))

	caption, err := a.generator.Generate(ctx, a.systemPrompt, prompt, captionMaxTokens, 0.3)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("caption generation failed, using fallback", "error", err)
		}
		return fallbackCaption(article), nil
	}

	caption = strings.TrimSpace(caption)
	if article.SourceURL != "" {
		caption += "\n\nSource: " + article.SourceURL
	}
	return caption, nil
}

func buildUserPrompt(body string, category domain.Category, sourceURL, sourceName string) string {
	if sourceName == "" {
		sourceName = "Unknown"
	}
	if sourceURL == "" {
		sourceURL = "N/A"
	}

	return fmt.Sprintf(`Category: %s
Source: %s
URL: %s

Raw Content:
%s

---

Generate a complete intelligence analysis following the institutional writing guidelines.
Ensure the article is between 1500-3000 words and includes all required metadata.`,
		strings.ToUpper(string(category)), sourceName, sourceURL, body)
}

func fallbackCaption(article domain.Article) string {
	return fmt.Sprintf(`%s

Category: %s
Analysis available now

#IntelligenceAnalysis #%s #GlobalSecurity #OSINT #ThreatIntelligence #StrategicAnalysis`,
		article.Title, strings.ToUpper(string(article.Category)), article.Category)
}

// Hashtags returns the default hashtag set stored alongside a caption.
func Hashtags(category domain.Category) []string {
	return []string{
		string(category), "IntelligenceAnalysis", "Geopolitics",
		"GlobalSecurity", "StrategicAnalysis", "OSINT", "ThreatIntelligence",
	}
}
