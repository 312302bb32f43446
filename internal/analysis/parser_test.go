package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `# Strategic Implications of the New Export Controls

EXECUTIVE SUMMARY

**The latest export controls** reshape semiconductor supply chains and signal a durable shift in technology policy. Allied coordination remains the decisive variable.

KEY JUDGMENTS

The controls will bind within two quarters. Compliance costs fall unevenly across fabs.

Further analysis of secondary effects follows in the outlook section.

---METADATA---
SEO_DESCRIPTION: Export controls reshape semiconductor supply chains and allied technology policy.
KEYWORDS: [export controls, semiconductors, supply chain, technology policy]
ENTITIES: {"countries": ["United States", "Netherlands"], "organizations": ["ASML"], "technologies": ["EUV lithography"]}
CATEGORY: Geopolitics
INSTAGRAM_SUMMARY: New export controls hit chip supply chains.
Allied coordination decides enforcement.
Compliance costs land unevenly.
---END_METADATA---`

func TestParseResponseFull(t *testing.T) {
	t.Parallel()

	result := ParseResponse(sampleResponse)

	assert.Equal(t, "Strategic Implications of the New Export Controls", result.Title)
	assert.NotContains(t, result.Content, "# Strategic Implications")
	assert.NotContains(t, result.Content, "---METADATA---")

	require.NotEmpty(t, result.Summary)
	assert.True(t, strings.HasPrefix(result.Summary, "The latest export controls"), "summary: %q", result.Summary)
	assert.NotContains(t, result.Summary, "**", "bold markers must be stripped")
	assert.NotContains(t, result.Summary, "KEY JUDGMENTS", "summary must stop at the next section")

	assert.Equal(t, "Export controls reshape semiconductor supply chains and allied technology policy.", result.SEODescription)
	assert.Equal(t, []string{"export controls", "semiconductors", "supply chain", "technology policy"}, result.Keywords)
	assert.Equal(t, []string{"United States", "Netherlands"}, result.Entities["countries"])
	assert.Equal(t, "Geopolitics", result.Category)
	assert.Greater(t, result.WordCount, 0)
}

func TestParseResponseMultiLineSocialSummary(t *testing.T) {
	t.Parallel()

	result := ParseResponse(sampleResponse)

	assert.Contains(t, result.SocialSummary, "New export controls hit chip supply chains.")
	assert.Contains(t, result.SocialSummary, "Compliance costs land unevenly.")
	assert.NotContains(t, result.SocialSummary, "END_METADATA")
}

func TestParseResponseSocialKeyCut(t *testing.T) {
	t.Parallel()

	text := `Body paragraph with enough words to count.

---METADATA---
INSTAGRAM_SUMMARY: First caption line.
Second caption line.
CATEGORY: Cyber
---END_METADATA---`

	result := ParseResponse(text)
	assert.Equal(t, "First caption line.\nSecond caption line.", result.SocialSummary)
	assert.Equal(t, "Cyber", result.Category)
}

func TestParseResponseNoMetadata(t *testing.T) {
	t.Parallel()

	text := `# Quiet Title

First paragraph of ordinary prose without any summary section.

Second paragraph continues the argument.`

	result := ParseResponse(text)

	assert.Equal(t, "Quiet Title", result.Title)
	assert.Equal(t, "First paragraph of ordinary prose without any summary section.", result.Summary)
	assert.Equal(t, truncate(result.Summary, seoLimit), result.SEODescription)
	assert.Equal(t, truncate(result.Summary, socialLimit), result.SocialSummary)
	assert.Empty(t, result.Keywords)
	assert.Empty(t, result.Entities)
	assert.Equal(t, defaultCategory, result.Category)
}

func TestParseResponseTitleWithoutHeading(t *testing.T) {
	t.Parallel()

	result := ParseResponse("Plain first line title\nrest of the body here")
	assert.Equal(t, "Plain first line title", result.Title)
	assert.Equal(t, "rest of the body here", result.Content)
}

func TestParseResponseEmpty(t *testing.T) {
	t.Parallel()

	result := ParseResponse("")
	assert.Equal(t, fallbackTitle, result.Title)
	assert.Zero(t, result.WordCount)
}

func TestParseResponseBadEntitiesJSON(t *testing.T) {
	t.Parallel()

	text := `Body text long enough.

---METADATA---
ENTITIES: {"countries": not-json}
---END_METADATA---`

	result := ParseResponse(text)
	require.NotNil(t, result.Entities)
	assert.Empty(t, result.Entities)
}

func TestParseResponseSummaryTruncation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("overlong sentence fragment ", 40)
	text := "# Title\n\nEXECUTIVE SUMMARY\n\n" + long

	result := ParseResponse(text)
	assert.LessOrEqual(t, len([]rune(result.Summary)), summaryLimit)
}

func TestParseResponseWordCount(t *testing.T) {
	t.Parallel()

	result := ParseResponse("# T\n\none two three four five")
	assert.Equal(t, 5, result.WordCount)
}
