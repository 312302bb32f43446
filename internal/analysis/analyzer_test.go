package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ancile/internal/domain"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, _, prompt string, _ int, _ float64) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestAnalyzeParsesResponse(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: sampleResponse}
	a := NewAnalyzer(gen, "", 8000, 0.4, nil)

	result, err := a.Analyze(context.Background(), "raw body", domain.CategoryGeopolitics, "https://src.example/a", "Example Wire")
	require.NoError(t, err)

	assert.Equal(t, "Strategic Implications of the New Export Controls", result.Title)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "GEOPOLITICS")
	assert.Contains(t, gen.prompts[0], "Example Wire")
	assert.Contains(t, gen.prompts[0], "raw body")
}

func TestAnalyzeWrapsGenerationError(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("service down")}
	a := NewAnalyzer(gen, "", 8000, 0.4, nil)

	_, err := a.Analyze(context.Background(), "raw body", domain.CategoryCyber, "", "")
	require.Error(t, err)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
}

func TestSocialCaptionAppendsSource(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: "Point one.\nPoint two.\n\n#Tag"}
	a := NewAnalyzer(gen, "", 8000, 0.4, nil)

	article := domain.Article{Title: "Title", Category: domain.CategoryCyber, SourceURL: "https://src.example/a"}
	caption, err := a.SocialCaption(context.Background(), article, domain.ArticleMetadata{SocialCaption: "summary"})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(caption, "Source: https://src.example/a"), "caption: %q", caption)
}

func TestSocialCaptionFallback(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("service down")}
	a := NewAnalyzer(gen, "", 8000, 0.4, nil)

	article := domain.Article{Title: "Quarterly Threat Review", Category: domain.CategoryCyber}
	caption, err := a.SocialCaption(context.Background(), article, domain.ArticleMetadata{})
	require.NoError(t, err)

	assert.Contains(t, caption, "Quarterly Threat Review")
	assert.Contains(t, caption, "#IntelligenceAnalysis")
}

func TestHashtagsIncludeCategory(t *testing.T) {
	t.Parallel()

	tags := Hashtags(domain.CategoryDefense)
	assert.Contains(t, tags, "defense")
	assert.Contains(t, tags, "OSINT")
}
