package relevance

import (
	"fmt"
	"regexp"
	"strings"
)

// prohibitedTerms are sensational words that disqualify text from the
// institutional register.
var prohibitedTerms = []string{
	"shocking", "amazing", "incredible", "unbelievable", "stunning",
	"mind-blowing", "crazy", "insane", "epic", "game-changer",
}

var informalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bOMG\b`),
	regexp.MustCompile(`(?i)\bwow\b`),
	regexp.MustCompile(`!!!`),
}

// ValidateTone reports every prohibited term or informal pattern found
// in the text. An empty slice means the text passes.
func ValidateTone(text string) []string {
	var issues []string
	lower := strings.ToLower(text)

	for _, term := range prohibitedTerms {
		if strings.Contains(lower, term) {
			issues = append(issues, fmt.Sprintf("prohibited term: %q", term))
		}
	}

	for _, pattern := range informalPatterns {
		if pattern.MatchString(text) {
			issues = append(issues, fmt.Sprintf("informal pattern: %s", pattern.String()))
		}
	}

	return issues
}
