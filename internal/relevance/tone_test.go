package relevance

import "testing"

func TestValidateTone(t *testing.T) {
	t.Parallel()

	if issues := ValidateTone("The fiscal outlook remains stable amid policy uncertainty."); len(issues) != 0 {
		t.Fatalf("expected clean text to pass, got %v", issues)
	}

	issues := ValidateTone("OMG this shocking development is incredible!!!")
	if len(issues) < 3 {
		t.Fatalf("expected prohibited terms and informal patterns flagged, got %v", issues)
	}
}
