package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func patternInput(docType, text string) *Input {
	return &Input{DocType: docType, PlainText: text}
}

func findCandidate(candidates []Candidate, name string) *Candidate {
	for i := range candidates {
		if candidates[i].Name == name {
			return &candidates[i]
		}
	}
	return nil
}

func TestPatternExtractorK1Labels(t *testing.T) {
	p := NewPatternExtractor("")

	text := "Schedule K-1 Form 1065 Partner's name: Fred Farkouh Partner's address 123 Main St"
	candidates, err := p.Extract(context.Background(), patternInput("K-1", text))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	c := findCandidate(candidates, "Fred Farkouh")
	if c == nil {
		t.Fatalf("missing candidate, got %+v", candidates)
	}
	if c.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75 for specific label", c.Confidence)
	}
	if c.Source != SourcePattern {
		t.Errorf("source = %q", c.Source)
	}
}

func TestPatternExtractorW2AndGenericFallback(t *testing.T) {
	text := "Form W-2 Wage and Tax Statement Employee's name: Mary Johnson Employer EIN 12-3456789"

	p := NewPatternExtractor("")

	// Known form type uses its own vocabulary.
	candidates, err := p.Extract(context.Background(), patternInput("W-2", text))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if findCandidate(candidates, "Mary Johnson") == nil {
		t.Errorf("W-2 vocabulary missed employee name, got %+v", candidates)
	}

	// Unknown form type falls back to the generic vocabulary.
	generic, err := p.Extract(context.Background(), patternInput("Unknown", "Client name: Mary Johnson"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if findCandidate(generic, "Mary Johnson") == nil {
		t.Errorf("generic fallback missed name, got %+v", generic)
	}
}

func TestPatternExtractorRejectsImplausibleMatches(t *testing.T) {
	p := NewPatternExtractor("")

	// Name-shaped but made of financial vocabulary.
	text := "Recipient: Total Amount Recipient: Federal Income"
	candidates, err := p.Extract(context.Background(), patternInput("1099", text))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates, got %+v", candidates)
	}
}

func TestPatternExtractorDeduplicates(t *testing.T) {
	p := NewPatternExtractor("")

	text := "Taxpayer's name: Jane Doe Taxpayer: Jane Doe"
	candidates, err := p.Extract(context.Background(), patternInput("1040", text))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("candidates = %+v, want one after dedup", candidates)
	}
}

func TestPatternExtractorEmptyText(t *testing.T) {
	p := NewPatternExtractor("")
	candidates, err := p.Extract(context.Background(), patternInput("K-1", "   "))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates for empty text, got %+v", candidates)
	}
}

func TestPatternExtractorTrustEntities(t *testing.T) {
	p := NewPatternExtractor("")

	candidates, err := p.Extract(context.Background(),
		patternInput("Trust", "The Smith Family Trust Date of creation 01/01/2020"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatalf("trust vocabulary produced nothing")
	}
	if candidates[0].Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", candidates[0].Confidence)
	}
}

func TestPatternExtractorYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	overlay := `form_types:
  "1098":
    - pattern: "(?i)borrower'?s?\\s+name[:\\s]+([A-Z][a-z]+(?:\\s+[A-Z][a-z]+){1,2})"
      confidence: 0.72
`
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewPatternExtractor(path)
	candidates, err := p.Extract(context.Background(),
		patternInput("1098", "Borrower's name: Alice Walker Mortgage interest received"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	c := findCandidate(candidates, "Alice Walker")
	if c == nil {
		t.Fatalf("overlay pattern did not fire, got %+v", candidates)
	}
	if c.Confidence != 0.72 {
		t.Errorf("confidence = %v, want 0.72 from overlay", c.Confidence)
	}
}

func TestPatternExtractorBadOverlayFallsBackToBuiltins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	if err := os.WriteFile(path, []byte(":\tnot yaml"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewPatternExtractor(path)
	candidates, err := p.Extract(context.Background(),
		patternInput("K-1", "Partner's name: Fred Farkouh"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if findCandidate(candidates, "Fred Farkouh") == nil {
		t.Errorf("built-ins unavailable after bad overlay, got %+v", candidates)
	}
}

func TestIsPlausiblePersonName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Fred Farkouh", true},
		{"Mary Jane Watson", true},
		{"J. Robert Oppenheimer", true},
		{"Smith", false},               // single part
		{"FRED FARKOUH", false},        // all caps header
		{"Fred Farkouh 123", false},    // digits
		{"Total Amount", false},        // excluded vocabulary
		{"Federal Income Tax", false},  // excluded vocabulary
		{"fred farkouh", false},        // not capitalized
		{"A B C D E", false},           // too many parts
		{"Jo", false},                  // too short
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPlausiblePersonName(tt.name); got != tt.want {
				t.Errorf("IsPlausiblePersonName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestComparisonKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fred Farkouh", "fred farkouh"},
		{"FRED   FARKOUH", "fred farkouh"},
		{"Fred, Farkouh.", "fred farkouh"},
		{"  fred farkouh  ", "fred farkouh"},
		{"...", ""},
	}

	for _, tt := range tests {
		if got := comparisonKey(tt.in); got != tt.want {
			t.Errorf("comparisonKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
