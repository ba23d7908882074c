package detect

import (
	"context"
	"fmt"
	"testing"

	"github.com/dixii/namedetect-worker/internal/clients"
)

type fakeRecognizer struct {
	entities []clients.EntitySpan
	err      error
	calls    int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *clients.EntityRequest) (*clients.EntityResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &clients.EntityResponse{Success: true, Entities: f.entities}, nil
}

func TestGeneralExtractorKeepsPersonsAndOrganizations(t *testing.T) {
	recognizer := &fakeRecognizer{entities: []clients.EntitySpan{
		{Text: "Fred Farkouh", Type: clients.EntityTypePerson, Score: 0.95},
		{Text: "Acme Holdings LLC", Type: clients.EntityTypeOrganization, Score: 0.88},
		{Text: "New York", Type: "LOC", Score: 0.99},
		{Text: "March 2023", Type: "DATE", Score: 0.97},
	}}
	g := NewGeneralExtractor(recognizer)

	candidates, err := g.Extract(context.Background(), &Input{PlainText: "some document text"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %+v, want person and organization only", candidates)
	}
	if candidates[0].Name != "Fred Farkouh" || candidates[0].Confidence != 0.95 {
		t.Errorf("first = %+v", candidates[0])
	}
	if candidates[1].Name != "Acme Holdings LLC" {
		t.Errorf("second = %+v", candidates[1])
	}
	for _, c := range candidates {
		if c.Source != SourceGeneral {
			t.Errorf("source = %q", c.Source)
		}
	}
}

func TestGeneralExtractorDeduplicatesSpans(t *testing.T) {
	recognizer := &fakeRecognizer{entities: []clients.EntitySpan{
		{Text: "Jane Doe", Type: clients.EntityTypePerson, Score: 0.9},
		{Text: "jane doe", Type: clients.EntityTypePerson, Score: 0.8},
	}}
	g := NewGeneralExtractor(recognizer)

	candidates, err := g.Extract(context.Background(), &Input{PlainText: "text"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("candidates = %+v, want one per distinct span", candidates)
	}
}

func TestGeneralExtractorSkipsEmptyText(t *testing.T) {
	recognizer := &fakeRecognizer{}
	g := NewGeneralExtractor(recognizer)

	candidates, err := g.Extract(context.Background(), &Input{PlainText: "   "})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("candidates = %+v, want none", candidates)
	}
	if recognizer.calls != 0 {
		t.Errorf("model called %d times with empty text", recognizer.calls)
	}
}

func TestGeneralExtractorPropagatesModelError(t *testing.T) {
	recognizer := &fakeRecognizer{err: fmt.Errorf("model service unavailable")}
	g := NewGeneralExtractor(recognizer)

	if _, err := g.Extract(context.Background(), &Input{PlainText: "text"}); err == nil {
		t.Fatal("expected error from failing model")
	}
}

func TestGeneralExtractorDropsTinySpans(t *testing.T) {
	recognizer := &fakeRecognizer{entities: []clients.EntitySpan{
		{Text: "Al", Type: clients.EntityTypePerson, Score: 0.9},
		{Text: "  ", Type: clients.EntityTypePerson, Score: 0.9},
	}}
	g := NewGeneralExtractor(recognizer)

	candidates, err := g.Extract(context.Background(), &Input{PlainText: "text"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("candidates = %+v, want none", candidates)
	}
}
