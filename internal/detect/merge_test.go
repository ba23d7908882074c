package detect

import (
	"math"
	"reflect"
	"testing"
)

func TestMergeEmptyInput(t *testing.T) {
	result := Merge(map[Source][]Candidate{})
	if len(result.CombinedNames) != 0 {
		t.Errorf("combined names = %v, want empty", result.CombinedNames)
	}
	if result.PrimaryName != "" || result.Confidence != 0 {
		t.Errorf("primary = %q confidence = %v, want empty result", result.PrimaryName, result.Confidence)
	}
	if len(result.MethodsUsed) != 0 {
		t.Errorf("methods = %v, want none", result.MethodsUsed)
	}
}

func TestMergeSingleCandidateKeepsItsConfidence(t *testing.T) {
	result := Merge(map[Source][]Candidate{
		SourcePattern: {{Name: "Jane Doe", Confidence: 0.75, Source: SourcePattern}},
	})
	if result.PrimaryName != "Jane Doe" {
		t.Errorf("primary = %q", result.PrimaryName)
	}
	if result.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75 with no agreement bonus", result.Confidence)
	}
}

func TestMergeAgreementBonus(t *testing.T) {
	// Same person seen by three sources under cosmetic variations.
	result := Merge(map[Source][]Candidate{
		SourcePattern: {{Name: "Fred Farkouh", Confidence: 0.75, Source: SourcePattern}},
		SourceSpatial: {{Name: "FRED FARKOUH", Confidence: 0.80, Source: SourceSpatial}},
		SourceGeneral: {{Name: "fred farkouh", Confidence: 0.70, Source: SourceGeneral}},
	})

	if len(result.CombinedNames) != 1 {
		t.Fatalf("combined names = %v, want one merged group", result.CombinedNames)
	}
	// max(0.80) + two extra agreeing sources * 0.07
	want := 0.80 + 2*0.07
	if math.Abs(result.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", result.Confidence, want)
	}
	if len(result.MethodsUsed) != 3 {
		t.Errorf("methods = %v, want 3", result.MethodsUsed)
	}
}

func TestMergeScoreCappedAtOne(t *testing.T) {
	result := Merge(map[Source][]Candidate{
		SourcePattern:       {{Name: "Jane Doe", Confidence: 0.95, Source: SourcePattern}},
		SourceSpatial:       {{Name: "Jane Doe", Confidence: 0.95, Source: SourceSpatial}},
		SourceGeneral:       {{Name: "Jane Doe", Confidence: 0.95, Source: SourceGeneral}},
		SourceLocationPrior: {{Name: "Jane Doe", Confidence: 0.95, Source: SourceLocationPrior}},
	})
	if result.Confidence != 1.0 {
		t.Errorf("confidence = %v, want cap at 1.0", result.Confidence)
	}
}

func TestMergeDuplicatesWithinSourceNoBonus(t *testing.T) {
	// Two candidates from the same source do not count as agreement.
	result := Merge(map[Source][]Candidate{
		SourcePattern: {
			{Name: "Jane Doe", Confidence: 0.70, Source: SourcePattern},
			{Name: "Jane Doe", Confidence: 0.60, Source: SourcePattern},
		},
	})
	if result.Confidence != 0.70 {
		t.Errorf("confidence = %v, want 0.70", result.Confidence)
	}
	if len(result.CombinedNames) != 1 {
		t.Errorf("combined names = %v", result.CombinedNames)
	}
}

func TestMergeTieBreakBySourcePriority(t *testing.T) {
	// Equal scores: the name backed by the stronger source ranks first.
	result := Merge(map[Source][]Candidate{
		SourcePattern: {{Name: "Pattern Person", Confidence: 0.8, Source: SourcePattern}},
		SourceSpatial: {{Name: "Spatial Person", Confidence: 0.8, Source: SourceSpatial}},
	})
	if result.PrimaryName != "Spatial Person" {
		t.Errorf("primary = %q, want spatial to win the tie", result.PrimaryName)
	}
	want := []string{"Spatial Person", "Pattern Person"}
	if !reflect.DeepEqual(result.CombinedNames, want) {
		t.Errorf("combined names = %v, want %v", result.CombinedNames, want)
	}
}

func TestMergeTieBreakByFirstAppearance(t *testing.T) {
	result := Merge(map[Source][]Candidate{
		SourceSpatial: {
			{Name: "First Person", Confidence: 0.8, Source: SourceSpatial},
			{Name: "Second Person", Confidence: 0.8, Source: SourceSpatial},
		},
	})
	want := []string{"First Person", "Second Person"}
	if !reflect.DeepEqual(result.CombinedNames, want) {
		t.Errorf("combined names = %v, want %v", result.CombinedNames, want)
	}
}

func TestMergeDeterministic(t *testing.T) {
	input := map[Source][]Candidate{
		SourcePattern: {
			{Name: "Alpha Person", Confidence: 0.68, Source: SourcePattern},
			{Name: "Beta Person", Confidence: 0.68, Source: SourcePattern},
		},
		SourceGeneral: {
			{Name: "Gamma Person", Confidence: 0.68, Source: SourceGeneral},
			{Name: "alpha person", Confidence: 0.61, Source: SourceGeneral},
		},
		SourceLocationPrior: {
			{Name: "Delta Person", Confidence: 0.68, Source: SourceLocationPrior},
		},
	}

	first := Merge(input)
	for i := 0; i < 20; i++ {
		again := Merge(input)
		if !reflect.DeepEqual(first.CombinedNames, again.CombinedNames) {
			t.Fatalf("run %d ranked %v, first run ranked %v", i, again.CombinedNames, first.CombinedNames)
		}
		if again.PrimaryName != first.PrimaryName || again.Confidence != first.Confidence {
			t.Fatalf("run %d primary %q/%v differs from %q/%v",
				i, again.PrimaryName, again.Confidence, first.PrimaryName, first.Confidence)
		}
	}
}

func TestMergeDisplayNameFromStrongestCandidate(t *testing.T) {
	result := Merge(map[Source][]Candidate{
		SourceGeneral: {{Name: "FRED FARKOUH", Confidence: 0.9, Source: SourceGeneral}},
		SourcePattern: {{Name: "Fred Farkouh", Confidence: 0.7, Source: SourcePattern}},
	})
	if result.PrimaryName != "FRED FARKOUH" {
		t.Errorf("primary = %q, want the highest-confidence variant", result.PrimaryName)
	}
}

func TestMergePrimaryPrefersPlausiblePersonName(t *testing.T) {
	// The organization outscores the person but the person takes the
	// primary slot; the organization stays in the ranked list.
	result := Merge(map[Source][]Candidate{
		SourceGeneral: {
			{Name: "Acme Holdings LLC", Confidence: 0.9, Source: SourceGeneral},
			{Name: "Fred Farkouh", Confidence: 0.8, Source: SourceGeneral},
		},
	})
	if result.PrimaryName != "Fred Farkouh" {
		t.Errorf("primary = %q, want the plausible person name", result.PrimaryName)
	}
	if result.Confidence != 0.8 {
		t.Errorf("confidence = %v, want the primary group's score", result.Confidence)
	}
	if result.CombinedNames[0] != "Acme Holdings LLC" {
		t.Errorf("ranking changed: %v", result.CombinedNames)
	}
}

func TestMergeIgnoresBlankNames(t *testing.T) {
	result := Merge(map[Source][]Candidate{
		SourcePattern: {
			{Name: "  ", Confidence: 0.9, Source: SourcePattern},
			{Name: "...", Confidence: 0.9, Source: SourcePattern},
			{Name: "Jane Doe", Confidence: 0.7, Source: SourcePattern},
		},
	})
	if len(result.CombinedNames) != 1 || result.PrimaryName != "Jane Doe" {
		t.Errorf("result = %v / %q", result.CombinedNames, result.PrimaryName)
	}
}
