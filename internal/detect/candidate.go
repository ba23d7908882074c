/**
 * Candidate and result types shared by all extraction strategies
 */

package detect

import (
	"encoding/json"
	"fmt"

	"github.com/dixii/namedetect-worker/internal/ocr"
)

// Source identifies the extraction strategy that produced a candidate
type Source string

const (
	SourcePattern       Source = "patterns"
	SourceSpatial       Source = "spatial"
	SourceGeneral       Source = "general_ner"
	SourceLocationPrior Source = "location_prior"
)

// sourcePriority orders sources by decreasing trustworthiness for this
// domain: learned positions beat layout-aware model output, which beats
// general NER, which beats keyword patterns. Used only for tie-breaking.
var sourcePriority = map[Source]int{
	SourceLocationPrior: 0,
	SourceSpatial:       1,
	SourceGeneral:       2,
	SourcePattern:       3,
}

// Priority returns the tie-break rank of the source (lower is stronger)
func (s Source) Priority() int {
	if p, ok := sourcePriority[s]; ok {
		return p
	}
	return len(sourcePriority)
}

// Valid reports whether s is one of the known sources
func (s Source) Valid() bool {
	_, ok := sourcePriority[s]
	return ok
}

// UnmarshalJSON validates the source tag when decoding persisted results
func (s *Source) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := Source(raw)
	if !parsed.Valid() {
		return fmt.Errorf("unknown candidate source %q", raw)
	}
	*s = parsed
	return nil
}

// Candidate is one proposed name from one extraction source, prior to
// merging. Owned by the merge engine for the duration of one request.
type Candidate struct {
	Name       string           `json:"name"`
	Confidence float64          `json:"confidence"`
	Source     Source           `json:"source"`
	Box        *ocr.BoundingBox `json:"bbox,omitempty"`
}

// DetectionResult is the immutable outcome of one detection request
type DetectionResult struct {
	// CandidatesBySource keeps every raw candidate grouped by the
	// strategy that produced it, for auditing and debugging.
	CandidatesBySource map[Source][]Candidate `json:"candidates_by_source"`

	// CombinedNames lists distinct names, highest score first.
	CombinedNames []string `json:"combined_names"`

	// Confidence is the primary group's score (0 when nothing matched).
	Confidence float64 `json:"confidence"`

	// MethodsUsed is the set of sources that contributed at least one candidate.
	MethodsUsed []Source `json:"methods_used"`

	// PrimaryName is the best-ranked plausible person name, falling back
	// to the top-ranked name, or empty.
	PrimaryName string `json:"primary_name"`
}
