/**
 * General NER extractor
 *
 * Adapter over the plain-text entity recognition model. Person and
 * organization spans become candidates; all other entity types are
 * ignored. Works without positional data, so it participates even for
 * text-only pages.
 */

package detect

import (
	"context"
	"strings"

	"github.com/dixii/namedetect-worker/internal/clients"
	"github.com/dixii/namedetect-worker/internal/logging"
)

// EntityRecognizer is the NER model boundary, satisfied by
// clients.EntityClient and by test fakes.
type EntityRecognizer interface {
	Recognize(ctx context.Context, req *clients.EntityRequest) (*clients.EntityResponse, error)
}

// GeneralExtractor emits candidates from person and organization entities
type GeneralExtractor struct {
	recognizer EntityRecognizer
	logger     *logging.Logger
}

// NewGeneralExtractor creates a general NER extractor over the given model client
func NewGeneralExtractor(recognizer EntityRecognizer) *GeneralExtractor {
	return &GeneralExtractor{
		recognizer: recognizer,
		logger:     logging.NewLogger("general-ner"),
	}
}

func (g *GeneralExtractor) Source() Source {
	return SourceGeneral
}

// Extract runs entity recognition over the plain text view and keeps one
// candidate per distinct person or organization span.
func (g *GeneralExtractor) Extract(ctx context.Context, in *Input) ([]Candidate, error) {
	if in == nil || strings.TrimSpace(in.PlainText) == "" {
		g.logger.Debug("No text available, skipping entity model call")
		return nil, nil
	}

	resp, err := g.recognizer.Recognize(ctx, &clients.EntityRequest{Text: in.PlainText})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var candidates []Candidate
	for _, ent := range resp.Entities {
		if ent.Type != clients.EntityTypePerson && ent.Type != clients.EntityTypeOrganization {
			continue
		}
		name := strings.TrimSpace(ent.Text)
		if len(name) <= 2 {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, Candidate{
			Name:       name,
			Confidence: ent.Score,
			Source:     SourceGeneral,
		})
	}

	return candidates, nil
}
