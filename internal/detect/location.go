/**
 * Location prior extractor
 *
 * Replays learned name locations against the current page. When a
 * positioned token overlaps a remembered location for this form type,
 * the remembered name is emitted as a candidate, scored by how well the
 * location matches and how often humans have confirmed it.
 */

package detect

import (
	"context"

	"github.com/dixii/namedetect-worker/internal/logging"
	"github.com/dixii/namedetect-worker/internal/priors"
)

const (
	locationBaseConfidence = 0.5
	locationOverlapWeight  = 0.3
	locationConfirmWeight  = 0.05
	locationMaxConfirmAdds = 4
	locationMaxConfidence  = 0.95
)

// PriorSource supplies learned priors per form type, satisfied by
// priors.Store and by test fakes.
type PriorSource interface {
	Snapshot(formType string) (priors.FormTypePriors, bool)
}

// LocationExtractor emits candidates from learned location priors
type LocationExtractor struct {
	source PriorSource
	logger *logging.Logger
}

// NewLocationExtractor creates a location extractor over the given prior source
func NewLocationExtractor(source PriorSource) *LocationExtractor {
	return &LocationExtractor{
		source: source,
		logger: logging.NewLogger("location-prior"),
	}
}

func (l *LocationExtractor) Source() Source {
	return SourceLocationPrior
}

// Extract matches each learned prior against the positioned tokens and
// emits at most one candidate per prior, placed at the best-overlapping
// token. Documents without positioned tokens or without priors for the
// form type produce nothing.
func (l *LocationExtractor) Extract(ctx context.Context, in *Input) ([]Candidate, error) {
	if in == nil || len(in.Positioned) == 0 {
		return nil, nil
	}
	ft, ok := l.source.Snapshot(in.DocType)
	if !ok || len(ft.NameLocations) == 0 {
		l.logger.Debug("No priors for form type", "form_type", in.DocType)
		return nil, nil
	}

	var candidates []Candidate
	for _, entry := range ft.NameLocations {
		select {
		case <-ctx.Done():
			return candidates, ctx.Err()
		default:
		}

		bestOverlap := 0.0
		bestIdx := -1
		for i, tok := range in.Positioned {
			overlap := priors.OverlapRatio(entry.Box, tok.Box)
			if overlap >= priors.MinOverlapRatio && overlap > bestOverlap {
				bestOverlap = overlap
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			continue
		}

		box := in.Positioned[bestIdx].Box
		candidates = append(candidates, Candidate{
			Name:       entry.Name,
			Confidence: priorConfidence(bestOverlap, entry.Confirmations),
			Source:     SourceLocationPrior,
			Box:        &box,
		})
	}

	l.logger.Debug("Matched location priors", "form_type", in.DocType,
		"priors", len(ft.NameLocations), "matched", len(candidates))
	return candidates, nil
}

// priorConfidence scores a matched prior from its positional overlap and
// confirmation count, capped below full certainty.
func priorConfidence(overlap float64, confirmations int) float64 {
	extra := confirmations - 1
	if extra < 0 {
		extra = 0
	}
	if extra > locationMaxConfirmAdds {
		extra = locationMaxConfirmAdds
	}
	conf := locationBaseConfidence + locationOverlapWeight*overlap + locationConfirmWeight*float64(extra)
	if conf > locationMaxConfidence {
		conf = locationMaxConfidence
	}
	return conf
}
