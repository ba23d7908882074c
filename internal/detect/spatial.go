/**
 * Spatial extractor
 *
 * Adapter over the layout-aware token classification model. Contiguous
 * name-labeled tokens are joined into one span, scored conservatively by
 * the weakest token in the span. Model failures degrade to an empty result.
 */

package detect

import (
	"context"

	"github.com/dixii/namedetect-worker/internal/clients"
	"github.com/dixii/namedetect-worker/internal/logging"
	"github.com/dixii/namedetect-worker/internal/ocr"
)

// TokenClassifier is the layout model boundary, satisfied by
// clients.LayoutClient and by test fakes.
type TokenClassifier interface {
	ClassifyTokens(ctx context.Context, req *clients.TokenClassifyRequest) (*clients.TokenClassifyResponse, error)
}

// SpatialExtractor emits candidates from layout-model name spans
type SpatialExtractor struct {
	classifier TokenClassifier
	logger     *logging.Logger
}

// NewSpatialExtractor creates a spatial extractor over the given model client
func NewSpatialExtractor(classifier TokenClassifier) *SpatialExtractor {
	return &SpatialExtractor{
		classifier: classifier,
		logger:     logging.NewLogger("spatial"),
	}
}

func (s *SpatialExtractor) Source() Source {
	return SourceSpatial
}

// Extract runs token classification over the positioned tokens and joins
// adjacent name-labeled tokens into candidates. An empty positioned view
// skips the model call entirely.
func (s *SpatialExtractor) Extract(ctx context.Context, in *Input) ([]Candidate, error) {
	if in == nil || len(in.Positioned) == 0 {
		s.logger.Debug("No positioned tokens, skipping layout model call")
		return nil, nil
	}

	req := &clients.TokenClassifyRequest{
		Tokens:  make([]clients.LayoutToken, 0, len(in.Positioned)),
		DocType: in.DocType,
	}
	for _, tok := range in.Positioned {
		req.Tokens = append(req.Tokens, clients.LayoutToken{
			Text: tok.Text,
			Box:  [4]float64{tok.Box.X0, tok.Box.Y0, tok.Box.X1, tok.Box.Y1},
		})
	}

	resp, err := s.classifier.ClassifyTokens(ctx, req)
	if err != nil {
		return nil, err
	}

	return joinNameSpans(in.Positioned, resp.Labels), nil
}

// joinNameSpans collapses contiguous name-labeled tokens into candidates.
// A span's confidence is the minimum of its token scores; its box is the
// union of its token boxes.
func joinNameSpans(tokens []ocr.NormalizedToken, labels []clients.TokenLabel) []Candidate {
	var candidates []Candidate

	var spanTokens []ocr.NormalizedToken
	var spanMin float64

	flush := func() {
		if len(spanTokens) == 0 {
			return
		}
		name := ""
		box := spanTokens[0].Box
		for i, tok := range spanTokens {
			if i > 0 {
				name += " "
			}
			name += tok.Text
			box = unionBoxes(box, tok.Box)
		}
		if len(name) > 2 {
			b := box
			candidates = append(candidates, Candidate{
				Name:       name,
				Confidence: spanMin,
				Source:     SourceSpatial,
				Box:        &b,
			})
		}
		spanTokens = nil
	}

	for i, tok := range tokens {
		if i < len(labels) && labels[i].Label == clients.TokenLabelName {
			if len(spanTokens) == 0 || labels[i].Score < spanMin {
				spanMin = labels[i].Score
			}
			spanTokens = append(spanTokens, tok)
			continue
		}
		flush()
	}
	flush()

	return candidates
}

func unionBoxes(a, b ocr.BoundingBox) ocr.BoundingBox {
	out := a
	if b.X0 < out.X0 {
		out.X0 = b.X0
	}
	if b.Y0 < out.Y0 {
		out.Y0 = b.Y0
	}
	if b.X1 > out.X1 {
		out.X1 = b.X1
	}
	if b.Y1 > out.Y1 {
		out.Y1 = b.Y1
	}
	return out
}
