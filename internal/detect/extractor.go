package detect

import (
	"context"

	"github.com/dixii/namedetect-worker/internal/ocr"
)

// Input carries one request's normalized token views to every extractor.
// Extractors must treat it as read-only.
type Input struct {
	// Positioned holds tokens with boxes in the normalized coordinate space.
	Positioned []ocr.NormalizedToken

	// PlainText is the whitespace-joined token text, including tokens
	// that carried no usable position.
	PlainText string

	// DocType is the document classifier's label. May be "Unknown" or empty;
	// extractors accept both without special-casing.
	DocType string
}

// Extractor is one name extraction strategy. Implementations contain their
// own failures: an error return is converted to an empty candidate list at
// the engine boundary and never fails the request.
type Extractor interface {
	Source() Source
	Extract(ctx context.Context, in *Input) ([]Candidate, error)
}
