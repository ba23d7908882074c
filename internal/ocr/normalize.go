/**
 * Token normalizer
 *
 * Validates raw token records and rescales their boxes into the fixed
 * 0-1000 coordinate space. Malformed tokens are dropped with a diagnostic
 * and never propagated; a token with usable text but no usable box is kept
 * for the text-only extractors. Normalization itself never fails a request.
 */

package ocr

import (
	"strings"

	"github.com/dixii/namedetect-worker/internal/logging"
)

// NormalizedPage holds the two parallel views of one token page:
// positioned tokens for layout-aware consumers and joined plain text
// for layout-agnostic ones. Either view may be empty.
type NormalizedPage struct {
	Positioned []NormalizedToken
	PlainText  string

	// DroppedTokens counts tokens discarded entirely (empty text).
	// TextOnlyTokens counts tokens kept without a position.
	DroppedTokens  int
	TextOnlyTokens int
}

// Normalizer rescales token boxes into the normalized coordinate space
type Normalizer struct {
	logger *logging.Logger
}

// NewNormalizer creates a new token normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{logger: logging.NewLogger("normalizer")}
}

// Normalize validates and rescales every token on the page.
// Tokens without text are dropped; tokens whose box is absent or degenerate,
// or whose page dimensions are unusable, are kept as text-only.
func (n *Normalizer) Normalize(page *TokenPage) *NormalizedPage {
	result := &NormalizedPage{}
	if page == nil {
		return result
	}

	dimsOK := page.ImageWidth > 0 && page.ImageHeight > 0
	if !dimsOK && len(page.Tokens) > 0 {
		n.logger.Warn("Image dimensions unusable, all tokens treated as text-only",
			"width", page.ImageWidth, "height", page.ImageHeight)
	}

	var words []string
	for _, tok := range page.Tokens {
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			result.DroppedTokens++
			n.logger.Warn("Dropped token with empty text", "raw", tok.Text)
			continue
		}
		words = append(words, text)

		if !tok.HasBox || !tok.Box.Valid() || !dimsOK {
			result.TextOnlyTokens++
			if tok.HasBox && !tok.Box.Valid() {
				n.logger.Warn("Dropped invalid bounding box, token kept as text-only",
					"text", text, "bbox", tok.Box)
			}
			continue
		}

		result.Positioned = append(result.Positioned, NormalizedToken{
			Text: text,
			Box:  RescaleBox(tok.Box, page.ImageWidth, page.ImageHeight),
		})
	}

	result.PlainText = strings.Join(words, " ")
	return result
}

// RescaleBox maps a pixel-space box into [0, NormalizedMax] on both axes,
// clamping and forcing a non-degenerate result. Every box that is compared
// against positioned tokens must go through this, including learned ones.
func RescaleBox(b BoundingBox, width, height float64) BoundingBox {
	x0 := clamp(NormalizedMax * b.X0 / width)
	y0 := clamp(NormalizedMax * b.Y0 / height)
	x1 := clamp(NormalizedMax * b.X1 / width)
	y1 := clamp(NormalizedMax * b.Y1 / height)

	if x1 <= x0 {
		x1 = x0 + 1
		if x1 > NormalizedMax {
			x1 = NormalizedMax
			x0 = NormalizedMax - 1
		}
	}
	if y1 <= y0 {
		y1 = y0 + 1
		if y1 > NormalizedMax {
			y1 = NormalizedMax
			y0 = NormalizedMax - 1
		}
	}

	return BoundingBox{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > NormalizedMax {
		return NormalizedMax
	}
	return v
}
