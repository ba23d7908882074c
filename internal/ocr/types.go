/**
 * OCR Types - Shared data structures for token extraction
 *
 * Common types used by the Tesseract token reader and the normalizer.
 */

package ocr

// BoundingBox represents an axis-aligned rectangle in pixel coordinates
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Valid reports whether the box is non-degenerate with non-negative coordinates
func (b BoundingBox) Valid() bool {
	return b.X0 >= 0 && b.Y0 >= 0 && b.X1 > b.X0 && b.Y1 > b.Y0
}

// Width returns the horizontal extent of the box
func (b BoundingBox) Width() float64 {
	return b.X1 - b.X0
}

// Height returns the vertical extent of the box
func (b BoundingBox) Height() float64 {
	return b.Y1 - b.Y0
}

// Token represents one OCR-recognized word with an optional position.
// HasBox is false when the provider returned no usable bounding box;
// such tokens still carry text for layout-agnostic consumers.
type Token struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bbox"`
	HasBox     bool        `json:"has_bbox"`
}

// TokenPage represents all tokens recognized on a single page image
type TokenPage struct {
	Tokens      []Token `json:"tokens"`
	ImageWidth  float64 `json:"image_width"`
	ImageHeight float64 `json:"image_height"`
}

// NormalizedToken is a token whose box has been rescaled into the
// fixed NormalizedMax coordinate space. Only tokens with valid,
// non-degenerate boxes are ever normalized.
type NormalizedToken struct {
	Text string
	Box  BoundingBox
}

// NormalizedMax is the upper bound of the normalized coordinate space
// on both axes. Matches the 0-1000 space layout models expect.
const NormalizedMax = 1000.0
