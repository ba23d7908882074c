/**
 * Tesseract token reader
 *
 * Extracts word-level tokens with bounding boxes from a page image using
 * Tesseract. This is the worker's OCR provider boundary: a missing or
 * unreadable image is the only fatal failure; everything else degrades to
 * fewer (or zero) tokens.
 */

package ocr

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/dixii/namedetect-worker/internal/errors"
	"github.com/dixii/namedetect-worker/internal/logging"
)

// Reader supplies the tokens recognized on a page image
type Reader interface {
	ReadTokens(ctx context.Context, imagePath string) (*TokenPage, error)
}

// defaultMinWordConfidence is the Tesseract per-word confidence floor
// (0-100 scale). Words below it are mostly noise from form ruling and
// scan artifacts.
const defaultMinWordConfidence = 30.0

// TesseractReader reads word tokens using a local Tesseract install
type TesseractReader struct {
	language          string
	minWordConfidence float64
	logger            *logging.Logger
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language          string
	MinWordConfidence float64
}

// NewTesseractReader creates a new Tesseract-backed token reader
func NewTesseractReader(cfg *TesseractConfig) (*TesseractReader, error) {
	if cfg == nil {
		cfg = &TesseractConfig{}
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.MinWordConfidence <= 0 {
		cfg.MinWordConfidence = defaultMinWordConfidence
	}

	return &TesseractReader{
		language:          cfg.Language,
		minWordConfidence: cfg.MinWordConfidence,
		logger:            logging.NewLogger("tesseract"),
	}, nil
}

// ReadTokens performs OCR and returns word tokens with pixel-space boxes.
// The returned page may contain zero tokens; only an unreadable image is an error.
func (t *TesseractReader) ReadTokens(ctx context.Context, imagePath string) (*TokenPage, error) {
	if imagePath == "" {
		return nil, errors.NewInputUnreadableError(imagePath, fmt.Errorf("empty image path"))
	}

	width, height, err := ImageDimensions(imagePath)
	if err != nil {
		return nil, errors.NewInputUnreadableError(imagePath, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		t.logger.Warn("Failed to set OCR language, continuing with default", "language", t.language, "error", err)
	}

	if err := client.SetImage(imagePath); err != nil {
		return nil, errors.NewInputUnreadableError(imagePath, err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Fall back to plain text so layout-agnostic extractors still run
		t.logger.Warn("Word-level bounding boxes unavailable, falling back to plain text", "error", err)
		text, textErr := client.Text()
		if textErr != nil {
			return nil, errors.NewInputUnreadableError(imagePath, textErr)
		}
		return t.pageFromText(text, width, height), nil
	}

	tokens := make([]Token, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		if box.Confidence < t.minWordConfidence {
			continue
		}
		tokens = append(tokens, Token{
			Text:       box.Word,
			Confidence: box.Confidence / 100.0,
			Box: BoundingBox{
				X0: float64(box.Box.Min.X),
				Y0: float64(box.Box.Min.Y),
				X1: float64(box.Box.Max.X),
				Y1: float64(box.Box.Max.Y),
			},
			HasBox: true,
		})
	}

	t.logger.Debug("OCR complete", "image", imagePath, "tokens", len(tokens),
		"width", width, "height", height)

	return &TokenPage{
		Tokens:      tokens,
		ImageWidth:  width,
		ImageHeight: height,
	}, nil
}

// pageFromText builds a positionless token page from whitespace-split text
func (t *TesseractReader) pageFromText(text string, width, height float64) *TokenPage {
	var tokens []Token
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, Token{Text: word, Confidence: 0.5})
	}
	return &TokenPage{
		Tokens:      tokens,
		ImageWidth:  width,
		ImageHeight: height,
	}
}

// ImageDimensions reads the pixel dimensions from an image file header
// without decoding the full image.
func ImageDimensions(imagePath string) (float64, float64, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}
