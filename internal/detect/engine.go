/**
 * Detection engine
 *
 * Orchestrates one document through OCR, token normalization, the four
 * extraction strategies, and the merge step. Extractors run in parallel
 * under independent timeouts; any single extractor failing or timing
 * out degrades that strategy to an empty result. Only an unreadable
 * input image fails the whole detection.
 */

package detect

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dixii/namedetect-worker/internal/errors"
	"github.com/dixii/namedetect-worker/internal/logging"
	"github.com/dixii/namedetect-worker/internal/ocr"
	"github.com/dixii/namedetect-worker/internal/priors"
)

// DefaultExtractorTimeout bounds each strategy's runtime per document.
const DefaultExtractorTimeout = 10 * time.Second

// PriorRecorder persists human corrections, satisfied by priors.Store.
type PriorRecorder interface {
	Record(c *priors.Correction) (bool, error)
}

// Engine runs the full multi-strategy detection pipeline
type Engine struct {
	reader           ocr.Reader
	normalizer       *ocr.Normalizer
	extractors       []Extractor
	recorder         PriorRecorder
	extractorTimeout time.Duration
	logger           *logging.Logger
}

// NewEngine wires the pipeline. The extractor slice order is preserved
// only for logging; merge order is fixed by source priority.
func NewEngine(reader ocr.Reader, extractors []Extractor, recorder PriorRecorder) *Engine {
	return &Engine{
		reader:           reader,
		normalizer:       ocr.NewNormalizer(),
		extractors:       extractors,
		recorder:         recorder,
		extractorTimeout: DefaultExtractorTimeout,
		logger:           logging.NewLogger("engine"),
	}
}

// SetExtractorTimeout overrides the per-extractor timeout. Non-positive
// values are ignored.
func (e *Engine) SetExtractorTimeout(d time.Duration) {
	if d > 0 {
		e.extractorTimeout = d
	}
}

// Detect runs every strategy over one document image and merges their
// candidates into a ranked result.
func (e *Engine) Detect(ctx context.Context, imagePath, docType string) (*DetectionResult, error) {
	requestID := uuid.New().String()
	start := time.Now()
	e.logger.Info("Starting detection", "request_id", requestID,
		"image", imagePath, "doc_type", docType)

	page, err := e.reader.ReadTokens(ctx, imagePath)
	if err != nil {
		e.logger.Error("OCR failed", "request_id", requestID, "error", err.Error())
		return nil, err
	}

	normalized := e.normalizer.Normalize(page)
	in := &Input{
		Positioned: normalized.Positioned,
		PlainText:  normalized.PlainText,
		DocType:    docType,
	}

	bySource := e.runExtractors(ctx, requestID, in)
	result := Merge(bySource)

	e.logger.Info("Detection complete", "request_id", requestID,
		"names", len(result.CombinedNames), "primary", result.PrimaryName,
		"methods", len(result.MethodsUsed),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// runExtractors fans the input out to every strategy in parallel. Each
// strategy gets its own timeout; a failed or timed out strategy simply
// contributes no candidates.
func (e *Engine) runExtractors(ctx context.Context, requestID string, in *Input) map[Source][]Candidate {
	type outcome struct {
		source     Source
		candidates []Candidate
	}

	results := make(chan outcome, len(e.extractors))
	var wg sync.WaitGroup
	for _, ex := range e.extractors {
		wg.Add(1)
		go func(ex Extractor) {
			defer wg.Done()
			exCtx, cancel := context.WithTimeout(ctx, e.extractorTimeout)
			defer cancel()

			candidates, err := ex.Extract(exCtx, in)
			if err != nil {
				if exCtx.Err() == context.DeadlineExceeded {
					e.logger.Warn("Extractor timed out", "request_id", requestID,
						"source", string(ex.Source()),
						"timeout", e.extractorTimeout.String())
				} else {
					e.logger.Warn("Extractor failed", "request_id", requestID,
						"source", string(ex.Source()), "error", err.Error())
				}
				results <- outcome{source: ex.Source()}
				return
			}
			results <- outcome{source: ex.Source(), candidates: candidates}
		}(ex)
	}
	wg.Wait()
	close(results)

	bySource := make(map[Source][]Candidate)
	for out := range results {
		if len(out.candidates) > 0 {
			bySource[out.source] = out.candidates
		}
	}
	return bySource
}

// Learn records one human correction so future documents of the same
// form type benefit from it. Corrections carry pixel-space boxes; when
// the caller did not supply image dimensions they are read from the
// referenced image so the recorder can rescale the box into the space
// positioned tokens live in.
func (e *Engine) Learn(c *priors.Correction) error {
	if e.recorder == nil {
		return errors.NewStoreIOError("record correction", "", nil)
	}
	if c != nil && c.Box != nil && (c.ImageWidth <= 0 || c.ImageHeight <= 0) && c.ImageRef != "" {
		width, height, err := ocr.ImageDimensions(c.ImageRef)
		if err != nil {
			e.logger.Warn("Could not read image dimensions for correction, box must already be normalized",
				"image", c.ImageRef, "error", err.Error())
		} else {
			c.ImageWidth = width
			c.ImageHeight = height
		}
	}
	reinforced, err := e.recorder.Record(c)
	if err != nil {
		return err
	}
	e.logger.Info("Learned correction", "form_type", c.FormType, "reinforced", reinforced)
	return nil
}
