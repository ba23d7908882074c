/**
 * Learned location priors
 *
 * Persistent memory of human corrections, keyed by form type. Each
 * confirmed name location becomes a prior that the location matcher can
 * replay on future documents of the same form type. The store is a
 * single versioned JSON document written atomically; all mutation goes
 * through one writer lock.
 */

package priors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dixii/namedetect-worker/internal/errors"
	"github.com/dixii/namedetect-worker/internal/logging"
	"github.com/dixii/namedetect-worker/internal/ocr"
)

const (
	// StoreVersion is the on-disk document version this code reads and writes.
	StoreVersion = 1

	// DefaultPriorCap bounds name_locations per form type, oldest dropped first.
	DefaultPriorCap = 50

	// DefaultConfidenceThreshold seeds new form type sections.
	DefaultConfidenceThreshold = 0.7

	// MinOverlapRatio is the overlap needed to treat two boxes as the
	// same location, measured as intersection over the smaller area.
	MinOverlapRatio = 0.3
)

// Correction is one human-confirmed name passed to Record. A box given
// with image dimensions is in pixel space and gets rescaled into the
// normalized coordinate space; without dimensions the box must already
// be normalized, matching the space positioned tokens live in.
type Correction struct {
	ImageRef      string
	Name          string
	FormType      string
	Box           *ocr.BoundingBox
	ImageWidth    float64
	ImageHeight   float64
	Confidence    float64
	TokenSnapshot json.RawMessage
}

// ManualInputRecord is the audit trail entry for one human correction
type ManualInputRecord struct {
	ImageRef      string           `json:"image_ref"`
	Name          string           `json:"name"`
	FormType      string           `json:"form_type"`
	Timestamp     string           `json:"timestamp"`
	Box           *ocr.BoundingBox `json:"bbox,omitempty"`
	Confidence    float64          `json:"confidence"`
	TokenSnapshot json.RawMessage  `json:"token_snapshot,omitempty"`
}

// PriorEntry is one learned name location for a form type
type PriorEntry struct {
	Name          string          `json:"name"`
	Box           ocr.BoundingBox `json:"bbox"`
	Confirmations int             `json:"confirmations"`
	LastSeen      string          `json:"last_seen"`
}

// FormTypePriors holds the learned state for a single form type
type FormTypePriors struct {
	NameLocations       []PriorEntry `json:"name_locations"`
	ConfidenceThreshold float64      `json:"confidence_threshold"`
}

type storeDocument struct {
	Version      int                       `json:"version"`
	ManualInputs []ManualInputRecord       `json:"manual_inputs"`
	FormTypes    map[string]FormTypePriors `json:"form_types"`
}

// Store is the concurrency-safe prior store backed by one JSON file
type Store struct {
	mu       sync.RWMutex
	path     string
	cap      int
	readOnly bool
	doc      storeDocument
	logger   *logging.Logger
}

// NewStore loads the store at path, starting empty if the file does not
// exist yet. A document with an unrecognized version is preserved on
// disk and the store runs empty and read-only.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		cap:    DefaultPriorCap,
		logger: logging.NewLogger("priors"),
		doc: storeDocument{
			Version:   StoreVersion,
			FormTypes: make(map[string]FormTypePriors),
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No prior store on disk, starting empty", "path", path)
			return s, nil
		}
		return nil, errors.NewStoreIOError("read prior store", path, err)
	}

	var doc storeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewStoreIOError("parse prior store", path, err)
	}
	if doc.Version != StoreVersion {
		s.logger.Warn("Prior store has unknown version, running empty and read-only",
			"path", path, "version", doc.Version)
		s.readOnly = true
		return s, nil
	}
	if doc.FormTypes == nil {
		doc.FormTypes = make(map[string]FormTypePriors)
	}
	s.doc = doc
	s.logger.Info("Loaded prior store", "path", path,
		"form_types", len(doc.FormTypes), "manual_inputs", len(doc.ManualInputs))
	return s, nil
}

// SetCap overrides the per-form-type prior cap. Values below 1 are ignored.
func (s *Store) SetCap(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	s.cap = n
	s.mu.Unlock()
}

// Record saves one human correction. The audit trail always grows; a
// learned prior is only created or reinforced when a bounding box is
// supplied. A missing form type is recorded under "Unknown". Boxes with
// image dimensions are rescaled from pixel space into the normalized
// coordinate space. Returns whether an existing prior was reinforced.
func (s *Store) Record(c *Correction) (bool, error) {
	if c == nil {
		return false, errors.NewStoreIOError("record correction", s.path, nil)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return false, errors.NewStoreIOError("record correction", s.path, nil)
	}
	formType := strings.TrimSpace(c.FormType)
	if formType == "" {
		formType = "Unknown"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return false, errors.NewStoreIOError("record correction into read-only store", s.path, nil)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	s.doc.ManualInputs = append(s.doc.ManualInputs, ManualInputRecord{
		ImageRef:      c.ImageRef,
		Name:          name,
		FormType:      formType,
		Timestamp:     now,
		Box:           c.Box,
		Confidence:    c.Confidence,
		TokenSnapshot: c.TokenSnapshot,
	})

	reinforced := false
	box := s.normalizedBox(c)
	if box != nil && box.Valid() {
		ft, ok := s.doc.FormTypes[formType]
		if !ok {
			ft = FormTypePriors{ConfidenceThreshold: DefaultConfidenceThreshold}
		}

		key := comparisonKey(name)
		for i := range ft.NameLocations {
			entry := &ft.NameLocations[i]
			if comparisonKey(entry.Name) == key && OverlapRatio(entry.Box, *box) >= MinOverlapRatio {
				entry.Confirmations++
				entry.LastSeen = now
				reinforced = true
				break
			}
		}
		if !reinforced {
			ft.NameLocations = append(ft.NameLocations, PriorEntry{
				Name:          name,
				Box:           *box,
				Confirmations: 1,
				LastSeen:      now,
			})
			if len(ft.NameLocations) > s.cap {
				ft.NameLocations = ft.NameLocations[len(ft.NameLocations)-s.cap:]
			}
		}
		s.doc.FormTypes[formType] = ft
	}

	if err := s.saveLocked(); err != nil {
		return reinforced, err
	}
	s.logger.Info("Recorded correction", "form_type", formType,
		"has_box", box != nil, "reinforced", reinforced)
	return reinforced, nil
}

// Snapshot returns a deep copy of the learned state for one form type.
// Callers may read it without holding any lock. The second return is
// false when no priors exist for the form type.
func (s *Store) Snapshot(formType string) (FormTypePriors, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ft, ok := s.doc.FormTypes[formType]
	if !ok {
		return FormTypePriors{}, false
	}
	out := FormTypePriors{
		ConfidenceThreshold: ft.ConfidenceThreshold,
		NameLocations:       make([]PriorEntry, len(ft.NameLocations)),
	}
	copy(out.NameLocations, ft.NameLocations)
	return out, true
}

// ManualInputCount reports the audit trail length.
func (s *Store) ManualInputCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.ManualInputs)
}

// normalizedBox returns the correction box in the normalized coordinate
// space. Pixel-space boxes are rescaled with the image dimensions; a box
// without dimensions must already fit the normalized space or it is
// discarded so it can never poison the priors.
func (s *Store) normalizedBox(c *Correction) *ocr.BoundingBox {
	if c.Box == nil {
		return nil
	}
	if c.ImageWidth > 0 && c.ImageHeight > 0 {
		box := ocr.RescaleBox(*c.Box, c.ImageWidth, c.ImageHeight)
		return &box
	}
	if c.Box.X1 > ocr.NormalizedMax || c.Box.Y1 > ocr.NormalizedMax || c.Box.X0 < 0 || c.Box.Y0 < 0 {
		s.logger.Warn("Correction box outside normalized space and no image dimensions given, audit only",
			"bbox", *c.Box)
		return nil
	}
	box := *c.Box
	return &box
}

// saveLocked writes the document atomically. Callers hold s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return errors.NewStoreIOError("encode prior store", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewStoreIOError("create prior store directory", s.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".priors-*.json")
	if err != nil {
		return errors.NewStoreIOError("create temp file", s.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewStoreIOError("write temp file", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewStoreIOError("close temp file", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.NewStoreIOError("replace prior store", s.path, err)
	}
	return nil
}

// OverlapRatio measures how much two boxes overlap, as the intersection
// area over the smaller box's area. Degenerate boxes overlap nothing.
func OverlapRatio(a, b ocr.BoundingBox) float64 {
	ix0 := max(a.X0, b.X0)
	iy0 := max(a.Y0, b.Y0)
	ix1 := min(a.X1, b.X1)
	iy1 := min(a.Y1, b.Y1)
	if ix1 <= ix0 || iy1 <= iy0 {
		return 0
	}
	inter := (ix1 - ix0) * (iy1 - iy0)
	areaA := a.Width() * a.Height()
	areaB := b.Width() * b.Height()
	smaller := min(areaA, areaB)
	if smaller <= 0 {
		return 0
	}
	return inter / smaller
}

// comparisonKey matches names case-insensitively, ignoring punctuation
// and extra whitespace.
func comparisonKey(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t' || r == '\n':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
