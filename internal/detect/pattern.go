/**
 * Pattern extractor
 *
 * Regex label patterns keyed by form type, matching names adjacent to known
 * field labels ("Employee's name", "Partner:", ...). Unknown form types fall
 * back to a generic label vocabulary. A built-in registry covers the common
 * tax forms; an optional YAML file can extend or override it per deployment.
 */

package detect

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dixii/namedetect-worker/internal/logging"
)

// namePart matches a capitalized name of two or three words. The lazy
// quantifier keeps the match from swallowing the capitalized start of the
// next form label ("... Fred Farkouh Partner's address").
const namePart = `([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2}?)`

// genericFormType keys the fallback registry entry used when a form type
// has no patterns of its own.
const genericFormType = "generic"

type labelPattern struct {
	re         *regexp.Regexp
	confidence float64
}

// patternSpec is the YAML shape of one configurable label pattern
type patternSpec struct {
	Pattern    string  `yaml:"pattern"`
	Confidence float64 `yaml:"confidence"`
}

// patternFile is the YAML shape of a registry overlay file
type patternFile struct {
	FormTypes map[string][]patternSpec `yaml:"form_types"`
}

// PatternExtractor emits candidates from label-adjacent regex matches
type PatternExtractor struct {
	registry map[string][]labelPattern
	logger   *logging.Logger
}

// NewPatternExtractor creates a pattern extractor with the built-in registry.
// When patternsPath names a readable YAML file, its entries are appended to
// the built-ins; an unreadable or malformed file is logged and ignored.
func NewPatternExtractor(patternsPath string) *PatternExtractor {
	p := &PatternExtractor{
		registry: builtinRegistry(),
		logger:   logging.NewLogger("patterns"),
	}

	if patternsPath != "" {
		if err := p.loadOverlay(patternsPath); err != nil {
			p.logger.Warn("Failed to load pattern overlay, using built-ins only",
				"path", patternsPath, "error", err)
		}
	}

	return p
}

func (p *PatternExtractor) Source() Source {
	return SourcePattern
}

// Extract matches the form type's label patterns against the plain text.
// Never fails: no matches yields an empty list.
func (p *PatternExtractor) Extract(ctx context.Context, in *Input) ([]Candidate, error) {
	if in == nil || strings.TrimSpace(in.PlainText) == "" {
		return nil, nil
	}

	patterns := p.patternsFor(in.DocType)

	var candidates []Candidate
	seen := make(map[string]bool)
	for _, lp := range patterns {
		if err := ctx.Err(); err != nil {
			return candidates, nil
		}
		for _, match := range lp.re.FindAllStringSubmatch(in.PlainText, -1) {
			name := joinGroups(match[1:])
			if name == "" || !IsPlausiblePersonName(name) {
				continue
			}
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, Candidate{
				Name:       name,
				Confidence: lp.confidence,
				Source:     SourcePattern,
			})
		}
	}

	return candidates, nil
}

// patternsFor returns the registry entry for the form type, falling back
// to the generic entry when the type is unknown, "Unknown", or empty.
func (p *PatternExtractor) patternsFor(docType string) []labelPattern {
	if docType != "" {
		if patterns, ok := p.registry[docType]; ok {
			return patterns
		}
	}
	return p.registry[genericFormType]
}

func (p *PatternExtractor) loadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse pattern file: %w", err)
	}

	loaded := 0
	for formType, specs := range file.FormTypes {
		for _, spec := range specs {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				p.logger.Warn("Skipping invalid pattern", "form_type", formType,
					"pattern", spec.Pattern, "error", err)
				continue
			}
			conf := spec.Confidence
			if conf <= 0 || conf > 1 {
				conf = 0.6
			}
			p.registry[formType] = append(p.registry[formType], labelPattern{re: re, confidence: conf})
			loaded++
		}
	}

	p.logger.Info("Loaded pattern overlay", "path", path, "patterns", loaded)
	return nil
}

func joinGroups(groups []string) string {
	var parts []string
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g != "" {
			parts = append(parts, g)
		}
	}
	return strings.Join(parts, " ")
}

// builtinRegistry covers the form types seen in production traffic.
// Confidence sits in the 0.6-0.75 band: the more specific the label
// phrasing, the higher the score.
func builtinRegistry() map[string][]labelPattern {
	compile := func(conf float64, exprs ...string) []labelPattern {
		patterns := make([]labelPattern, 0, len(exprs))
		for _, expr := range exprs {
			patterns = append(patterns, labelPattern{
				re:         regexp.MustCompile(expr),
				confidence: conf,
			})
		}
		return patterns
	}

	registry := map[string][]labelPattern{}

	registry["K-1"] = append(
		compile(0.75,
			`(?i)partner'?s?\s+name[:\s]+`+namePart,
			`(?i)shareholder'?s?\s+name[:\s]+`+namePart,
			`(?i)beneficiary'?s?\s+name[:\s]+`+namePart,
		),
		compile(0.65,
			`(?i)partner[:\s]+`+namePart,
			`(?i)recipient[:\s]+`+namePart,
		)...,
	)

	registry["W-2"] = append(
		compile(0.75,
			`(?i)employee'?s?\s+name[:\s]+`+namePart,
		),
		compile(0.65,
			`(?i)employee[:\s]+`+namePart,
		)...,
	)

	registry["1099"] = append(
		compile(0.75,
			`(?i)recipient'?s?\s+name[:\s]+`+namePart,
			`(?i)payee'?s?\s+name[:\s]+`+namePart,
		),
		compile(0.65,
			`(?i)recipient[:\s]+`+namePart,
			`(?i)payee[:\s]+`+namePart,
		)...,
	)

	registry["1040"] = append(
		compile(0.75,
			`(?i)taxpayer'?s?\s+name[:\s]+`+namePart,
			`(?i)spouse'?s?\s+name[:\s]+`+namePart,
		),
		compile(0.65,
			`(?i)taxpayer[:\s]+`+namePart,
			`(?i)primary[:\s]+`+namePart,
		)...,
	)

	// Entity forms: the name IS the label context
	registry["Trust"] = compile(0.7,
		namePart+`\s+(?:Family\s+|Living\s+|Revocable\s+|Irrevocable\s+)?Trust\b`,
		`(?i)trust\s+of\s+`+namePart,
	)
	registry["Estate"] = compile(0.7,
		namePart+`\s+Estate\b`,
		`(?i)estate\s+of\s+`+namePart,
	)

	// Generic fallback for unknown or unclassified forms
	registry[genericFormType] = append(
		compile(0.65,
			`(?i)name[:\s]+`+namePart,
			`(?i)recipient[:\s]+`+namePart,
			`(?i)employee[:\s]+`+namePart,
			`(?i)client[:\s]+`+namePart,
			`(?i)borrower[:\s]+`+namePart,
		),
		compile(0.6,
			`(?i)(?:Mr\.|Mrs\.|Ms\.|Dr\.)\s+`+namePart,
		)...,
	)

	return registry
}
