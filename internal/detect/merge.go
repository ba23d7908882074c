/**
 * Merge and rank engine
 *
 * Pure combination of per-extractor candidates. Candidates naming the
 * same person are grouped by comparison key, rewarded when independent
 * extractors agree, and ranked deterministically.
 */

package detect

import "sort"

const (
	agreementBonus = 0.07
	maxScore       = 1.0
)

type mergedGroup struct {
	displayName string
	displayConf float64
	displayPrio int
	score       float64
	sources     map[Source]bool
	firstIndex  int
	bestPrio    int
}

// Merge combines all extractor outputs into a ranked result. The input
// map may contain empty or missing sources; the merge is deterministic
// for any fixed input.
func Merge(bySource map[Source][]Candidate) *DetectionResult {
	result := &DetectionResult{
		CandidatesBySource: bySource,
	}

	// Fixed iteration order keeps firstIndex deterministic across runs.
	order := []Source{SourceLocationPrior, SourceSpatial, SourceGeneral, SourcePattern}
	groups := make(map[string]*mergedGroup)
	var keys []string

	idx := 0
	for _, src := range order {
		candidates := bySource[src]
		if len(candidates) > 0 {
			result.MethodsUsed = append(result.MethodsUsed, src)
		}
		for _, c := range candidates {
			key := comparisonKey(c.Name)
			if key == "" {
				continue
			}
			g, ok := groups[key]
			if !ok {
				g = &mergedGroup{
					displayName: c.Name,
					displayConf: c.Confidence,
					displayPrio: c.Source.Priority(),
					sources:     make(map[Source]bool),
					firstIndex:  idx,
					bestPrio:    c.Source.Priority(),
				}
				groups[key] = g
				keys = append(keys, key)
			}
			g.sources[c.Source] = true
			if c.Source.Priority() < g.bestPrio {
				g.bestPrio = c.Source.Priority()
			}
			if c.Confidence > g.displayConf ||
				(c.Confidence == g.displayConf && c.Source.Priority() < g.displayPrio) {
				g.displayName = c.Name
				g.displayConf = c.Confidence
				g.displayPrio = c.Source.Priority()
			}
			if c.Confidence > g.score {
				g.score = c.Confidence
			}
			idx++
		}
	}

	for _, key := range keys {
		g := groups[key]
		g.score += agreementBonus * float64(len(g.sources)-1)
		if g.score > maxScore {
			g.score = maxScore
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		a, b := groups[keys[i]], groups[keys[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.bestPrio != b.bestPrio {
			return a.bestPrio < b.bestPrio
		}
		return a.firstIndex < b.firstIndex
	})

	for _, key := range keys {
		result.CombinedNames = append(result.CombinedNames, groups[key].displayName)
	}
	if len(keys) > 0 {
		primary := keys[0]
		// Prefer the best-ranked group that looks like a person's name;
		// organization and odd-shaped names stay listed but lose the
		// primary slot to a plausible person.
		for _, key := range keys {
			if IsPlausiblePersonName(groups[key].displayName) {
				primary = key
				break
			}
		}
		result.PrimaryName = groups[primary].displayName
		result.Confidence = groups[primary].score
	}
	return result
}
