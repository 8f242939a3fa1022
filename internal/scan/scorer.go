package scan

import (
	"fmt"
	"sort"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// MaxRisk is the upper bound every score is clamped to.
const MaxRisk = 10

// Options carries the trigger vocabulary and the tuning constants of the
// risk policy. All of it is configuration; the observed production values
// are only defaults.
type Options struct {
	Triggers       map[string][]string
	FuzzyThreshold int
	MatchIncrement int
	DiffIncrement  int
	// CorrelationBonus is added once when two or more distinct categories
	// match; CorrelationCategories optionally restricts which categories
	// count toward that pair.
	CorrelationBonus      int
	CorrelationCategories []string
}

// Result is the outcome of scoring one non-archive attachment.
type Result struct {
	Risk    int
	Vectors []string
	Alerts  []string
}

// Scorer applies one Options set to many documents. It is pure and safe for
// concurrent use.
type Scorer struct {
	opts Options
	// normalized term -> original term, per category, computed once.
	terms map[string][]term
}

type term struct {
	original   string
	normalized string
}

// NewScorer pre-normalizes the vocabulary.
func NewScorer(opts Options) *Scorer {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = 90
	}
	if opts.MatchIncrement <= 0 {
		opts.MatchIncrement = 2
	}
	if opts.DiffIncrement <= 0 {
		opts.DiffIncrement = 5
	}
	if opts.CorrelationBonus <= 0 {
		opts.CorrelationBonus = 10
	}
	s := &Scorer{opts: opts, terms: make(map[string][]term)}
	for cat, list := range opts.Triggers {
		for _, raw := range list {
			s.terms[cat] = append(s.terms[cat], term{original: raw, normalized: Normalize(raw)})
		}
	}
	return s
}

// Score scans both channels of one attachment. The extension decides whether
// the cross-layer forensic diff applies: only PDFs render deterministically
// page-for-page, so only there is a layer mismatch meaningful. Score never
// fails; empty input yields a zero result.
func (s *Scorer) Score(logicalText, visualText, ext string) Result {
	logical := Normalize(logicalText)
	visual := Normalize(visualText)
	combined := strings.TrimSpace(logical + " " + visual)

	var res Result
	if combined == "" {
		return res
	}

	matched := make(map[string]bool)
	foundCategories := make(map[string]bool)
	risk := 0

	categories := make([]string, 0, len(s.terms))
	for cat := range s.terms {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		for _, tm := range s.terms[cat] {
			if tm.normalized == "" || matched[tm.original] {
				continue
			}
			if s.matches(tm.normalized, combined) {
				matched[tm.original] = true
				foundCategories[cat] = true
				res.Vectors = append(res.Vectors, tm.original)
				risk += s.opts.MatchIncrement
			}
		}
	}

	if s.correlated(foundCategories) {
		risk += s.opts.CorrelationBonus
		res.Alerts = append(res.Alerts, correlationAlert(foundCategories))
	}

	if ext == "pdf" {
		for _, vector := range res.Vectors {
			normalized := Normalize(vector)
			inLogical := strings.Contains(logical, normalized)
			inVisual := strings.Contains(visual, normalized)
			switch {
			case inLogical && !inVisual:
				res.Alerts = append(res.Alerts, fmt.Sprintf("INJECTION: %q w warstwie tekstowej, niewidoczne w renderze", vector))
				risk += s.opts.DiffIncrement
			case inVisual && !inLogical:
				res.Alerts = append(res.Alerts, fmt.Sprintf("DEEP-RIDER: %q widoczne tylko w renderze, brak w warstwie tekstowej", vector))
				risk += s.opts.DiffIncrement
			}
		}
	}

	res.Risk = clamp(risk)
	return res
}

func (s *Scorer) matches(normalizedTerm, surface string) bool {
	if strings.Contains(surface, normalizedTerm) {
		return true
	}
	return fuzzy.PartialRatio(normalizedTerm, surface) > s.opts.FuzzyThreshold
}

// correlated reports whether at least two distinct found categories count
// toward the correlation pattern. Category names compare case-insensitively:
// vocabulary keys and the restriction list may arrive with different casing
// depending on the config source.
func (s *Scorer) correlated(found map[string]bool) bool {
	if len(found) < 2 {
		return false
	}
	if len(s.opts.CorrelationCategories) == 0 {
		return true
	}
	count := 0
	for _, cat := range s.opts.CorrelationCategories {
		for name := range found {
			if strings.EqualFold(name, cat) {
				count++
				break
			}
		}
	}
	return count >= 2
}

func correlationAlert(found map[string]bool) string {
	cats := make([]string, 0, len(found))
	for cat := range found {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return "🚨 KORELACJA KATEGORII: " + strings.Join(cats, " + ")
}

func clamp(risk int) int {
	if risk > MaxRisk {
		return MaxRisk
	}
	if risk < 0 {
		return 0
	}
	return risk
}
