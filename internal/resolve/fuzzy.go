package resolve

import (
	"path"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultMinSimilarity is the lowest similarity score a fuzzy match accepts.
const DefaultMinSimilarity = 0.7

const (
	scoreExact     = 1.0
	scoreFilename  = 0.95
	scoreAmbiguous = 0.7
	noExtWeight    = 0.9
)

// MatchType names the cascade step that produced a match.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchEndsWith MatchType = "ends_with"
	MatchFilename MatchType = "filename"
	MatchFuzzy    MatchType = "fuzzy"
)

// Candidate is a file a loose reference may point at.
type Candidate struct {
	ID           string
	Path         string
	RelativePath string
	Name         string
	Labels       []string
}

func (c Candidate) filename() string {
	if c.Name != "" {
		return c.Name
	}
	return path.Base(c.slashPath())
}

func (c Candidate) slashPath() string {
	return strings.ReplaceAll(c.Path, "\\", "/")
}

// FuzzyMatchResult is the outcome of a fuzzy match.
type FuzzyMatchResult struct {
	ID        string
	Path      string
	Name      string
	Score     float64
	MatchType MatchType
	Labels    []string
}

// Fuzzy matches loose prose mentions against known files.
type Fuzzy struct {
	MinSimilarity float64
}

// NewFuzzy creates a matcher. A non-positive threshold uses the default.
func NewFuzzy(minSimilarity float64) *Fuzzy {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Fuzzy{MinSimilarity: minSimilarity}
}

// Match runs the cascade and returns the first confident hit. Ambiguous
// hits resolve to the first candidate by path with a reduced score.
func (f *Fuzzy) Match(text string, candidates []Candidate) (FuzzyMatchResult, bool) {
	text = strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(text), "\\", "/"), "./")
	if text == "" || len(candidates) == 0 {
		return FuzzyMatchResult{}, false
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, c := range sorted {
		if c.RelativePath == text || c.slashPath() == text {
			return result(c, scoreExact, MatchExact), true
		}
	}

	if strings.Contains(text, "/") {
		var hits []Candidate
		for _, c := range sorted {
			if strings.HasSuffix(c.slashPath(), "/"+text) {
				hits = append(hits, c)
			}
		}
		switch len(hits) {
		case 0:
		case 1:
			return result(hits[0], scoreExact, MatchEndsWith), true
		default:
			return result(hits[0], scoreAmbiguous, MatchEndsWith), true
		}
	}

	name := path.Base(text)
	var named []Candidate
	for _, c := range sorted {
		if c.filename() == name {
			named = append(named, c)
		}
	}
	switch len(named) {
	case 0:
	case 1:
		return result(named[0], scoreFilename, MatchFilename), true
	default:
		return result(named[0], scoreAmbiguous, MatchFilename), true
	}

	lowerName := strings.ToLower(name)
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		best, score := -1, 0.0
		for i, c := range sorted {
			candidate := strings.ToLower(c.filename())
			if path.Ext(candidate) != ext {
				continue
			}
			if s := Similarity(lowerName, candidate); s > score {
				best, score = i, s
			}
		}
		if best >= 0 && score >= f.MinSimilarity {
			return result(sorted[best], score, MatchFuzzy), true
		}
	}

	best, score := -1, 0.0
	bare := trimExt(lowerName)
	for i, c := range sorted {
		candidate := strings.ToLower(c.filename())
		s := Similarity(lowerName, candidate)
		if alt := Similarity(bare, trimExt(candidate)) * noExtWeight; alt > s {
			s = alt
		}
		if s > score {
			best, score = i, s
		}
	}
	if best >= 0 && score >= f.MinSimilarity {
		return result(sorted[best], score, MatchFuzzy), true
	}
	return FuzzyMatchResult{}, false
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func result(c Candidate, score float64, matchType MatchType) FuzzyMatchResult {
	return FuzzyMatchResult{
		ID:        c.ID,
		Path:      c.Path,
		Name:      c.filename(),
		Score:     score,
		MatchType: matchType,
		Labels:    c.Labels,
	}
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
