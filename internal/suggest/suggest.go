// Package suggest offers canonical-code candidates for free-text labels
// awaiting manual review. It indexes reference display names with a
// symmetric-delete dictionary so that a typo'd label still surfaces the
// right occupation, and falls back to substring containment for partial
// answers ("Informatiker" for "Informatiker/in EFZ").
package suggest

import (
	"sort"
	"strings"

	"github.com/survey-pipeline/internal/refdata"
)

// Candidate is one suggested code for a pending label.
type Candidate struct {
	Code int
	Name string

	// Distance is the Damerau-Levenshtein distance between the normalized
	// label and the normalized name; -1 for containment-only matches.
	Distance int

	// Population ranks candidates of equal distance: bigger occupations
	// first.
	Population float64
}

// Config holds the index parameters.
type Config struct {
	MaxEditDistance int
	MinLabelLength  int
	MaxCandidates   int
}

// DefaultConfig returns the standard parameters: distance 2 catches most
// typos without false positives, and very short labels are containment-only.
func DefaultConfig() Config {
	return Config{
		MaxEditDistance: 2,
		MinLabelLength:  3,
		MaxCandidates:   5,
	}
}

type indexedName struct {
	code       int
	name       string
	normalized string
	population float64
}

// Index is the built suggestion index over a reference table.
type Index struct {
	names   []indexedName
	byNorm  map[string]int
	deletes map[string][]int
	cfg     Config
}

// BuildIndex indexes every display name of the built reference table,
// sentinels included so review can assign them directly.
func BuildIndex(ref map[int]refdata.Characteristic, cfg Config) *Index {
	ix := &Index{
		byNorm:  make(map[string]int),
		deletes: make(map[string][]int),
		cfg:     cfg,
	}

	codes := make([]int, 0, len(ref))
	for code := range ref {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	for _, code := range codes {
		c := ref[code]
		if c.DisplayName == "" {
			continue
		}
		entry := indexedName{
			code:       code,
			name:       c.DisplayName,
			normalized: Normalize(c.DisplayName),
		}
		if c.TotalPopulation != nil {
			entry.population = *c.TotalPopulation
		}

		pos := len(ix.names)
		ix.names = append(ix.names, entry)
		ix.byNorm[entry.normalized] = pos

		for _, del := range generateDeletes(entry.normalized, cfg.MaxEditDistance) {
			ix.deletes[del] = append(ix.deletes[del], pos)
		}
	}

	return ix
}

// Normalize uppercases, trims and collapses inner whitespace.
func Normalize(label string) string {
	fields := strings.Fields(strings.ToUpper(label))
	return strings.Join(fields, " ")
}

// Suggest returns ranked candidates for a pending label: exact normalized
// match first, then fuzzy matches by edit distance, then containment
// matches. At most cfg.MaxCandidates are returned.
func (ix *Index) Suggest(label string) []Candidate {
	norm := Normalize(label)
	if norm == "" {
		return nil
	}

	if pos, ok := ix.byNorm[norm]; ok {
		e := ix.names[pos]
		return []Candidate{{Code: e.code, Name: e.name, Distance: 0, Population: e.population}}
	}

	seen := make(map[int]bool)
	var fuzzy []Candidate

	if len(norm) >= ix.cfg.MinLabelLength {
		probes := generateDeletes(norm, ix.cfg.MaxEditDistance)
		probes = append(probes, norm)
		for _, probe := range probes {
			for _, pos := range ix.deletes[probe] {
				if seen[pos] {
					continue
				}
				seen[pos] = true
				e := ix.names[pos]
				if dist := editDistance(norm, e.normalized, ix.cfg.MaxEditDistance); dist >= 0 {
					fuzzy = append(fuzzy, Candidate{Code: e.code, Name: e.name, Distance: dist, Population: e.population})
				}
			}
			if pos, ok := ix.byNorm[probe]; ok && !seen[pos] {
				seen[pos] = true
				e := ix.names[pos]
				if dist := editDistance(norm, e.normalized, ix.cfg.MaxEditDistance); dist >= 0 {
					fuzzy = append(fuzzy, Candidate{Code: e.code, Name: e.name, Distance: dist, Population: e.population})
				}
			}
		}
	}

	sort.Slice(fuzzy, func(i, j int) bool {
		if fuzzy[i].Distance != fuzzy[j].Distance {
			return fuzzy[i].Distance < fuzzy[j].Distance
		}
		if fuzzy[i].Population != fuzzy[j].Population {
			return fuzzy[i].Population > fuzzy[j].Population
		}
		return fuzzy[i].Code < fuzzy[j].Code
	})

	// Containment pass for partial answers, ranked after fuzzy matches.
	if len(norm) >= ix.cfg.MinLabelLength {
		var contains []Candidate
		for pos, e := range ix.names {
			if seen[pos] {
				continue
			}
			if strings.Contains(e.normalized, norm) || strings.Contains(norm, e.normalized) {
				contains = append(contains, Candidate{Code: e.code, Name: e.name, Distance: -1, Population: e.population})
			}
		}
		sort.Slice(contains, func(i, j int) bool {
			if contains[i].Population != contains[j].Population {
				return contains[i].Population > contains[j].Population
			}
			return contains[i].Code < contains[j].Code
		})
		fuzzy = append(fuzzy, contains...)
	}

	if len(fuzzy) > ix.cfg.MaxCandidates {
		fuzzy = fuzzy[:ix.cfg.MaxCandidates]
	}
	return fuzzy
}

// generateDeletes produces all delete variants of a term within maxDistance.
func generateDeletes(term string, maxDistance int) []string {
	if maxDistance <= 0 || len(term) == 0 {
		return nil
	}

	deletes := make(map[string]bool)
	var recurse func(term string, distance int)
	recurse = func(term string, distance int) {
		if distance <= 0 || len(term) <= 1 {
			return
		}
		for i := 0; i < len(term); i++ {
			del := term[:i] + term[i+1:]
			if !deletes[del] {
				deletes[del] = true
				recurse(del, distance-1)
			}
		}
	}
	recurse(term, maxDistance)

	result := make([]string, 0, len(deletes))
	for del := range deletes {
		result = append(result, del)
	}
	sort.Strings(result)
	return result
}

// editDistance computes the Damerau-Levenshtein distance between two
// strings, returning -1 when it exceeds maxDistance.
func editDistance(a, b string, maxDistance int) int {
	lenA, lenB := len(a), len(b)

	diff := lenA - lenB
	if diff < 0 {
		diff = -diff
	}
	if diff > maxDistance {
		return -1
	}
	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	if lenA > lenB {
		a, b = b, a
		lenA, lenB = lenB, lenA
	}

	prevPrev := make([]int, lenA+1)
	prev := make([]int, lenA+1)
	curr := make([]int, lenA+1)

	for i := 0; i <= lenA; i++ {
		prev[i] = i
	}

	for j := 1; j <= lenB; j++ {
		curr[0] = j
		minDist := j

		for i := 1; i <= lenA; i++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}

			curr[i] = prev[i] + 1
			if v := curr[i-1] + 1; v < curr[i] {
				curr[i] = v
			}
			if v := prev[i-1] + cost; v < curr[i] {
				curr[i] = v
			}

			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if v := prevPrev[i-2] + cost; v < curr[i] {
					curr[i] = v
				}
			}

			if curr[i] < minDist {
				minDist = curr[i]
			}
		}

		if minDist > maxDistance {
			return -1
		}

		prevPrev, prev, curr = prev, curr, prevPrev
	}

	if prev[lenA] > maxDistance {
		return -1
	}
	return prev[lenA]
}
