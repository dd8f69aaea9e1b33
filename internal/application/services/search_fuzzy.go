package services

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/ghxstship/search-service/internal/domain/entities"
)

// Fuzzy matching tuning. Scores run from 0 (perfect) to 1 (no match).
const (
	DefaultFuzzyThreshold = 0.3
	fuzzyMinMatchLength   = 2
	fuzzyLocation         = 0
	fuzzyDistance         = 100
)

// FieldMatch is the best matching span of the query inside one field, in rune offsets
type FieldMatch struct {
	Field string
	Value string
	Start int
	End   int // inclusive
	Score float64
}

// ScoredResult is one fuzzy hit
type ScoredResult[T any] struct {
	Item    T
	Score   float64
	Matches []FieldMatch
}

// FuzzyMatcher scores records against a query by edit distance plus distance
// of the match from the start of the field.
type FuzzyMatcher struct {
	threshold float64
}

// NewFuzzyMatcher creates a matcher. threshold <= 0 uses DefaultFuzzyThreshold.
func NewFuzzyMatcher(threshold float64) *FuzzyMatcher {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &FuzzyMatcher{threshold: threshold}
}

// Rank returns the matching items, best score first. Equal scores keep input order.
func Rank[T any](m *FuzzyMatcher, items []T, query string, keys []string, mapper RecordMapper[T]) []ScoredResult[T] {
	pattern := lowerRunes(query)
	if len(pattern) < fuzzyMinMatchLength {
		return nil
	}

	var scored []ScoredResult[T]
	for _, item := range items {
		fields := keys
		if len(fields) == 0 {
			fields = mapper.FieldNames(item)
		}

		best := math.Inf(1)
		var matches []FieldMatch
		for _, field := range fields {
			v, ok := mapper.Field(item, field)
			if !ok || v == nil {
				continue
			}
			text := entities.FormatValue(v)
			score, start, end, ok := m.scoreText(pattern, text)
			if !ok {
				continue
			}
			matches = append(matches, FieldMatch{Field: field, Value: text, Start: start, End: end, Score: score})
			if score < best {
				best = score
			}
		}

		if len(matches) > 0 {
			scored = append(scored, ScoredResult[T]{Item: item, Score: best, Matches: matches})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score < scored[j].Score
	})

	return scored
}

// scoreText finds the best placement of pattern in text. Exact substrings cost
// only their proximity; otherwise windows around the pattern length are scored
// by edit distance. Windows starting too far in to ever pass are skipped.
func (m *FuzzyMatcher) scoreText(pattern []rune, text string) (score float64, start, end int, ok bool) {
	t := lowerRunes(text)
	plen := len(pattern)

	if idx := runeIndex(t, pattern); idx >= 0 {
		score = proximity(idx)
		if score <= m.threshold {
			return score, idx, idx + plen - 1, true
		}
	}

	p := string(pattern)
	best, bestStart, bestLen := math.Inf(1), -1, 0

	if len(t) < plen {
		if len(t) >= fuzzyMinMatchLength {
			d := levenshtein.ComputeDistance(p, string(t))
			best, bestStart, bestLen = float64(d)/float64(plen), 0, len(t)
		}
	} else {
		for i := 0; i+fuzzyMinMatchLength <= len(t); i++ {
			prox := proximity(i)
			if prox > m.threshold {
				break
			}
			for _, l := range []int{plen - 1, plen, plen + 1} {
				if l < fuzzyMinMatchLength || i+l > len(t) {
					continue
				}
				d := levenshtein.ComputeDistance(p, string(t[i:i+l]))
				s := float64(d)/float64(plen) + prox
				if s < best {
					best, bestStart, bestLen = s, i, l
				}
			}
		}
	}

	if bestStart < 0 || best > m.threshold {
		return 0, 0, 0, false
	}
	return best, bestStart, bestStart + bestLen - 1, true
}

// fuzzyHighlights renders each field match with surrounding context
func fuzzyHighlights(matches []FieldMatch) []string {
	out := make([]string, 0, len(matches))
	for _, fm := range matches {
		r := []rune(fm.Value)
		from := fm.Start - highlightRadius
		if from < 0 {
			from = 0
		}
		to := fm.End + 1 + highlightRadius
		if to > len(r) {
			to = len(r)
		}
		out = append(out, string(r[from:to]))
	}
	return out
}

func proximity(index int) float64 {
	d := index - fuzzyLocation
	if d < 0 {
		d = -d
	}
	return float64(d) / fuzzyDistance
}

func lowerRunes(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

func runeIndex(text, pattern []rune) int {
	idx := strings.Index(string(text), string(pattern))
	if idx < 0 {
		return -1
	}
	return len([]rune(string(text)[:idx]))
}
