package match

import (
	"strings"

	"github.com/ppiankov/shockeval/internal/textnorm"
)

// StringSimilarity scores how well needle occurs in haystack, in [0, 1].
// Both strings are expected to be normalized.
type StringSimilarity interface {
	Score(needle, haystack string) float64
}

// ExactNormalized scores 1 only when the two strings are identical
type ExactNormalized struct{}

func (ExactNormalized) Score(needle, haystack string) float64 {
	if needle != "" && needle == haystack {
		return 1
	}
	return 0
}

// Substring scores 1 when needle occurs inside haystack.
// With WordBoundary set, the occurrence must not start or end inside a word.
type Substring struct {
	WordBoundary bool
}

func (s Substring) Score(needle, haystack string) float64 {
	if needle == "" {
		return 0
	}
	if s.WordBoundary {
		if textnorm.ContainsPhrase(haystack, needle) {
			return 1
		}
		return 0
	}
	if strings.Contains(haystack, needle) {
		return 1
	}
	return 0
}

// JaroWinkler scores the best Jaro-Winkler similarity between needle and any
// run of haystack words with the same word count as needle
type JaroWinkler struct{}

func (JaroWinkler) Score(needle, haystack string) float64 {
	nw := textnorm.Words(needle)
	hw := textnorm.Words(haystack)
	if len(nw) == 0 || len(hw) == 0 {
		return 0
	}
	target := strings.Join(nw, " ")
	if len(hw) <= len(nw) {
		return JaroWinklerSimilarity(target, strings.Join(hw, " "))
	}

	best := 0.0
	for i := 0; i+len(nw) <= len(hw); i++ {
		// Cheap first-letter filter keeps long chunks tractable.
		if hw[i][0] != nw[0][0] {
			continue
		}
		s := JaroWinklerSimilarity(target, strings.Join(hw[i:i+len(nw)], " "))
		if s > best {
			best = s
			if best == 1 {
				break
			}
		}
	}
	return best
}

// JaroWinklerSimilarity returns the Jaro-Winkler similarity of a and b
func JaroWinklerSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	window := max(len(ra), len(rb))/2 - 1
	if window < 0 {
		window = 0
	}

	matchA := make([]bool, len(ra))
	matchB := make([]bool, len(rb))
	matches := 0
	for i := range ra {
		lo := max(0, i-window)
		hi := min(len(rb), i+window+1)
		for j := lo; j < hi; j++ {
			if matchB[j] || ra[i] != rb[j] {
				continue
			}
			matchA[i], matchB[j] = true, true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range ra {
		if !matchA[i] {
			continue
		}
		for !matchB[k] {
			k++
		}
		if ra[i] != rb[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	jaro := (m/float64(len(ra)) + m/float64(len(rb)) + (m-float64(transpositions)/2)/m) / 3

	prefix := 0
	for i := 0; i < min(4, len(ra), len(rb)); i++ {
		if ra[i] != rb[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*0.1*(1-jaro)
}
