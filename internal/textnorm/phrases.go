package textnorm

import (
	"sort"
	"strings"
)

// Span is a byte range [Start, End) of normalized text
type Span struct {
	Start int
	End   int
}

// PhraseSpans returns the word-bounded occurrences of phrases in text, with
// overlaps resolved in favor of the earliest and then the longest occurrence,
// so "tax cut" is not also counted as "tax". Arguments must be normalized.
func PhraseSpans(text string, phrases []string) []Span {
	var all []Span
	for _, p := range phrases {
		if p == "" || len(p) > len(text) {
			continue
		}
		offset := 0
		for offset < len(text) {
			i := strings.Index(text[offset:], p)
			if i < 0 {
				break
			}
			start := offset + i
			end := start + len(p)
			if boundaryBefore(text, start) && boundaryAfter(text, end) {
				all = append(all, Span{Start: start, End: end})
			}
			offset = start + 1
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End > all[j].End
	})

	var out []Span
	lastEnd := 0
	for _, s := range all {
		if s.Start < lastEnd {
			continue
		}
		out = append(out, s)
		lastEnd = s.End
	}
	return out
}

// CountPhrases counts non-overlapping occurrences of any of phrases in text
func CountPhrases(text string, phrases []string) int {
	return len(PhraseSpans(text, phrases))
}

// Excerpt returns the window of at most maxWords words of text holding the
// most phrase occurrences, the earliest such window on ties. Text that fits
// is returned unchanged. phrases must be normalized.
func Excerpt(text string, phrases []string, maxWords int) string {
	words := strings.Fields(text)
	if maxWords <= 0 || len(words) <= maxWords {
		return text
	}

	var b strings.Builder
	starts := make([]int, len(words))
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		starts[i] = b.Len()
		b.WriteString(Normalize(w))
	}

	// prefix[i] is the number of occurrences starting before word i
	prefix := make([]int, len(words)+1)
	perWord := make([]int, len(words))
	for _, s := range PhraseSpans(b.String(), phrases) {
		w := sort.Search(len(starts), func(i int) bool { return starts[i] > s.Start }) - 1
		if w >= 0 {
			perWord[w]++
		}
	}
	for i, n := range perWord {
		prefix[i+1] = prefix[i] + n
	}

	best, bestHits := 0, -1
	for start := 0; start+maxWords <= len(words); start++ {
		if h := prefix[start+maxWords] - prefix[start]; h > bestHits {
			best, bestHits = start, h
		}
	}
	return strings.Join(words[best:best+maxWords], " ")
}
