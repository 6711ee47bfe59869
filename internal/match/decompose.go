package match

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/shockeval/internal/textnorm"
)

var (
	conjunctionSplit = regexp.MustCompile(`\s*,\s+and\s+|\s+and\s+|\s*&\s*|\s+or\s+|\s*;\s*`)
	parenthetical    = regexp.MustCompile(`\(([^()]*)\)`)

	publicLaw = regexp.MustCompile(`\b(?:public\s+law|pub\.?\s*l\.?(?:\s*no\.?)?|p\.\s*l\.?)\s*(?:no\.?\s*)?(\d{2,3})\s*-\s*(\d{1,4})\b`)
	houseBill = regexp.MustCompile(`\bh\.\s*r\.?\s*(\d{1,5})\b`)
	// Senate bills need the period to avoid matching plural "s".
	senateBill = regexp.MustCompile(`(?:^|[^a-z.])s\.\s*(\d{1,5})\b`)
)

// ConjunctionComponents splits a compound event name into the components
// joined by "and", "&", "or", ";" or ", and". Components shorter than
// minWords words are dropped. Names without a conjunction return nil.
func ConjunctionComponents(name string, minWords int) []string {
	norm := textnorm.Normalize(parenthetical.ReplaceAllString(name, " "))
	parts := conjunctionSplit.Split(norm, -1)
	if len(parts) < 2 {
		return nil
	}

	var out []string
	for _, p := range parts {
		p = strings.Trim(p, " ,.")
		if len(textnorm.Words(p)) >= minWords {
			out = append(out, p)
		}
	}
	return out
}

// ParentheticalVariants returns the name with its parentheticals removed and
// the parenthetical contents themselves, each with at least minWords words.
// Names without parentheses return nil.
func ParentheticalVariants(name string, minWords int) []string {
	norm := textnorm.Normalize(name)
	groups := parenthetical.FindAllStringSubmatch(norm, -1)
	if len(groups) == 0 {
		return nil
	}

	var out []string
	base := strings.TrimSpace(textnorm.Normalize(parenthetical.ReplaceAllString(norm, " ")))
	if len(textnorm.Words(base)) >= minWords {
		out = append(out, strings.Trim(base, " ,."))
	}
	for _, g := range groups {
		inner := strings.TrimSpace(g[1])
		if len(textnorm.Words(inner)) >= minWords {
			out = append(out, inner)
		}
	}
	return out
}

// Identifiers extracts canonical legislative identifiers ("public law 101-508",
// "h.r. 5835", "s. 3209") from normalized text
func Identifiers(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, m := range publicLaw.FindAllStringSubmatch(text, -1) {
		add(fmt.Sprintf("public law %s-%s", m[1], m[2]))
	}
	for _, m := range houseBill.FindAllStringSubmatch(text, -1) {
		add("h.r. " + m[1])
	}
	for _, m := range senateBill.FindAllStringSubmatch(text, -1) {
		add("s. " + m[1])
	}

	sort.Strings(out)
	return out
}

// CanonicalIdentifier normalizes a single configured identifier. parsed is
// false when raw is not a bill or public law number; the normalized string is
// returned in that case.
func CanonicalIdentifier(raw string) (id string, parsed bool) {
	norm := textnorm.Normalize(raw)
	if ids := Identifiers(norm); len(ids) == 1 {
		return ids[0], true
	}
	return norm, false
}
