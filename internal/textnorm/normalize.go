// Package textnorm normalizes extracted document text for matching.
//
// Normalized text is lower-cased, has typographic quotes and dashes folded to
// ASCII, joins words hyphenated across OCR line breaks, drops markup left over
// from HTML exports, and collapses all whitespace runs to single spaces.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var (
	hyphenBreak = regexp.MustCompile(`([A-Za-z])-[ \t]*\r?\n[ \t]*([A-Za-z])`)
	whitespace  = regexp.MustCompile(`\s+`)
	markupTag   = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>`)
)

var folder = strings.NewReplacer(
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`,
	"\u2018", "'", "\u2019", "'", "\u201a", "'",
	"\u2013", "-", "\u2014", "-", "\u2212", "-", "\u2010", "-", "\u2011", "-",
	"\u00a0", " ", "\u2009", " ", "\u202f", " ",
	"\ufb01", "fi", "\ufb02", "fl", "\ufb00", "ff", "\ufb03", "ffi", "\ufb04", "ffl",
	"\u00ad", "",
)

// Normalize returns the canonical matching form of text
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	if HasMarkup(text) {
		text = StripMarkup(text)
	}
	text = folder.Replace(text)
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = strings.ToLower(text)
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// HasMarkup reports whether text looks like it still carries HTML tags
func HasMarkup(text string) bool {
	return strings.Contains(text, "<") && markupTag.MatchString(text)
}

// StripMarkup extracts visible text from an HTML fragment, skipping scripts and styles
func StripMarkup(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var buf strings.Builder
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skip++
			case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				buf.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr":
				buf.WriteString("\n")
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				buf.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Text())
			}
		}
	}
}

// Words splits normalized text into alphanumeric word tokens
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CountPhrase counts non-overlapping occurrences of phrase in text on word boundaries.
// Both arguments must already be normalized.
func CountPhrase(text, phrase string) int {
	if phrase == "" || len(phrase) > len(text) {
		return 0
	}
	count := 0
	offset := 0
	for {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return count
		}
		start := offset + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			count++
			offset = end
		} else {
			offset = start + 1
		}
		if offset >= len(text) {
			return count
		}
	}
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries
func ContainsPhrase(text, phrase string) bool {
	return CountPhrase(text, phrase) > 0
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(text[i-1])
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	return !isWordByte(text[i])
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b >= 0x80
}
