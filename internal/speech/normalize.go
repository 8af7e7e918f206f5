package speech

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultAcronyms maps written forms to what the synthesizer should pronounce.
var DefaultAcronyms = map[string]string{
	"AI":   "A.I.",
	"API":  "A.P.I.",
	"APIs": "A.P.I.s",
	"UI":   "U.I.",
	"UX":   "U.X.",
	"CV":   "C.V.",
	"HR":   "H.R.",
	"SQL":  "sequel",
	"e.g.": "for example",
	"i.e.": "that is",
	"etc.": "et cetera",
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	codeFenceRe  = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9_-]*\\s*$")
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headerRe     = regexp.MustCompile(`(?m)^\s*#{1,6}\s*`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*(?:[-*+•]|\d+[.)])\s+`)
	emphasisRe   = regexp.MustCompile("\\*\\*|__|~~|[*`]")
	blockquoteRe = regexp.MustCompile(`(?m)^\s*>\s?`)
)

// Normalizer turns model- or config-authored text into plain speakable text.
type Normalizer struct {
	acronyms  map[string]string
	acronymRe *regexp.Regexp
}

// NewNormalizer builds a normalizer. A nil map selects DefaultAcronyms; an
// empty map disables expansion.
func NewNormalizer(acronyms map[string]string) *Normalizer {
	if acronyms == nil {
		acronyms = DefaultAcronyms
	}

	n := &Normalizer{acronyms: acronyms}
	if len(acronyms) == 0 {
		return n
	}

	keys := make([]string, 0, len(acronyms))
	for k := range acronyms {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	// longest first so "APIs" wins over "API"
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		pattern := regexp.QuoteMeta(k)
		if first, _ := utf8.DecodeRuneInString(k); isWordRune(first) {
			pattern = `\b` + pattern
		}
		if last, _ := utf8.DecodeLastRuneInString(k); isWordRune(last) {
			pattern += `\b`
		}
		parts = append(parts, pattern)
	}
	n.acronymRe = regexp.MustCompile(strings.Join(parts, "|"))

	return n
}

// Normalize strips markup, expands acronyms and collapses whitespace.
func (n *Normalizer) Normalize(text string) string {
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = codeFenceRe.ReplaceAllString(text, " ")
	text = linkRe.ReplaceAllString(text, "$1")
	text = headerRe.ReplaceAllString(text, "")
	text = blockquoteRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`).Replace(text)

	if n.acronymRe != nil {
		text = n.acronymRe.ReplaceAllStringFunc(text, func(match string) string {
			if spoken, ok := n.acronyms[match]; ok {
				return spoken
			}
			return match
		})
	}

	return strings.Join(strings.Fields(text), " ")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
