package dedup

import (
	"net/url"
	"strings"
	"unicode"
)

const minTokenLength = 3

// stopWords holds common English function words plus news-wire noise:
// announcement verbs and generic qualifiers that carry no story identity,
// and the publisher's own brand name.
var stopWords = map[string]struct{}{
	// function words
	"the": {}, "and": {}, "are": {}, "was": {}, "were": {}, "been": {},
	"being": {}, "have": {}, "has": {}, "had": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "can": {}, "shall": {}, "for": {}, "with": {}, "from": {},
	"into": {}, "through": {}, "during": {}, "before": {}, "after": {},
	"above": {}, "below": {}, "but": {}, "nor": {}, "not": {}, "yet": {},
	"both": {}, "either": {}, "neither": {}, "each": {}, "every": {},
	"all": {}, "any": {}, "few": {}, "more": {}, "most": {}, "other": {},
	"some": {}, "such": {}, "only": {}, "own": {}, "same": {}, "than": {},
	"too": {}, "very": {}, "just": {}, "how": {}, "what": {}, "which": {},
	"who": {}, "whom": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"its": {}, "about": {}, "out": {}, "one": {}, "two": {}, "also": {},
	"like": {}, "get": {}, "use": {}, "over": {}, "under": {}, "while": {},
	// news-wire noise
	"new": {}, "news": {}, "latest": {}, "breaking": {}, "exclusive": {},
	"live": {}, "update": {}, "updates": {}, "report": {}, "reports": {},
	"says": {}, "said": {}, "launch": {}, "launches": {}, "launched": {},
	"unveil": {}, "unveils": {}, "unveiled": {}, "announce": {},
	"announces": {}, "announced": {}, "introduce": {}, "introduces": {},
	"introduced": {}, "reveal": {}, "reveals": {}, "revealed": {},
	"release": {}, "releases": {}, "released": {}, "watch": {}, "video": {},
	// publisher brand
	"quilt": {},
}

// NormalizeText lower-cases the input, replaces every character outside
// letters, digits, underscore and whitespace with a space, collapses runs
// of whitespace and trims. It is total: malformed input normalizes to an
// empty or partial string, never an error.
func NormalizeText(text string) string {
	lowered := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lowered))
	lastSpace := true
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokenize splits normalized text on whitespace and drops short tokens and
// stop words. Order is preserved; repeated tokens stay repeated, which
// matters for term-frequency cosine vectors but not for Jaccard.
func Tokenize(text string) []string {
	fields := strings.Fields(NormalizeText(text))
	if len(fields) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) < minTokenLength {
			continue
		}
		if _, noise := stopWords[field]; noise {
			continue
		}
		tokens = append(tokens, field)
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// CanonicalizeLink strips the query string and fragment from a URL,
// returning scheme://host/path. Inputs that do not parse as an absolute
// URL are returned unchanged so that downstream equality checks degrade to
// raw string comparison instead of failing the caller.
func CanonicalizeLink(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return raw
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.Path
}
