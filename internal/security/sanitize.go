package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	forbiddenCharsRe = regexp.MustCompile(forbiddenChars)
	zeroWidthRe      = regexp.MustCompile("[\u200B-\u200D\u2060\uFEFF\u180E]")
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// Sanitize is the non-failing counterpart of Validate: it returns a
// best-effort cleaned copy of text. Zero-width characters and the forbidden
// character class are removed, the text is NFKC-normalized, whitespace runs
// collapse to one space, and the result is cut to DefaultMaxLength runes.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	s := zeroWidthRe.ReplaceAllString(text, "")
	s = norm.NFKC.String(s)
	s = forbiddenCharsRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncateRunes(s, DefaultMaxLength)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
