// Package parser turns the text following the command prefix into an
// Invocation. Two surface syntaxes are accepted, tried in order:
//
//	name[args]     args may be empty and may span lines
//	name args...   args is the trimmed remainder
//
// Names are matched case-insensitively and returned in lower case.
package parser

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnparseable is returned when the text matches neither syntax. Callers
// answer it with an "invalid format" reply, it is not an internal failure.
var ErrUnparseable = errors.New("parser: unparseable invocation")

var (
	bracketForm = regexp.MustCompile(`(?s)^(\w+)\[(.*)\]$`)
	spaceForm   = regexp.MustCompile(`(?s)^(\w+)(?:\s+(.*))?$`)
)

// Invocation is a parsed command call. It is discarded after dispatch.
type Invocation struct {
	Name    string
	ArgsRaw string
	Raw     string
}

// Parse parses text that already had the prefix removed.
func Parse(text string) (Invocation, error) {
	if m := bracketForm.FindStringSubmatch(text); m != nil {
		return Invocation{
			Name:    strings.ToLower(m[1]),
			ArgsRaw: strings.TrimSpace(m[2]),
			Raw:     text,
		}, nil
	}
	if m := spaceForm.FindStringSubmatch(text); m != nil {
		return Invocation{
			Name:    strings.ToLower(m[1]),
			ArgsRaw: strings.TrimSpace(m[2]),
			Raw:     text,
		}, nil
	}
	return Invocation{}, ErrUnparseable
}

// StripPrefix reports whether content starts with prefix and returns the rest.
func StripPrefix(content, prefix string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", false
	}
	return content[len(prefix):], true
}
