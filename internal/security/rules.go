package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Reason classifies why a text was rejected. It is logged and kept on the
// Violation but never echoed to the user verbatim.
type Reason string

const (
	ReasonTooLong        Reason = "too_long"
	ReasonForbiddenChars Reason = "forbidden_chars"
	ReasonSuspicious     Reason = "suspicious_pattern"
	ReasonSuspiciousURL  Reason = "suspicious_url"
	ReasonMentionFlood   Reason = "mention_flood"
	ReasonEmojiFlood     Reason = "emoji_flood"
	ReasonRepeatedChars  Reason = "repeated_chars"
	ReasonSourceTooLarge Reason = "source_too_large"
	ReasonDangerousCode  Reason = "dangerous_code"
	ReasonBlocked        Reason = "blocked"
)

// Describe returns the short human wording of a reason.
func (r Reason) Describe() string {
	switch r {
	case ReasonTooLong:
		return "argument too long"
	case ReasonForbiddenChars:
		return "argument contains forbidden characters"
	case ReasonSuspicious:
		return "suspicious pattern detected"
	case ReasonSuspiciousURL:
		return "suspicious URL"
	case ReasonMentionFlood:
		return "too many mentions"
	case ReasonEmojiFlood:
		return "too many emojis"
	case ReasonRepeatedChars:
		return "repeated characters (spam)"
	case ReasonSourceTooLarge:
		return "charm source too large"
	case ReasonDangerousCode:
		return "charm source contains a dangerous construct"
	case ReasonBlocked:
		return "user blocked after repeated violations"
	default:
		return string(r)
	}
}

// Rule is one row of a detection table. With Limit == 0 the rule fires on the
// first match; with Limit > 0 it fires once the pattern matches more than
// Limit times.
type Rule struct {
	Name    string
	Reason  Reason
	Pattern *regexp2.Regexp
	Limit   int
}

// Matches reports whether the rule fires on text. A regex timeout counts as a
// match.
func (r Rule) Matches(text string) (bool, error) {
	if r.Limit <= 0 {
		return r.Pattern.MatchString(text)
	}
	n := 0
	m, err := r.Pattern.FindStringMatch(text)
	for m != nil && err == nil {
		n++
		if n > r.Limit {
			return true, nil
		}
		m, err = r.Pattern.FindNextMatch(m)
	}
	return false, err
}

const matchTimeout = 100 * time.Millisecond

func rule(name string, reason Reason, expr string, limit int) Rule {
	return ruleWith(name, reason, expr, limit, regexp2.IgnoreCase|regexp2.Singleline)
}

// ruleWith compiles expr with explicit options. Rules with backreferences
// need case-sensitive matching so that "aA" is two different characters.
func ruleWith(name string, reason Reason, expr string, limit int, opts regexp2.RegexOptions) Rule {
	re := regexp2.MustCompile(expr, opts)
	re.MatchTimeout = matchTimeout
	return Rule{Name: name, Reason: reason, Pattern: re, Limit: limit}
}

// forbiddenChars is the markup/script-relevant punctuation class.
const forbiddenChars = "[<>'\"&;(){}\\[\\]\\\\`$]"

// suspiciousHosts are link shorteners and IP loggers.
var suspiciousHosts = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "ow.ly", "is.gd", "cutt.ly",
	"shorturl.at", "rb.gy", "t.co", "tiny.cc", "grabify.link",
	"iplogger.org", "iplogger.com", "iplogger.ru", "2no.co", "yip.su",
	"blasze.tk", "ps3cfw.com", "bmwforum.co", "leancoding.co",
	"spottyfly.com", "stopify.co", "lovebird.guru", "trulove.guru",
	"dateing.club", "shrekis.life", "headshot.monster", "screenshare.host",
	"imageshare.best", "freegiftcards.co",
}

func hostPattern(hosts []string) string {
	quoted := make([]string, len(hosts))
	for i, h := range hosts {
		quoted[i] = strings.ReplaceAll(h, ".", `\.`)
	}
	return `(?<![\w-])(?:` + strings.Join(quoted, "|") + `)(?![\w-])`
}

// InputRules is the ordered table applied to user-supplied argument text
// after the length check.
func InputRules() []Rule {
	return []Rule{
		rule("forbidden-chars", ReasonForbiddenChars, forbiddenChars, 0),

		rule("javascript-uri", ReasonSuspicious, `javascript\s*:`, 0),
		rule("vbscript-uri", ReasonSuspicious, `vbscript\s*:`, 0),
		rule("data-html-uri", ReasonSuspicious, `data\s*:\s*text/html`, 0),
		rule("script-tag", ReasonSuspicious, `<\s*/?\s*script`, 0),
		rule("event-handler", ReasonSuspicious, `\bon(?:load|error|click|focus|blur|submit|change|input|key\w+|mouse\w+)\s*=`, 0),
		rule("eval-call", ReasonSuspicious, `\beval\s*\(`, 0),
		rule("function-literal", ReasonSuspicious, `\bfunction\s*\(`, 0),
		rule("require-call", ReasonSuspicious, `\brequire\s*\(`, 0),
		rule("import-statement", ReasonSuspicious, `\bimport\s+`, 0),
		rule("proto-access", ReasonSuspicious, `__proto__`, 0),
		rule("constructor-access", ReasonSuspicious, `constructor`, 0),
		rule("document-cookie", ReasonSuspicious, `document\s*\.\s*cookie`, 0),
		rule("path-traversal", ReasonSuspicious, `\.\.[/\\]`, 0),
		rule("sql-union-select", ReasonSuspicious, `\bunion\s+(?:all\s+)?select\b`, 0),
		rule("sql-drop", ReasonSuspicious, `\bdrop\s+(?:table|database)\b`, 0),
		rule("sql-insert", ReasonSuspicious, `\binsert\s+into\b`, 0),
		rule("sql-delete", ReasonSuspicious, `\bdelete\s+from\b`, 0),
		rule("sql-tautology", ReasonSuspicious, `\bor\s+1\s*=\s*1\b`, 0),

		rule("suspicious-host", ReasonSuspiciousURL, hostPattern(suspiciousHosts), 0),

		rule("mention-flood", ReasonMentionFlood, `<@[!&]?\d+>|@everyone\b|@here\b`, 5),
		rule("emoji-flood", ReasonEmojiFlood, `<a?:\w{2,32}:\d+>|:[a-z]\w{1,31}:`, 10),
		ruleWith("repeated-char", ReasonRepeatedChars, `(.)\1{20,}`, 0, regexp2.Singleline),
	}
}

// CodeRules is the table applied to a charm's source text at registration.
// It is deliberately separate from InputRules: ordinary words in source code
// must not trip the user-input denylist.
func CodeRules() []Rule {
	return []Rule{
		rule("process-exec", ReasonDangerousCode, `"os/exec"|\bexec\.Command(?:Context)?\s*\(`, 0),
		rule("raw-syscall", ReasonDangerousCode, `"syscall"|"golang\.org/x/sys/unix"`, 0),
		rule("unsafe-import", ReasonDangerousCode, `"unsafe"`, 0),
		rule("plugin-load", ReasonDangerousCode, `"plugin"|\bplugin\.Open\s*\(`, 0),
		rule("recursive-delete", ReasonDangerousCode, `\bos\.RemoveAll\s*\(`, 0),
		rule("raw-listener", ReasonDangerousCode, `\bnet\.Listen(?:Packet|TCP|UDP)?\s*\(`, 0),
	}
}

func checkRules(rules []Rule) error {
	for _, r := range rules {
		if r.Pattern == nil {
			return fmt.Errorf("rule %q has no pattern", r.Name)
		}
		if r.Reason == "" {
			return fmt.Errorf("rule %q has no reason", r.Name)
		}
	}
	return nil
}
