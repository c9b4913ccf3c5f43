package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/keshon/charmbot/internal/ratelimit"
)

// User-facing replies. They are fixed per error kind and never include the
// matched rule, the raw input or an internal error message.

func invalidFormatMessage(prefix string) string {
	return fmt.Sprintf("❌ Invalid format. Use: `%scharm arguments` or `%scharm[arguments]`", prefix, prefix)
}

// UserMessage translates a dispatch error into the reply shown to the caller.
func UserMessage(err error, prefix string) string {
	var de *Error
	if !errors.As(err, &de) {
		return "❌ Something went wrong while running the command."
	}

	switch de.Kind {
	case KindNotFound:
		var b strings.Builder
		fmt.Fprintf(&b, "❌ Charm `%s` not found.", de.Command)
		if len(de.Suggestions) > 0 {
			b.WriteString("\n\n💡 Did you mean:")
			for _, s := range de.Suggestions {
				fmt.Fprintf(&b, "\n• `%s%s`", prefix, s)
			}
		}
		fmt.Fprintf(&b, "\n\n📋 Use `%shelp` to see all charms.", prefix)
		return b.String()

	case KindPermissionDenied:
		return "🚫 You don't have permission to use this charm."

	case KindRateLimited:
		return rateLimitedMessage(de)

	case KindSecurityViolation:
		return "⚠️ Your input was rejected for security reasons."

	default:
		return "❌ Something went wrong while running the command."
	}
}

func rateLimitedMessage(de *Error) string {
	le := &ratelimit.LimitError{Kind: de.Limit, Remaining: de.RetryAfter}
	switch de.Limit {
	case ratelimit.KindBan:
		return fmt.Sprintf("⛔ You are temporarily banned from using charms. Try again in %d min.", le.Minutes())
	case ratelimit.KindCooldown:
		return fmt.Sprintf("⏰ Charm `%s` is on cooldown. Wait %ds.", de.Command, le.Seconds())
	default:
		return fmt.Sprintf("⏰ Too many commands. Try again in %ds.", le.Seconds())
	}
}
