package charms

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/keshon/charmbot/internal/charm"
)

const (
	maxEmbedTitle       = 256
	maxEmbedDescription = 4096
)

var namedColors = map[string]int{
	"red":     0xFF0000,
	"green":   0x00FF00,
	"blue":    0x0000FF,
	"yellow":  0xFFFF00,
	"purple":  0x800080,
	"pink":    0xFFC0CB,
	"orange":  0xFFA500,
	"black":   0x000000,
	"white":   0xFFFFFF,
	"gray":    0x808080,
	"grey":    0x808080,
	"cyan":    0x00FFFF,
	"magenta": 0xFF00FF,
}

type EmbedCharm struct {
	deps Deps
}

func (e *EmbedCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "embed",
		Description: "Post a custom embed with a title, description and optional color",
		Usage:       e.deps.Prefix + "embed[title|description|color]",
		Cooldown:    3 * time.Second,
		Category:    charm.CategoryUtility,
	}
}

func (e *EmbedCharm) Run(ctx context.Context, c *charm.Context) error {
	if c.Args == "" {
		return c.Reply.Reply(ctx, "❌ Usage: `"+e.deps.Prefix+"embed[title|description|color]`\n"+
			"**Example:** `"+e.deps.Prefix+"embed[My title|Some text|#ff0000]`\n"+
			"**Color (optional):** hex like #ff0000 or a name like red, blue, green")
	}

	parts := strings.Split(c.Args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 {
		return c.Reply.Reply(ctx, "❌ Invalid format. At least a title and a description separated by |")
	}

	title, desc := parts[0], parts[1]
	if utf8.RuneCountInString(title) > maxEmbedTitle {
		return c.Reply.Reply(ctx, "❌ Title too long, 256 characters at most.")
	}
	if utf8.RuneCountInString(desc) > maxEmbedDescription {
		return c.Reply.Reply(ctx, "❌ Description too long, 4096 characters at most.")
	}

	out := charm.Embed{
		Title:       title,
		Description: desc,
		Color:       defaultColor,
		Footer:      "Requested by " + c.Caller.DisplayName,
		Timestamp:   e.deps.Now(),
	}
	if len(parts) > 2 && parts[2] != "" {
		// an unknown color leaves the embed uncolored
		out.Color, _ = ParseColor(parts[2])
	}
	return c.Reply.SendEmbed(ctx, out)
}

// ParseColor accepts a color name, #rrggbb or #rgb (the # is optional).
func ParseColor(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := namedColors[s]; ok {
		return v, true
	}

	hex := strings.TrimPrefix(s, "#")
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
	default:
		return 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(v), true
}
