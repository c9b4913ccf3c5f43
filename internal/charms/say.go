package charms

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/keshon/charmbot/internal/charm"
)

const maxSayLength = 1900

type SayCharm struct {
	deps Deps
}

func (s *SayCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "say",
		Description: "Make the bot post a message in this channel",
		Usage:       s.deps.Prefix + "say <text>",
		Cooldown:    2 * time.Second,
		Category:    charm.CategoryUtility,
	}
}

func (s *SayCharm) Run(ctx context.Context, c *charm.Context) error {
	if c.Args == "" {
		return c.Reply.Reply(ctx, "❌ Usage: `"+s.deps.Prefix+"say <text>`")
	}
	if utf8.RuneCountInString(c.Args) > maxSayLength {
		return c.Reply.Reply(ctx, "❌ Message too long, 1900 characters at most.")
	}
	return c.Reply.Send(ctx, c.Args)
}
