package charms

import (
	"context"
	"fmt"

	"github.com/keshon/charmbot/internal/charm"
)

type UnbanCharm struct {
	deps Deps
}

func (u *UnbanCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "unban",
		Description: "Lift a temporary rate-limit ban and clear the user's violations",
		Usage:       u.deps.Prefix + "unban <userId>",
		AdminOnly:   true,
		Category:    charm.CategoryModeration,
	}
}

func (u *UnbanCharm) Run(ctx context.Context, c *charm.Context) error {
	id, ok := parseUserID(c.Args)
	if !ok {
		return c.Reply.Reply(ctx, "❌ Usage: `"+u.deps.Prefix+"unban <userId>`")
	}
	if !u.deps.Admin.UnbanUser(id, c.Caller.ID) {
		return c.Reply.Reply(ctx, fmt.Sprintf("ℹ️ User `%s` is not banned.", id))
	}
	return c.Reply.Reply(ctx, fmt.Sprintf("✅ User `%s` unbanned.", id))
}
