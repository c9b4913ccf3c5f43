package charms

import (
	"context"
	"fmt"

	"github.com/keshon/charmbot/internal/charm"
)

type ResetCharm struct {
	deps Deps
}

func (r *ResetCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "reset",
		Description: "Clear a user's security violation record",
		Usage:       r.deps.Prefix + "reset <userId>",
		AdminOnly:   true,
		Category:    charm.CategoryModeration,
	}
}

func (r *ResetCharm) Run(ctx context.Context, c *charm.Context) error {
	id, ok := parseUserID(c.Args)
	if !ok {
		return c.Reply.Reply(ctx, "❌ Usage: `"+r.deps.Prefix+"reset <userId>`")
	}
	if !r.deps.Admin.ResetSecurity(id, c.Caller.ID) {
		return c.Reply.Reply(ctx, fmt.Sprintf("ℹ️ User `%s` has no security record.", id))
	}
	return c.Reply.Reply(ctx, fmt.Sprintf("✅ Security record of `%s` cleared.", id))
}
