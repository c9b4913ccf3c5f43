package charms

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/keshon/charmbot/internal/charm"
)

type UserInfoCharm struct {
	deps Deps
}

func (u *UserInfoCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "userinfo",
		Description: "Show a user's rate-limit and security state",
		Usage:       u.deps.Prefix + "userinfo <userId>",
		AdminOnly:   true,
		Category:    charm.CategoryModeration,
	}
}

func (u *UserInfoCharm) Run(ctx context.Context, c *charm.Context) error {
	id, ok := parseUserID(c.Args)
	if !ok {
		return c.Reply.Reply(ctx, "❌ Usage: `"+u.deps.Prefix+"userinfo <userId>`")
	}

	out, err := yaml.Marshal(u.deps.Admin.UserInfo(id))
	if err != nil {
		return fmt.Errorf("marshal user info: %w", err)
	}
	return c.Reply.Reply(ctx, fmt.Sprintf("👤 User `%s`\n%s", id, codeBlock("yaml", string(out))))
}
