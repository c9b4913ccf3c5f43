package charms

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/charmbot/internal/charm"
)

type LogCharm struct {
	deps Deps
}

func (l *LogCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "log",
		Description: "Review the latest charms executed in this server",
		Usage:       l.deps.Prefix + "log",
		AdminOnly:   true,
		Category:    charm.CategoryModeration,
	}
}

func (l *LogCharm) Run(ctx context.Context, c *charm.Context) error {
	guildID := ""
	if c.Guild != nil {
		guildID = c.Guild.ID
	}

	records := l.deps.Admin.RecentCommands(guildID)
	if len(records) == 0 {
		return c.Reply.Reply(ctx, "No charm logs found.")
	}

	limit := discordMaxMessageLength - codeBlockOverhead
	var b strings.Builder
	fmt.Fprintf(&b, "%-19s\t%-15s\t%s\n", "# Datetime", "# Username", "# Charm")

	// latest first
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		line := fmt.Sprintf("%-19s\t%-15s\t%s%s\n",
			r.Datetime.Format("2006-01-02 15:04:05"), r.Username, l.deps.Prefix, r.Command)
		if b.Len()+len(line) > limit {
			break
		}
		b.WriteString(line)
	}
	return c.Reply.Reply(ctx, codeBlock("md", b.String()))
}
