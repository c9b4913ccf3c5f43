package charms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/charmbot/internal/charm"
)

type HelpCharm struct {
	deps Deps
}

func (h *HelpCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "help",
		Description: "List available charms or show details for one",
		Usage:       h.deps.Prefix + "help [charm]",
		Cooldown:    3 * time.Second,
		Category:    charm.CategoryInformation,
	}
}

func (h *HelpCharm) Run(ctx context.Context, c *charm.Context) error {
	if name := strings.ToLower(strings.TrimSpace(c.Args)); name != "" {
		return h.details(ctx, c, name)
	}

	names := c.Registry.ListNames()
	if len(names) == 0 {
		return c.Reply.Reply(ctx, "❌ No charms are registered right now.")
	}

	stats := h.deps.Admin.Stats()
	embed := charm.Embed{
		Title: "🔮 Charms",
		Description: fmt.Sprintf("Available charms: **%d**\nUse `%shelp charm` for details.",
			len(names), h.deps.Prefix),
		Color:     defaultColor,
		Footer:    fmt.Sprintf("Requested by %s | Uptime: %s", c.Caller.DisplayName, formatUptime(stats.Uptime)),
		Timestamp: h.deps.Now(),
	}

	for _, cat := range charm.Categories() {
		entries := c.Registry.ListByCategory(cat)
		if len(entries) == 0 {
			continue
		}
		list := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Metadata.Name
			if e.Metadata.AdminOnly && !c.Caller.IsAdmin {
				name = "~~" + name + "~~"
			}
			list = append(list, "`"+name+"`")
		}
		embed.Fields = append(embed.Fields, charm.EmbedField{
			Name:  categoryEmoji(cat) + " " + strings.ToUpper(string(cat[:1])) + string(cat[1:]),
			Value: strings.Join(list, ", "),
		})
	}

	embed.Fields = append(embed.Fields,
		charm.EmbedField{Name: "💡 Tip", Value: "Struck-through charms need administrator rights."},
		charm.EmbedField{
			Name:   "📊 Stats",
			Value:  fmt.Sprintf("Commands executed: **%d**", stats.CommandsExecuted),
			Inline: true,
		},
	)
	return c.Reply.SendEmbed(ctx, embed)
}

func (h *HelpCharm) details(ctx context.Context, c *charm.Context, name string) error {
	e, ok := c.Registry.Get(name)
	if !ok {
		return c.Reply.Reply(ctx, fmt.Sprintf("❌ Charm `%s` not found.", name))
	}

	access := "Everyone"
	if e.Metadata.AdminOnly {
		access = "Admins only"
	}
	return c.Reply.SendEmbed(ctx, charm.Embed{
		Title:       "🔮 Charm: " + e.Metadata.Name,
		Description: e.Metadata.Description,
		Color:       defaultColor,
		Fields: []charm.EmbedField{
			{Name: "📖 Usage", Value: "`" + e.Metadata.Usage + "`"},
			{Name: "📂 Category", Value: string(e.Metadata.Category), Inline: true},
			{Name: "⏱️ Cooldown", Value: fmt.Sprintf("%ds", int(e.Metadata.Cooldown.Seconds())), Inline: true},
			{Name: "🛡️ Access", Value: access, Inline: true},
		},
		Footer:    "Requested by " + c.Caller.DisplayName,
		Timestamp: h.deps.Now(),
	})
}

func categoryEmoji(cat charm.Category) string {
	switch cat {
	case charm.CategoryUtility:
		return "🛠️"
	case charm.CategoryFun:
		return "🎮"
	case charm.CategoryModeration:
		return "🛡️"
	case charm.CategoryInformation:
		return "📋"
	default:
		return "❓"
	}
}
