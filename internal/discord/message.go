package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/charmbot/internal/dispatch"
)

// translate converts a gateway message into the engine's transport-neutral
// form.
func translate(m *discordgo.Message, selfID, guildName string, isAdmin bool) dispatch.Message {
	msg := dispatch.Message{
		AuthorID:    m.Author.ID,
		AuthorName:  displayName(m),
		AuthorIsBot: m.Author.Bot,
		IsAdmin:     isAdmin,
		GuildID:     m.GuildID,
		GuildName:   guildName,
		Content:     m.Content,
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			msg.MentionsBot = true
			break
		}
	}
	return msg
}

// displayName prefers the guild nickname, then the global display name.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
