package discord

import (
	"github.com/bwmarrin/discordgo"
)

// hasAdminRights reports whether the member owns the guild or holds a role
// with the Administrator permission. Only cached state is consulted.
func hasAdminRights(st *discordgo.State, guildID, userID string, roles []string) bool {
	if st == nil {
		return false
	}
	guild, err := st.Guild(guildID)
	if err != nil || guild == nil {
		return false
	}
	if userID == guild.OwnerID {
		return true
	}
	for _, roleID := range roles {
		if role, _ := st.Role(guildID, roleID); role != nil {
			if role.Permissions&discordgo.PermissionAdministrator != 0 {
				return true
			}
		}
	}
	return false
}

func guildName(st *discordgo.State, guildID string) string {
	if st == nil || guildID == "" {
		return ""
	}
	if g, err := st.Guild(guildID); err == nil && g != nil {
		return g.Name
	}
	return ""
}
