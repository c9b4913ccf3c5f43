package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/charmbot/internal/charm"
	"github.com/keshon/charmbot/pkg/retrylimit"
)

func TestTranslate(t *testing.T) {
	m := &discordgo.Message{
		Author:   &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"},
		GuildID:  "g1",
		Content:  "$ping",
		Mentions: []*discordgo.User{{ID: "other"}, {ID: "self"}},
	}

	msg := translate(m, "self", "Guild", true)
	assert.Equal(t, "u1", msg.AuthorID)
	assert.Equal(t, "Alice", msg.AuthorName)
	assert.Equal(t, "g1", msg.GuildID)
	assert.Equal(t, "Guild", msg.GuildName)
	assert.Equal(t, "$ping", msg.Content)
	assert.True(t, msg.IsAdmin)
	assert.True(t, msg.MentionsBot)
	assert.False(t, msg.AuthorIsBot)

	m.Mentions = nil
	m.Author.Bot = true
	msg = translate(m, "self", "", false)
	assert.False(t, msg.MentionsBot)
	assert.True(t, msg.AuthorIsBot)
}

func TestDisplayName(t *testing.T) {
	m := &discordgo.Message{Author: &discordgo.User{Username: "alice"}}
	assert.Equal(t, "alice", displayName(m))

	m.Author.GlobalName = "Alice"
	assert.Equal(t, "Alice", displayName(m))

	m.Member = &discordgo.Member{Nick: "Al"}
	assert.Equal(t, "Al", displayName(m))
}

func TestHasAdminRights(t *testing.T) {
	st := discordgo.NewState()
	require.NoError(t, st.GuildAdd(&discordgo.Guild{
		ID:      "g1",
		Name:    "Guild",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "admins", Permissions: discordgo.PermissionAdministrator},
			{ID: "mods", Permissions: discordgo.PermissionManageMessages},
		},
	}))

	assert.True(t, hasAdminRights(st, "g1", "owner", nil))
	assert.True(t, hasAdminRights(st, "g1", "u1", []string{"mods", "admins"}))
	assert.False(t, hasAdminRights(st, "g1", "u1", []string{"mods"}))
	assert.False(t, hasAdminRights(st, "missing", "owner", nil))
	assert.False(t, hasAdminRights(nil, "g1", "owner", nil))

	assert.Equal(t, "Guild", guildName(st, "g1"))
	assert.Empty(t, guildName(st, ""))
}

func TestToDiscordEmbed(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := toDiscordEmbed(charm.Embed{
		Title:       "T",
		Description: "D",
		Color:       0xFF0000,
		Fields:      []charm.EmbedField{{Name: "n", Value: "v", Inline: true}},
		Footer:      "f",
		Timestamp:   ts,
	})
	assert.Equal(t, "T", e.Title)
	assert.Equal(t, 0xFF0000, e.Color)
	require.Len(t, e.Fields, 1)
	assert.True(t, e.Fields[0].Inline)
	assert.Equal(t, "f", e.Footer.Text)
	assert.Equal(t, "2025-06-01T12:00:00Z", e.Timestamp)

	bare := toDiscordEmbed(charm.Embed{Title: "x"})
	assert.Nil(t, bare.Footer)
	assert.Empty(t, bare.Timestamp)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short"))
	long := strings.Repeat("é", 2500)
	got := truncate(long)
	assert.Equal(t, maxMessageLength, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

type fakeSender struct {
	mu    sync.Mutex
	errs  []error
	calls []*discordgo.MessageSend
}

func (f *fakeSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, data)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &discordgo.Message{ChannelID: channelID}, nil
}

func restErr(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
}

func newResponder(s sender) *channelResponder {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	cfg.Jitter = false
	return &channelResponder{
		sender:  s,
		message: &discordgo.Message{ID: "m1", ChannelID: "c1", GuildID: "g1"},
		limiter: retrylimit.NewAdaptiveLimiter(50, 1, 50, 1, 0.5),
		log:     zerolog.Nop(),
		retry:   &cfg,
	}
}

func TestResponder_ReplyReferencesMessage(t *testing.T) {
	fs := &fakeSender{}
	r := newResponder(fs)

	require.NoError(t, r.Reply(context.Background(), "hi"))
	require.Len(t, fs.calls, 1)
	assert.Equal(t, "hi", fs.calls[0].Content)
	require.NotNil(t, fs.calls[0].Reference)
	assert.Equal(t, "m1", fs.calls[0].Reference.MessageID)
	assert.Empty(t, fs.calls[0].AllowedMentions.Parse)
}

func TestResponder_SendNeverPingsEveryone(t *testing.T) {
	fs := &fakeSender{}
	r := newResponder(fs)

	require.NoError(t, r.Send(context.Background(), "hello @everyone"))
	require.NoError(t, r.SendEmbed(context.Background(), charm.Embed{Title: "x"}))
	for _, c := range fs.calls {
		require.NotNil(t, c.AllowedMentions)
		assert.Empty(t, c.AllowedMentions.Parse)
		assert.Nil(t, c.Reference)
	}
	assert.Len(t, fs.calls[1].Embeds, 1)
}

func TestResponder_RetriesRateLimits(t *testing.T) {
	fs := &fakeSender{errs: []error{restErr(http.StatusTooManyRequests), restErr(http.StatusBadGateway)}}
	r := newResponder(fs)

	require.NoError(t, r.Send(context.Background(), "x"))
	assert.Len(t, fs.calls, 3)
}

func TestResponder_DoesNotRetryForbidden(t *testing.T) {
	fs := &fakeSender{errs: []error{restErr(http.StatusForbidden)}}
	r := newResponder(fs)

	err := r.Send(context.Background(), "x")
	require.Error(t, err)
	code, ok := restStatus(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Len(t, fs.calls, 1)

	_, ok = restStatus(errors.New("plain"))
	assert.False(t, ok)
}
