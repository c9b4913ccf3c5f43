package discord

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/charmbot/internal/charm"
	"github.com/keshon/charmbot/pkg/retrylimit"
)

const maxMessageLength = 2000

// sender is the part of *discordgo.Session the responder uses.
type sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// channelResponder answers in the channel the message came from. Outgoing
// messages never ping roles or @everyone.
type channelResponder struct {
	sender  sender
	message *discordgo.Message
	limiter *retrylimit.AdaptiveLimiter
	log     zerolog.Logger
	retry   *retrylimit.RetryConfig
}

var _ charm.Responder = (*channelResponder)(nil)

func (r *channelResponder) Reply(ctx context.Context, text string) error {
	return r.send(ctx, &discordgo.MessageSend{
		Content:   truncate(text),
		Reference: r.message.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			RepliedUser: true,
		},
	})
}

func (r *channelResponder) Send(ctx context.Context, text string) error {
	return r.send(ctx, &discordgo.MessageSend{
		Content:         truncate(text),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
}

func (r *channelResponder) SendEmbed(ctx context.Context, e charm.Embed) error {
	return r.send(ctx, &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{toDiscordEmbed(e)},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
}

func (r *channelResponder) send(ctx context.Context, data *discordgo.MessageSend) error {
	cfg := retrylimit.DefaultRetryConfig()
	if r.retry != nil {
		cfg = *r.retry
	}
	cfg.MaxAttempts = 3
	cfg.Status = restStatus
	cfg.Logger = r.log.With().Str("channel", r.message.ChannelID).Logger()

	return retrylimit.WithRetryConfig(ctx, func() error {
		_, err := r.sender.ChannelMessageSendComplex(r.message.ChannelID, data, discordgo.WithContext(ctx))
		return err
	}, r.limiter, cfg)
}

// restStatus extracts the HTTP status from a discordgo REST error.
func restStatus(err error) (int, bool) {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode, true
	}
	return 0, false
}

func toDiscordEmbed(e charm.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	return out
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLength {
		return s
	}
	return string(r[:maxMessageLength-1]) + "…"
}
