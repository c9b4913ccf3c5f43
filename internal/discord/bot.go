package discord

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/charmbot/internal/config"
	"github.com/keshon/charmbot/internal/dispatch"
	"github.com/keshon/charmbot/pkg/retrylimit"
)

// Intents needed to read prefixed messages in guilds and direct messages.
const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentMessageContent

// Bot connects the dispatch engine to a Discord gateway session.
type Bot struct {
	cfg     *config.Config
	engine  *dispatch.Engine
	log     zerolog.Logger
	session *discordgo.Session
	limiter *retrylimit.AdaptiveLimiter
	ctx     context.Context
}

// New prepares a session. Nothing is opened until Run.
func New(cfg *config.Config, engine *dispatch.Engine, logger zerolog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = intents

	b := &Bot{
		cfg:     cfg,
		engine:  engine,
		log:     logger.With().Str("component", "discord").Logger(),
		session: dg,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		ctx:     context.Background(),
	}
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.onMessageCreate)
	return b, nil
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.session.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing gateway")
	return nil
}

// Latency is the last gateway heartbeat round trip.
func (b *Bot) Latency() time.Duration {
	return b.session.HeartbeatLatency()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Str("prefix", b.cfg.Prefix).
		Msg("discord bot is running")
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	ev := b.log.Info()
	if len(b.cfg.AllowedGuilds) > 0 && !slices.Contains(b.cfg.AllowedGuilds, g.ID) {
		ev = b.log.Warn().Str("event", "security").Bool("allowed", false)
	}
	ev.Str("guild", g.ID).Str("name", g.Name).Msg("guild available")
}

// onMessageCreate runs on its own goroutine per event, so dispatches for
// different messages proceed concurrently.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || s.State.User == nil || m.Author.ID == s.State.User.ID {
		return
	}

	msg := translate(m.Message, s.State.User.ID, guildName(s.State, m.GuildID), b.isAdmin(s.State, m.Message))
	out := &channelResponder{
		sender:  s,
		message: m.Message,
		limiter: b.limiter,
		log:     b.log,
	}
	b.engine.Dispatch(b.ctx, msg, out)
}

func (b *Bot) isAdmin(st *discordgo.State, m *discordgo.Message) bool {
	if b.cfg.IsAdmin(m.Author.ID) {
		return true
	}
	if !b.cfg.TrustGuildAdmins || m.GuildID == "" || m.Member == nil {
		return false
	}
	return hasAdminRights(st, m.GuildID, m.Author.ID, m.Member.Roles)
}
