package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/charmbot/internal/charm"
	"github.com/keshon/charmbot/internal/parser"
	"github.com/keshon/charmbot/internal/ratelimit"
	"github.com/keshon/charmbot/internal/security"
)

// Config is the part of the bot configuration the engine acts on.
type Config struct {
	Prefix          string
	AllowedGuilds   []string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Message is an inbound chat message, already translated from the transport.
type Message struct {
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	IsAdmin     bool
	GuildID     string
	GuildName   string
	Content     string
	MentionsBot bool
}

// Outcome is the terminal state of one Dispatch call.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeGreeted
	OutcomeGuildDenied
	OutcomeInvalidFormat
	OutcomeRejected
	OutcomeSuccess
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeGreeted:
		return "greeted"
	case OutcomeGuildDenied:
		return "guild_denied"
	case OutcomeInvalidFormat:
		return "invalid_format"
	case OutcomeRejected:
		return "rejected"
	case OutcomeSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Result describes what Dispatch did with a message. Err is a *Error when
// Outcome is OutcomeRejected.
type Result struct {
	Outcome    Outcome
	Invocation parser.Invocation
	Err        error
}

// Engine runs every inbound message through the check pipeline and executes
// the resolved charm. It is safe for concurrent use.
type Engine struct {
	cfg       Config
	log       zerolog.Logger
	registry  *charm.Registry
	limiter   *ratelimit.Limiter
	validator *security.Validator
	history   *History
	allowed   map[string]struct{}
	now       func() time.Time
	newID     func() string
	started   time.Time

	executed atomic.Int64
	lastAt   atomic.Int64
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHistorySize sets how many executions are kept per guild.
func WithHistorySize(n int) Option {
	return func(e *Engine) { e.history = NewHistory(n) }
}

func New(cfg Config, registry *charm.Registry, limiter *ratelimit.Limiter, validator *security.Validator, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if cfg.Prefix == "" {
		return nil, errors.New("dispatch: empty command prefix")
	}
	if cfg.RateLimitMax < 0 {
		return nil, fmt.Errorf("dispatch: negative rate limit %d", cfg.RateLimitMax)
	}
	if cfg.RateLimitMax > 0 && cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("dispatch: rate limit window must be positive, got %s", cfg.RateLimitWindow)
	}
	if registry == nil || limiter == nil || validator == nil {
		return nil, errors.New("dispatch: registry, limiter and validator are required")
	}

	e := &Engine{
		cfg:       cfg,
		log:       logger.With().Str("component", "dispatch").Logger(),
		registry:  registry,
		limiter:   limiter,
		validator: validator,
		history:   NewHistory(DefaultHistorySize),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(e)
	}
	if len(cfg.AllowedGuilds) > 0 {
		e.allowed = make(map[string]struct{}, len(cfg.AllowedGuilds))
		for _, id := range cfg.AllowedGuilds {
			e.allowed[id] = struct{}{}
		}
	}
	e.started = e.now()
	return e, nil
}

// Prefix returns the configured command prefix.
func (e *Engine) Prefix() string { return e.cfg.Prefix }

// Dispatch handles one inbound message end to end. Every rejection is
// answered through out with a fixed message; details go to the log only.
func (e *Engine) Dispatch(ctx context.Context, msg Message, out charm.Responder) Result {
	if msg.AuthorIsBot {
		return Result{Outcome: OutcomeIgnored}
	}

	body, prefixed := parser.StripPrefix(msg.Content, e.cfg.Prefix)

	if !e.guildAllowed(msg.GuildID) {
		if prefixed {
			e.log.Warn().
				Str("event", "security").
				Str("user", msg.AuthorID).
				Str("guild", msg.GuildID).
				Str("reason", "guild_not_allowed").
				Msg("command from guild outside allow-list dropped")
		}
		return Result{Outcome: OutcomeGuildDenied}
	}

	if !prefixed {
		if msg.MentionsBot {
			e.greet(ctx, msg, out)
			return Result{Outcome: OutcomeGreeted}
		}
		return Result{Outcome: OutcomeIgnored}
	}

	log := e.log.With().
		Str("trace", e.newID()).
		Str("user", msg.AuthorID).
		Str("guild", msg.GuildID).
		Logger()

	inv, err := parser.Parse(body)
	if err != nil {
		log.Debug().Msg("unparseable command")
		e.send(ctx, log, out, invalidFormatMessage(e.cfg.Prefix))
		return Result{Outcome: OutcomeInvalidFormat, Err: err}
	}
	log = log.With().Str("charm", inv.Name).Logger()

	if err := e.run(ctx, log, msg, inv, out); err != nil {
		e.report(ctx, log, err, out)
		return Result{Outcome: OutcomeRejected, Invocation: inv, Err: err}
	}
	return Result{Outcome: OutcomeSuccess, Invocation: inv}
}

// run applies the checks in order and executes the charm. The quota is
// charged before the lookup so unknown names still drain it.
func (e *Engine) run(ctx context.Context, log zerolog.Logger, msg Message, inv parser.Invocation, out charm.Responder) error {
	user := msg.AuthorID

	if e.cfg.RateLimitMax > 0 {
		if err := e.limiter.CheckGlobal(user, e.cfg.RateLimitMax, e.cfg.RateLimitWindow); err != nil {
			return rateLimited(inv.Name, user, err)
		}
	}

	entry, ok := e.registry.Get(inv.Name)
	if !ok {
		return notFound(inv.Name, user, e.registry.Suggest(inv.Name))
	}
	meta := entry.Metadata

	if meta.AdminOnly && !msg.IsAdmin {
		return permissionDenied(meta.Name, user)
	}

	if !msg.IsAdmin {
		if err := e.limiter.CheckCooldown(user, meta.Name, meta.Cooldown); err != nil {
			return rateLimited(meta.Name, user, err)
		}
	}

	if e.validator.IsBlocked(user) {
		return securityViolation(meta.Name, user, &security.Violation{
			Reason: security.ReasonBlocked,
			Rule:   "violation-threshold",
			UserID: user,
			Charm:  meta.Name,
		})
	}
	if inv.ArgsRaw != "" {
		if err := e.validator.Validate(inv.ArgsRaw, user); err != nil {
			return securityViolation(meta.Name, user, err)
		}
	}

	cctx := &charm.Context{
		Args: inv.ArgsRaw,
		Caller: charm.Caller{
			ID:          user,
			DisplayName: msg.AuthorName,
			IsAdmin:     msg.IsAdmin,
		},
		Registry: e.registry,
		Reply:    out,
	}
	if msg.GuildID != "" {
		cctx.Guild = &charm.Guild{ID: msg.GuildID, Name: msg.GuildName}
	}

	handler := charm.Apply(entry.Run, charm.WithRecover(), charm.WithCommandLog(log, meta.Name))
	if err := handler(ctx, cctx); err != nil {
		return executionFailed(meta.Name, user, err)
	}

	if !msg.IsAdmin && meta.Cooldown > 0 {
		e.limiter.SetCooldown(user, meta.Name)
	}
	now := e.now()
	e.executed.Add(1)
	e.lastAt.Store(now.UnixNano())
	e.history.Append(msg.GuildID, HistoryRecord{
		GuildName: msg.GuildName,
		UserID:    user,
		Username:  msg.AuthorName,
		Command:   meta.Name,
		Param:     inv.ArgsRaw,
		Datetime:  now,
	})
	return nil
}

func (e *Engine) report(ctx context.Context, log zerolog.Logger, err error, out charm.Responder) {
	var de *Error
	if errors.As(err, &de) {
		switch de.Kind {
		case KindNotFound:
			log.Debug().Strs("suggestions", de.Suggestions).Msg("unknown charm")
		case KindPermissionDenied:
			log.Warn().Str("event", "security").Str("reason", "admin_only").Msg("non-admin invoked admin-only charm")
		case KindRateLimited:
			log.Info().Stringer("limit", de.Limit).Dur("retry_after", de.RetryAfter).Msg("rate limited")
		case KindSecurityViolation:
			log.Info().Err(de.Cause).Msg("input rejected")
		case KindExecutionFailed:
			var pe *charm.PanicError
			if errors.As(de.Cause, &pe) {
				log.Error().Interface("panic", pe.Value).Bytes("stack", pe.Stack).Msg("charm panicked")
			}
		}
	}
	e.send(ctx, log, out, UserMessage(err, e.cfg.Prefix))
}

func (e *Engine) send(ctx context.Context, log zerolog.Logger, out charm.Responder, text string) {
	if out == nil {
		return
	}
	if err := out.Reply(ctx, text); err != nil {
		log.Warn().Err(err).Msg("failed to send reply")
	}
}

func (e *Engine) greet(ctx context.Context, msg Message, out charm.Responder) {
	if out == nil {
		return
	}
	st := e.Stats()
	name := security.Sanitize(msg.AuthorName)
	if name == "" {
		name = "there"
	}
	embed := charm.Embed{
		Title: "✨ Charm Bot",
		Description: fmt.Sprintf("👋 Hi %s! My prefix is `%s`.\nUse `%shelp` to see the available charms.",
			name, e.cfg.Prefix, e.cfg.Prefix),
		Color:     0x5865F2,
		Footer:    fmt.Sprintf("%d charms • up %s", st.CharmsCount, st.Uptime.Truncate(time.Second)),
		Timestamp: e.now(),
	}
	if err := out.SendEmbed(ctx, embed); err != nil {
		e.log.Warn().Err(err).Str("user", msg.AuthorID).Msg("failed to send greeting")
	}
}

func (e *Engine) guildAllowed(guildID string) bool {
	if e.allowed == nil || guildID == "" {
		return true
	}
	_, ok := e.allowed[guildID]
	return ok
}
