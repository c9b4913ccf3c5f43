package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/charmbot/internal/charm"
	"github.com/keshon/charmbot/internal/ratelimit"
	"github.com/keshon/charmbot/internal/security"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu      sync.Mutex
	replies []string
	sent    []string
	embeds  []charm.Embed
}

func (r *recorder) Reply(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	return nil
}

func (r *recorder) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *recorder) SendEmbed(_ context.Context, e charm.Embed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeds = append(r.embeds, e)
	return nil
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1]
}

type fixture struct {
	engine    *Engine
	registry  *charm.Registry
	limiter   *ratelimit.Limiter
	validator *security.Validator
	clock     *fakeClock
}

func newFixture(t *testing.T, cfg Config, secOpts ...security.Option) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	log := zerolog.Nop()

	validator := security.New(log, append([]security.Option{security.WithClock(clock.Now)}, secOpts...)...)
	limiter := ratelimit.New(log, ratelimit.WithClock(clock.Now))
	registry := charm.NewRegistry(log, validator, charm.WithRegistryClock(clock.Now))

	if cfg.Prefix == "" {
		cfg.Prefix = "$"
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = time.Minute
	}
	engine, err := New(cfg, registry, limiter, validator, log, WithClock(clock.Now))
	require.NoError(t, err)

	return &fixture{engine: engine, registry: registry, limiter: limiter, validator: validator, clock: clock}
}

func (f *fixture) register(t *testing.T, run charm.Handler, meta charm.Metadata) {
	t.Helper()
	if meta.Category == "" {
		meta.Category = charm.CategoryUtility
	}
	require.NoError(t, f.registry.Register(run, meta))
}

func ok(context.Context, *charm.Context) error { return nil }

func msg(user, content string) Message {
	return Message{AuthorID: user, AuthorName: "user-" + user, GuildID: "g1", GuildName: "Guild", Content: content}
}

func dispatchErr(t *testing.T, res Result) *Error {
	t.Helper()
	require.Equal(t, OutcomeRejected, res.Outcome)
	var de *Error
	require.True(t, errors.As(res.Err, &de), "got %v", res.Err)
	return de
}

func TestNew_RejectsBadConfig(t *testing.T) {
	log := zerolog.Nop()
	v := security.New(log)
	l := ratelimit.New(log)
	r := charm.NewRegistry(log, v)

	_, err := New(Config{}, r, l, v, log)
	assert.Error(t, err)
	_, err = New(Config{Prefix: "$", RateLimitMax: 5}, r, l, v, log)
	assert.Error(t, err)
	_, err = New(Config{Prefix: "$"}, nil, l, v, log)
	assert.Error(t, err)
}

func TestDispatch_IgnoresBotsAndChatter(t *testing.T) {
	f := newFixture(t, Config{})
	out := &recorder{}

	bot := msg("b", "$ping")
	bot.AuthorIsBot = true
	assert.Equal(t, OutcomeIgnored, f.engine.Dispatch(context.Background(), bot, out).Outcome)
	assert.Equal(t, OutcomeIgnored, f.engine.Dispatch(context.Background(), msg("u", "hello there"), out).Outcome)
	assert.Empty(t, out.replies)
}

func TestDispatch_GreetsOnMention(t *testing.T) {
	f := newFixture(t, Config{})
	f.register(t, ok, charm.Metadata{Name: "ping"})
	out := &recorder{}

	m := msg("u", "<@123> hi")
	m.MentionsBot = true
	m.AuthorName = "<Ann>"
	res := f.engine.Dispatch(context.Background(), m, out)

	assert.Equal(t, OutcomeGreeted, res.Outcome)
	require.Len(t, out.embeds, 1)
	assert.Contains(t, out.embeds[0].Description, "Hi Ann!")
	assert.Contains(t, out.embeds[0].Description, "`$`")
	assert.Contains(t, out.embeds[0].Footer, "1 charms")
}

func TestDispatch_GuildAllowList(t *testing.T) {
	f := newFixture(t, Config{AllowedGuilds: []string{"g1"}})
	f.register(t, ok, charm.Metadata{Name: "ping"})
	out := &recorder{}

	m := msg("u", "$ping")
	m.GuildID = "other"
	assert.Equal(t, OutcomeGuildDenied, f.engine.Dispatch(context.Background(), m, out).Outcome)
	assert.Empty(t, out.replies)

	assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out).Outcome)

	dm := msg("u", "$ping")
	dm.GuildID = ""
	assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), dm, out).Outcome)
}

func TestDispatch_InvalidFormat(t *testing.T) {
	f := newFixture(t, Config{})
	out := &recorder{}

	for _, content := range []string{"$", "$!!", "$ ping"} {
		res := f.engine.Dispatch(context.Background(), msg("u", content), out)
		assert.Equal(t, OutcomeInvalidFormat, res.Outcome, content)
		assert.Contains(t, out.last(), "Invalid format")
	}
}

func TestDispatch_Success(t *testing.T) {
	f := newFixture(t, Config{})
	var got *charm.Context
	f.register(t, func(_ context.Context, c *charm.Context) error {
		got = c
		return c.Reply.Reply(context.Background(), "said: "+c.Args)
	}, charm.Metadata{Name: "say", Cooldown: 2 * time.Second})
	out := &recorder{}

	res := f.engine.Dispatch(context.Background(), msg("u1", "$SAY hello world"), out)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "say", res.Invocation.Name)

	require.NotNil(t, got)
	assert.Equal(t, "hello world", got.Args)
	assert.Equal(t, "u1", got.Caller.ID)
	assert.Equal(t, "user-u1", got.Caller.DisplayName)
	require.NotNil(t, got.Guild)
	assert.Equal(t, "g1", got.Guild.ID)
	assert.NotNil(t, got.Registry)
	assert.Equal(t, "said: hello world", out.last())

	st := f.engine.Stats()
	assert.EqualValues(t, 1, st.CommandsExecuted)
	assert.True(t, st.LastCommandAt.Equal(f.clock.Now()))

	hist := f.engine.RecentCommands("g1")
	require.Len(t, hist, 1)
	assert.Equal(t, "say", hist[0].Command)
	assert.Equal(t, "hello world", hist[0].Param)

	assert.True(t, f.limiter.IsOnCooldown("u1", "say", 2*time.Second))
}

func TestDispatch_BracketForm(t *testing.T) {
	f := newFixture(t, Config{})
	var args string
	f.register(t, func(_ context.Context, c *charm.Context) error {
		args = c.Args
		return nil
	}, charm.Metadata{Name: "embed"})

	res := f.engine.Dispatch(context.Background(), msg("u", "$embed[Title|Body|red]"), &recorder{})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "Title|Body|red", args)
}

func TestDispatch_NotFoundSuggests(t *testing.T) {
	f := newFixture(t, Config{})
	for _, n := range []string{"ping", "pong", "poll"} {
		f.register(t, ok, charm.Metadata{Name: n})
	}
	out := &recorder{}

	de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$pog"), out))
	assert.Equal(t, KindNotFound, de.Kind)
	assert.Equal(t, []string{"pong", "ping", "poll"}, de.Suggestions)
	assert.Contains(t, out.last(), "`$pong`")
	assert.Contains(t, out.last(), "$help")

	de = dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$zzzzzz"), out))
	assert.NotNil(t, de.Suggestions)
	assert.Empty(t, de.Suggestions)
	assert.NotContains(t, out.last(), "Did you mean")
}

func TestDispatch_UnknownCommandsDrainQuota(t *testing.T) {
	f := newFixture(t, Config{RateLimitMax: 3})
	f.register(t, ok, charm.Metadata{Name: "ping"})
	out := &recorder{}

	for range 3 {
		de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$nope"), out))
		assert.Equal(t, KindNotFound, de.Kind)
	}
	de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out))
	assert.Equal(t, KindRateLimited, de.Kind)
	assert.Equal(t, ratelimit.KindQuota, de.Limit)
	assert.Equal(t, time.Minute, de.RetryAfter)
	assert.Contains(t, out.last(), "60s")
}

func TestDispatch_AdminOnly(t *testing.T) {
	f := newFixture(t, Config{})
	f.register(t, ok, charm.Metadata{Name: "unban", AdminOnly: true, Cooldown: time.Minute})
	out := &recorder{}

	de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$unban 42"), out))
	assert.Equal(t, KindPermissionDenied, de.Kind)
	assert.Contains(t, out.last(), "permission")
	assert.False(t, f.limiter.IsOnCooldown("u", "unban", time.Minute))

	admin := msg("a", "$unban 42")
	admin.IsAdmin = true
	assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), admin, out).Outcome)
}

func TestDispatch_Cooldown(t *testing.T) {
	f := newFixture(t, Config{})
	f.register(t, ok, charm.Metadata{Name: "ping", Cooldown: 5 * time.Second})
	out := &recorder{}

	require.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out).Outcome)

	f.clock.Advance(2 * time.Second)
	de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out))
	assert.Equal(t, KindRateLimited, de.Kind)
	assert.Equal(t, ratelimit.KindCooldown, de.Limit)
	assert.LessOrEqual(t, de.RetryAfter, 5*time.Second)
	assert.Contains(t, out.last(), "Wait 3s")

	// other users are unaffected
	assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), msg("v", "$ping"), out).Outcome)

	f.clock.Advance(3 * time.Second)
	assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out).Outcome)
}

func TestDispatch_AdminsBypassCooldown(t *testing.T) {
	f := newFixture(t, Config{})
	f.register(t, ok, charm.Metadata{Name: "ping", Cooldown: time.Hour})

	m := msg("a", "$ping")
	m.IsAdmin = true
	for range 3 {
		assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), m, &recorder{}).Outcome)
	}
}

func TestDispatch_SecurityViolation(t *testing.T) {
	f := newFixture(t, Config{}, security.WithBlockThreshold(2))
	f.register(t, ok, charm.Metadata{Name: "say"})
	f.register(t, ok, charm.Metadata{Name: "ping"})
	out := &recorder{}

	de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$say <script>alert(1)</script>"), out))
	assert.Equal(t, KindSecurityViolation, de.Kind)
	assert.True(t, security.IsViolation(de.Cause))
	assert.Contains(t, out.last(), "security reasons")
	assert.NotContains(t, out.last(), "script")
	assert.NotContains(t, out.last(), "forbidden")

	assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out).Outcome)

	dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$say ../../etc/passwd"), out))
	require.True(t, f.validator.IsBlocked("u"))

	de = dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out))
	assert.Equal(t, KindSecurityViolation, de.Kind)

	assert.True(t, f.engine.ResetSecurity("u", "admin"))
	assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out).Outcome)
}

func TestDispatch_ExecutionFailed(t *testing.T) {
	f := newFixture(t, Config{})
	boom := errors.New("database exploded at 10.0.0.1")
	f.register(t, func(context.Context, *charm.Context) error { return boom },
		charm.Metadata{Name: "fail", Cooldown: time.Minute})
	f.register(t, func(context.Context, *charm.Context) error { panic("nil map") },
		charm.Metadata{Name: "panic"})
	out := &recorder{}

	de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$fail"), out))
	assert.Equal(t, KindExecutionFailed, de.Kind)
	assert.ErrorIs(t, de, boom)
	assert.NotContains(t, out.last(), "database")
	assert.False(t, f.limiter.IsOnCooldown("u", "fail", time.Minute))

	de = dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$panic"), out))
	assert.Equal(t, KindExecutionFailed, de.Kind)
	var pe *charm.PanicError
	assert.True(t, errors.As(de, &pe))

	assert.Zero(t, f.engine.Stats().CommandsExecuted)
}

func TestDispatch_BanEscalation(t *testing.T) {
	f := newFixture(t, Config{RateLimitMax: 1})
	f.register(t, ok, charm.Metadata{Name: "ping"})
	out := &recorder{}

	require.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out).Outcome)
	for range ratelimit.BanThreshold {
		de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out))
		assert.Equal(t, ratelimit.KindQuota, de.Limit)
	}

	info := f.engine.UserInfo("u")
	require.True(t, info.IsBanned)
	assert.Equal(t, ratelimit.BanThreshold, info.Violations)

	f.clock.Advance(2 * time.Minute)
	de := dispatchErr(t, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out))
	assert.Equal(t, ratelimit.KindBan, de.Limit)
	assert.Contains(t, out.last(), "banned")
	assert.Contains(t, out.last(), "min")

	assert.True(t, f.engine.UnbanUser("u", "admin"))
	assert.Equal(t, OutcomeSuccess, f.engine.Dispatch(context.Background(), msg("u", "$ping"), out).Outcome)
}

func TestDispatch_ConcurrentQuota(t *testing.T) {
	f := newFixture(t, Config{RateLimitMax: 10})
	f.register(t, ok, charm.Metadata{Name: "ping"})

	var (
		wg      sync.WaitGroup
		success atomic.Int64
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.engine.Dispatch(context.Background(), msg("u", "$ping"), &recorder{}).Outcome == OutcomeSuccess {
				success.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, success.Load())
}

func TestEngine_CleanupKeepsActiveBans(t *testing.T) {
	f := newFixture(t, Config{RateLimitMax: 1})
	f.register(t, ok, charm.Metadata{Name: "ping"})

	for range ratelimit.BanThreshold + 1 {
		f.engine.Dispatch(context.Background(), msg("u", "$ping"), &recorder{})
	}
	f.engine.Cleanup()
	assert.True(t, f.engine.UserInfo("u").IsBanned)
}

func TestErrorKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(notFound("x", "u", nil)))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, []string{}, notFound("x", "u", nil).Suggestions)
}
