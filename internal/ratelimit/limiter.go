// Package ratelimit composes three per-user mechanisms: per-command
// cooldowns, a global fixed window quota, and violation-driven temporary bans
// with exponential backoff. All state is in memory and owned by a Limiter
// value; there are no package-level maps.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	// BanThreshold is the violation count at which bans start.
	BanThreshold = 5
	// BaseBan is the unit of BanDuration; each further violation triples it.
	BaseBan = 5 * time.Minute
	// MaxBan caps any single ban.
	MaxBan = 24 * time.Hour

	violationResetAfter = time.Hour
	staleAfter          = 24 * time.Hour
)

// BanDuration returns min(5 * 3^(violations-1), 1440) minutes.
func BanDuration(violations int) time.Duration {
	if violations < 1 {
		violations = 1
	}
	d := BaseBan
	for i := 1; i < violations; i++ {
		d *= 3
		if d >= MaxBan {
			return MaxBan
		}
	}
	return d
}

type window struct {
	count   int
	resetAt time.Time
}

type violations struct {
	count int
	last  time.Time
}

type userState struct {
	mu          sync.Mutex
	removed     bool
	cooldowns   map[string]time.Time
	window      *window
	violations  violations
	bannedUntil time.Time
}

func (s *userState) empty() bool {
	return len(s.cooldowns) == 0 && s.window == nil && s.violations.count == 0 && s.bannedUntil.IsZero()
}

// Limiter is safe for concurrent use. Each user's state has its own mutex, so
// checks for one user are linearizable without serializing other users.
//
// Lock order: a user's mutex may be taken while holding nothing, and the map
// lock may be taken while holding a user's mutex, never the reverse.
type Limiter struct {
	log     zerolog.Logger
	now     func() time.Time
	started time.Time

	mu    sync.RWMutex
	users map[string]*userState

	accepted atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(logger zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		log:   logger.With().Str("component", "ratelimit").Logger(),
		now:   time.Now,
		users: make(map[string]*userState),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.started = l.now()
	return l
}

// withUser runs fn with the user's state locked. With create unset it
// returns false without calling fn when the user has no state.
func (l *Limiter) withUser(userID string, create bool, fn func(st *userState, now time.Time)) bool {
	for {
		l.mu.RLock()
		st := l.users[userID]
		l.mu.RUnlock()

		if st == nil {
			if !create {
				return false
			}
			l.mu.Lock()
			st = l.users[userID]
			if st == nil {
				st = &userState{cooldowns: make(map[string]time.Time)}
				l.users[userID] = st
			}
			l.mu.Unlock()
		}

		st.mu.Lock()
		if st.removed {
			// Lost a race with Cleanup; the entry is gone from the map.
			st.mu.Unlock()
			continue
		}
		fn(st, l.now())
		st.mu.Unlock()
		return true
	}
}

// activeBan applies lazy expiry. Caller holds st.mu.
func (l *Limiter) activeBan(userID string, st *userState, now time.Time) (time.Duration, bool) {
	if st.bannedUntil.IsZero() {
		return 0, false
	}
	if now.Before(st.bannedUntil) {
		return st.bannedUntil.Sub(now), true
	}
	st.bannedUntil = time.Time{}
	l.log.Info().Str("user", userID).Msg("temporary ban expired, user unbanned automatically")
	return 0, false
}

// IsOnCooldown reports whether command is still cooling down for the user.
// A banned user is always on cooldown.
func (l *Limiter) IsOnCooldown(userID, command string, cooldown time.Duration) bool {
	return l.CheckCooldown(userID, command, cooldown) != nil
}

// CheckCooldown returns a *LimitError of KindBan or KindCooldown, or nil.
func (l *Limiter) CheckCooldown(userID, command string, cooldown time.Duration) error {
	var out error
	l.withUser(userID, false, func(st *userState, now time.Time) {
		if left, banned := l.activeBan(userID, st, now); banned {
			out = &LimitError{Kind: KindBan, UserID: userID, Command: command, Remaining: left}
			return
		}
		if cooldown <= 0 {
			return
		}
		last, ok := st.cooldowns[command]
		if !ok {
			return
		}
		if elapsed := now.Sub(last); elapsed < cooldown {
			out = &LimitError{Kind: KindCooldown, UserID: userID, Command: command, Remaining: cooldown - elapsed}
		}
	})
	return out
}

// SetCooldown stamps the current time as the last use of command.
func (l *Limiter) SetCooldown(userID, command string) {
	l.withUser(userID, true, func(st *userState, now time.Time) {
		st.cooldowns[command] = now
	})
}

// CooldownRemaining returns the whole seconds left on command's cooldown,
// rounded up.
func (l *Limiter) CooldownRemaining(userID, command string, cooldown time.Duration) int {
	left := time.Duration(0)
	l.withUser(userID, false, func(st *userState, now time.Time) {
		if last, ok := st.cooldowns[command]; ok {
			left = cooldown - now.Sub(last)
		}
	})
	return ceilSeconds(left)
}

// CheckGlobal counts one command against the user's window quota. It must be
// called for every dispatch attempt, known command or not. Exceeding the
// quota records a violation, which may start a ban.
func (l *Limiter) CheckGlobal(userID string, maxCommands int, span time.Duration) error {
	var out error
	l.withUser(userID, true, func(st *userState, now time.Time) {
		if left, banned := l.activeBan(userID, st, now); banned {
			out = &LimitError{Kind: KindBan, UserID: userID, Remaining: left}
			return
		}
		if st.window == nil || !now.Before(st.window.resetAt) {
			st.window = &window{count: 1, resetAt: now.Add(span)}
			l.accepted.Add(1)
			return
		}
		if st.window.count >= maxCommands {
			out = &LimitError{Kind: KindQuota, UserID: userID, Remaining: st.window.resetAt.Sub(now)}
			l.violate(userID, st, "global rate limit exceeded", now)
			return
		}
		st.window.count++
		l.accepted.Add(1)
	})
	return out
}

// HandleViolation records a violation for the user and bans them once the
// running count reaches BanThreshold. The count restarts when the previous
// violation is more than an hour old.
func (l *Limiter) HandleViolation(userID, reason string) {
	l.withUser(userID, true, func(st *userState, now time.Time) {
		l.violate(userID, st, reason, now)
	})
}

func (l *Limiter) violate(userID string, st *userState, reason string, now time.Time) {
	if !st.violations.last.IsZero() && now.Sub(st.violations.last) > violationResetAfter {
		st.violations.count = 0
	}
	st.violations.count++
	st.violations.last = now

	l.log.Warn().
		Str("event", "security").
		Str("user", userID).
		Str("reason", reason).
		Int("violations", st.violations.count).
		Msg("rate limit violation")

	if st.violations.count >= BanThreshold {
		d := BanDuration(st.violations.count)
		st.bannedUntil = now.Add(d)
		l.log.Warn().
			Str("event", "security").
			Str("user", userID).
			Int("violations", st.violations.count).
			Dur("ban", d).
			Time("until", st.bannedUntil).
			Msg("temporary ban issued")
	}
}

// IsBanned reports whether the user is banned now and until when.
func (l *Limiter) IsBanned(userID string) (bool, time.Time) {
	var (
		banned bool
		until  time.Time
	)
	l.withUser(userID, false, func(st *userState, now time.Time) {
		if _, banned = l.activeBan(userID, st, now); banned {
			until = st.bannedUntil
		}
	})
	return banned, until
}

// Unban lifts the user's ban and clears their violations. It reports whether
// an active ban was lifted.
func (l *Limiter) Unban(userID, adminID string) bool {
	lifted := false
	l.withUser(userID, false, func(st *userState, now time.Time) {
		_, lifted = l.activeBan(userID, st, now)
		st.bannedUntil = time.Time{}
		st.violations = violations{}
	})
	if lifted {
		l.log.Info().Str("user", userID).Str("admin", adminID).Msg("user unbanned by administrator")
	}
	return lifted
}
