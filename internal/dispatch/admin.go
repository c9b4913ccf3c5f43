package dispatch

import (
	"time"

	"github.com/keshon/charmbot/internal/ratelimit"
)

// Stats are the bot-level counters shown by help, ping and the greeting.
type Stats struct {
	CommandsExecuted int64         `yaml:"commands_executed"`
	CharmsCount      int           `yaml:"charms_count"`
	LastCommandAt    time.Time     `yaml:"last_command_at,omitempty"`
	Uptime           time.Duration `yaml:"uptime"`
}

// UserInfo is the limiter view of a user plus their security record.
type UserInfo struct {
	ratelimit.UserInfo `yaml:",inline"`
	SecurityViolations int  `yaml:"security_violations"`
	Blocked            bool `yaml:"blocked"`
}

// Admin is the operator surface. Admin charms receive it at construction.
type Admin interface {
	UnbanUser(userID, adminID string) bool
	ResetSecurity(userID, adminID string) bool
	UserInfo(userID string) UserInfo
	LimiterStats() ratelimit.Stats
	RecentCommands(guildID string) []HistoryRecord
	Stats() Stats
}

var _ Admin = (*Engine)(nil)

func (e *Engine) Stats() Stats {
	st := Stats{
		CommandsExecuted: e.executed.Load(),
		CharmsCount:      e.registry.Len(),
		Uptime:           e.now().Sub(e.started),
	}
	if ns := e.lastAt.Load(); ns != 0 {
		st.LastCommandAt = time.Unix(0, ns)
	}
	return st
}

// UnbanUser lifts a temporary ban and clears the user's violations.
func (e *Engine) UnbanUser(userID, adminID string) bool {
	return e.limiter.Unban(userID, adminID)
}

// ResetSecurity clears the user's security violation counter, unblocking them.
func (e *Engine) ResetSecurity(userID, adminID string) bool {
	ok := e.validator.ResetUser(userID)
	if ok {
		e.log.Info().Str("user", userID).Str("admin", adminID).Msg("security record reset by administrator")
	}
	return ok
}

func (e *Engine) UserInfo(userID string) UserInfo {
	return UserInfo{
		UserInfo:           e.limiter.UserInfo(userID),
		SecurityViolations: e.validator.Violations(userID),
		Blocked:            e.validator.IsBlocked(userID),
	}
}

func (e *Engine) LimiterStats() ratelimit.Stats {
	return e.limiter.Stats()
}

// RecentCommands returns the guild's latest executions, oldest first.
func (e *Engine) RecentCommands(guildID string) []HistoryRecord {
	return e.history.Fetch(guildID)
}

// Cleanup drops stale limiter and security state. It runs concurrently with
// dispatches.
func (e *Engine) Cleanup() {
	rep := e.limiter.Cleanup()
	dropped := e.validator.Cleanup()
	st := e.limiter.Stats()

	e.log.Info().
		Int("cooldowns", rep.Cooldowns).
		Int("windows", rep.Windows).
		Int("violations", rep.Violations).
		Int("bans", rep.Bans).
		Int("users", rep.Users).
		Int("security_records", dropped).
		Int("active_users", st.ActiveUsers).
		Int("banned_users", st.BannedUsers).
		Int("blocked_users", e.validator.BlockedUsers()).
		Msg("periodic cleanup finished")
}
