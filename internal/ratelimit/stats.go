package ratelimit

import "time"

// UserInfo is the administrative view of one user.
type UserInfo struct {
	IsBanned        bool       `yaml:"banned"`
	UnbanTime       *time.Time `yaml:"unban_time,omitempty"`
	Violations      int        `yaml:"violations"`
	CurrentCommands int        `yaml:"current_commands"`
	RateLimitReset  *time.Time `yaml:"rate_limit_reset,omitempty"`
	ActiveCooldowns int        `yaml:"active_cooldowns"`
}

// UserInfo returns a snapshot of the user's state. Unknown users get the
// zero value.
func (l *Limiter) UserInfo(userID string) UserInfo {
	var info UserInfo
	l.withUser(userID, false, func(st *userState, now time.Time) {
		if _, banned := l.activeBan(userID, st, now); banned {
			until := st.bannedUntil
			info.IsBanned = true
			info.UnbanTime = &until
		}
		info.Violations = st.violations.count
		if st.window != nil && now.Before(st.window.resetAt) {
			reset := st.window.resetAt
			info.CurrentCommands = st.window.count
			info.RateLimitReset = &reset
		}
		info.ActiveCooldowns = len(st.cooldowns)
	})
	return info
}

// Stats aggregates the limiter's state.
type Stats struct {
	ActiveUsers        int     `yaml:"active_users"`
	TotalCooldowns     int     `yaml:"total_cooldowns"`
	AvgCommandsPerUser float64 `yaml:"avg_commands_per_user"`
	TotalCommands      int     `yaml:"total_commands"`
	TotalViolations    int     `yaml:"total_violations"`
	BannedUsers        int     `yaml:"banned_users"`
	UptimeHours        float64 `yaml:"uptime_hours"`
	CommandsPerHour    float64 `yaml:"commands_per_hour"`
}

// Stats is read-only: it does not expire bans or windows.
func (l *Limiter) Stats() Stats {
	var s Stats
	now := l.now()

	for _, st := range l.snapshot() {
		st.mu.Lock()
		if st.removed {
			st.mu.Unlock()
			continue
		}
		s.TotalCooldowns += len(st.cooldowns)
		if st.window != nil {
			s.ActiveUsers++
			s.TotalCommands += st.window.count
		}
		s.TotalViolations += st.violations.count
		if !st.bannedUntil.IsZero() && now.Before(st.bannedUntil) {
			s.BannedUsers++
		}
		st.mu.Unlock()
	}

	if s.ActiveUsers > 0 {
		s.AvgCommandsPerUser = float64(s.TotalCommands) / float64(s.ActiveUsers)
	}
	s.UptimeHours = now.Sub(l.started).Hours()
	if s.UptimeHours > 0 {
		s.CommandsPerHour = float64(l.accepted.Load()) / s.UptimeHours
	}
	return s
}
