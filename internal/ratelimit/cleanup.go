package ratelimit

import "time"

// CleanupReport counts what a Cleanup pass removed.
type CleanupReport struct {
	Cooldowns  int
	Windows    int
	Violations int
	Bans       int
	Users      int
}

// Cleanup drops cooldowns and violation records older than 24h, expired
// windows and expired bans, then forgets users left with no state. A ban
// still in force is never touched. It runs concurrently with dispatch: the
// user set is snapshotted and each user is pruned under its own lock.
func (l *Limiter) Cleanup() CleanupReport {
	var rep CleanupReport

	for id, st := range l.snapshot() {
		st.mu.Lock()
		if st.removed {
			st.mu.Unlock()
			continue
		}
		now := l.now()

		for cmd, last := range st.cooldowns {
			if now.Sub(last) > staleAfter {
				delete(st.cooldowns, cmd)
				rep.Cooldowns++
			}
		}
		if st.window != nil && !now.Before(st.window.resetAt) {
			st.window = nil
			rep.Windows++
		}
		if st.violations.count > 0 && now.Sub(st.violations.last) > staleAfter {
			st.violations = violations{}
			rep.Violations++
		}
		if !st.bannedUntil.IsZero() && !now.Before(st.bannedUntil) {
			st.bannedUntil = time.Time{}
			rep.Bans++
		}

		if st.empty() {
			l.mu.Lock()
			if l.users[id] == st {
				delete(l.users, id)
			}
			l.mu.Unlock()
			st.removed = true
			rep.Users++
		}
		st.mu.Unlock()
	}

	return rep
}

func (l *Limiter) snapshot() map[string]*userState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*userState, len(l.users))
	for id, st := range l.users {
		out[id] = st
	}
	return out
}
