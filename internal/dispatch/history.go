package dispatch

import (
	"sync"
	"time"
)

// DefaultHistorySize is how many executed commands are kept per guild.
const DefaultHistorySize = 20

// HistoryRecord is one successfully executed invocation.
type HistoryRecord struct {
	GuildName string    `yaml:"guild_name,omitempty"`
	UserID    string    `yaml:"user_id"`
	Username  string    `yaml:"username"`
	Command   string    `yaml:"command"`
	Param     string    `yaml:"param,omitempty"`
	Datetime  time.Time `yaml:"datetime"`
}

// History keeps the most recent executions per guild. Direct messages are
// stored under the empty guild id.
type History struct {
	mu      sync.Mutex
	limit   int
	byGuild map[string][]HistoryRecord
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{limit: limit, byGuild: make(map[string][]HistoryRecord)}
}

// Append adds a record and drops the oldest ones past the limit.
func (h *History) Append(guildID string, rec HistoryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.byGuild[guildID], rec)
	if len(list) > h.limit {
		list = append([]HistoryRecord(nil), list[len(list)-h.limit:]...)
	}
	h.byGuild[guildID] = list
}

// Fetch returns a copy of the guild's records, oldest first.
func (h *History) Fetch(guildID string) []HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.byGuild[guildID]
	out := make([]HistoryRecord, len(list))
	copy(out, list)
	return out
}
