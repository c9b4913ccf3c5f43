package ratelimit

import (
	"fmt"
	"time"
)

// Kind says which mechanism rejected a request.
type Kind int

const (
	KindCooldown Kind = iota + 1
	KindQuota
	KindBan
)

func (k Kind) String() string {
	switch k {
	case KindCooldown:
		return "cooldown"
	case KindQuota:
		return "quota"
	case KindBan:
		return "ban"
	default:
		return "unknown"
	}
}

// LimitError is returned by the Check* methods when a request must wait.
type LimitError struct {
	Kind      Kind
	UserID    string
	Command   string
	Remaining time.Duration
}

func (e *LimitError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("ratelimit: %s for %s on %q, %ds left", e.Kind, e.UserID, e.Command, e.Seconds())
	}
	return fmt.Sprintf("ratelimit: %s for %s, %ds left", e.Kind, e.UserID, e.Seconds())
}

// Seconds is Remaining rounded up to whole seconds.
func (e *LimitError) Seconds() int {
	return ceilSeconds(e.Remaining)
}

// Minutes is Remaining rounded up to whole minutes.
func (e *LimitError) Minutes() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int((e.Remaining + time.Minute - 1) / time.Minute)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
