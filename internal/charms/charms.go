// Package charms holds the built-in charm bodies.
package charms

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/keshon/charmbot/internal/charm"
	"github.com/keshon/charmbot/internal/dispatch"
)

// Source files are embedded so the registry can run its integrity check on
// the code that is actually registered.
//
//go:embed help.go ping.go say.go embed.go unban.go reset.go userinfo.go stats.go log.go
var sources embed.FS

const (
	discordMaxMessageLength = 2000
	codeBlockOverhead       = len("```yaml\n") + len("```")
	defaultColor            = 0x00AE86
)

var userIDPattern = regexp.MustCompile(`^\d{1,25}$`)

// Deps is what the charms need beyond the per-invocation context. Admin
// charms talk to Admin; everything else only sees charm.Context.
type Deps struct {
	Prefix string
	Admin  dispatch.Admin
	// Latency reports the gateway heartbeat latency. Optional.
	Latency func() time.Duration
	Now     func() time.Time
}

type builtin interface {
	Metadata() charm.Metadata
	Run(ctx context.Context, c *charm.Context) error
}

type entry struct {
	charm builtin
	file  string
}

func builtins(d Deps) []entry {
	return []entry{
		{&HelpCharm{deps: d}, "help.go"},
		{&PingCharm{deps: d}, "ping.go"},
		{&SayCharm{deps: d}, "say.go"},
		{&EmbedCharm{deps: d}, "embed.go"},
		{&UnbanCharm{deps: d}, "unban.go"},
		{&ResetCharm{deps: d}, "reset.go"},
		{&UserInfoCharm{deps: d}, "userinfo.go"},
		{&StatsCharm{deps: d}, "stats.go"},
		{&LogCharm{deps: d}, "log.go"},
	}
}

// Register adds every built-in charm to reg, passing each one's source to
// the integrity check. The first failure aborts registration.
func Register(reg *charm.Registry, d Deps) error {
	if d.Admin == nil {
		return errors.New("charms: admin surface is required")
	}
	if d.Prefix == "" {
		d.Prefix = "$"
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	for _, e := range builtins(d) {
		src, err := sources.ReadFile(e.file)
		if err != nil {
			return fmt.Errorf("charms: read source %s: %w", e.file, err)
		}
		if err := reg.Register(e.charm.Run, e.charm.Metadata(), charm.WithSource(string(src))); err != nil {
			return err
		}
	}
	return nil
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 {
		return "< 1m"
	}
	return strings.Join(parts, " ")
}

// parseUserID accepts a bare numeric user id.
func parseUserID(args string) (string, bool) {
	id := strings.TrimSpace(args)
	return id, userIDPattern.MatchString(id)
}

func codeBlock(lang, body string) string {
	limit := discordMaxMessageLength - codeBlockOverhead - len(lang)
	if len(body) > limit {
		body = strings.ToValidUTF8(body[:limit], "")
	}
	return "```" + lang + "\n" + body + "```"
}
