package charms

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/keshon/charmbot/internal/charm"
	"github.com/keshon/charmbot/internal/dispatch"
	"github.com/keshon/charmbot/internal/ratelimit"
)

type StatsCharm struct {
	deps Deps
}

type statsReport struct {
	Bot       dispatch.Stats  `yaml:"bot"`
	RateLimit ratelimit.Stats `yaml:"rate_limit"`
}

func (s *StatsCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "stats",
		Description: "Show bot and rate-limiter statistics",
		Usage:       s.deps.Prefix + "stats",
		AdminOnly:   true,
		Category:    charm.CategoryInformation,
	}
}

func (s *StatsCharm) Run(ctx context.Context, c *charm.Context) error {
	out, err := yaml.Marshal(statsReport{
		Bot:       s.deps.Admin.Stats(),
		RateLimit: s.deps.Admin.LimiterStats(),
	})
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return c.Reply.Reply(ctx, "📊 Stats\n"+codeBlock("yaml", string(out)))
}
