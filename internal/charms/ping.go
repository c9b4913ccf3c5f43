package charms

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/charmbot/internal/charm"
)

type PingCharm struct {
	deps Deps
}

func (p *PingCharm) Metadata() charm.Metadata {
	return charm.Metadata{
		Name:        "ping",
		Description: "Check bot latency",
		Usage:       p.deps.Prefix + "ping",
		Cooldown:    5 * time.Second,
		Category:    charm.CategoryUtility,
	}
}

func (p *PingCharm) Run(ctx context.Context, c *charm.Context) error {
	start := p.deps.Now()
	if err := c.Reply.Reply(ctx, "🏓 Pong!"); err != nil {
		return err
	}
	roundTrip := p.deps.Now().Sub(start)

	api := "n/a"
	if p.deps.Latency != nil {
		api = fmt.Sprintf("%dms", p.deps.Latency().Milliseconds())
	}
	return c.Reply.Send(ctx, fmt.Sprintf("📡 **API latency:** %s\n💬 **Message latency:** %dms", api, roundTrip.Milliseconds()))
}
