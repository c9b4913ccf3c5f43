// Package charm holds the command ("charm") registry and the types a charm
// body sees when it runs. Charm bodies are transport-agnostic: they get a
// Context with their arguments, the caller, an optional guild, read-only
// registry access and a reply capability, and nothing else.
package charm

import (
	"context"
	"time"
)

// Category groups charms in help output.
type Category string

const (
	CategoryUtility     Category = "utility"
	CategoryFun         Category = "fun"
	CategoryModeration  Category = "moderation"
	CategoryInformation Category = "information"
)

// Categories lists the known categories in display order.
func Categories() []Category {
	return []Category{CategoryUtility, CategoryFun, CategoryModeration, CategoryInformation}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryUtility, CategoryFun, CategoryModeration, CategoryInformation:
		return true
	}
	return false
}

// Metadata describes a charm. It is immutable once registered.
type Metadata struct {
	Name        string
	Description string
	Usage       string
	AdminOnly   bool
	Cooldown    time.Duration
	Category    Category
}

// Handler is a charm body.
type Handler func(ctx context.Context, c *Context) error

// Entry is what the registry stores per name.
type Entry struct {
	Metadata     Metadata
	Run          Handler
	RegisteredAt time.Time
}

// Caller identifies who invoked the charm.
type Caller struct {
	ID          string
	DisplayName string
	IsAdmin     bool
}

// Guild identifies where the charm was invoked. Nil for direct messages.
type Guild struct {
	ID   string
	Name string
}

// Query is the read-only registry view handed to charms such as help.
type Query interface {
	Get(name string) (Entry, bool)
	ListNames() []string
	ListByCategory(category Category) []Entry
}

// Responder sends messages back to the channel the invocation came from.
type Responder interface {
	Reply(ctx context.Context, text string) error
	Send(ctx context.Context, text string) error
	SendEmbed(ctx context.Context, e Embed) error
}

// Embed is a transport-neutral rich message.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Context is built per invocation and never persisted.
type Context struct {
	Args     string
	Caller   Caller
	Guild    *Guild
	Registry Query
	Reply    Responder
}
