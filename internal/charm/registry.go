package charm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var validName = regexp.MustCompile(`^\w+$`)

// IntegrityChecker screens a charm's source text at registration.
type IntegrityChecker interface {
	CheckIntegrity(name, source string) error
}

// Registry maps names to entries. Names keep their registration order, which
// is the order ListNames, ListByCategory and Suggest report them in.
type Registry struct {
	log     zerolog.Logger
	checker IntegrityChecker
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock replaces time.Now, for tests.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns an empty registry. checker may be nil, which skips
// integrity checks.
func NewRegistry(logger zerolog.Logger, checker IntegrityChecker, opts ...RegistryOption) *Registry {
	r := &Registry{
		log:     logger.With().Str("component", "registry").Logger(),
		checker: checker,
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type registerOptions struct {
	source      string
	middlewares []Middleware
}

// RegisterOption configures a single Register call.
type RegisterOption func(*registerOptions)

// WithSource supplies the charm's source text for the integrity check.
func WithSource(source string) RegisterOption {
	return func(o *registerOptions) { o.source = source }
}

// WithMiddleware wraps the handler before it is stored.
func WithMiddleware(mws ...Middleware) RegisterOption {
	return func(o *registerOptions) { o.middlewares = append(o.middlewares, mws...) }
}

// Register inserts or replaces the entry for meta.Name. Replacing is allowed
// and only logged. A failed integrity check is returned as an error and the
// registry is left unchanged.
func (r *Registry) Register(run Handler, meta Metadata, opts ...RegisterOption) error {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	meta.Name = strings.ToLower(strings.TrimSpace(meta.Name))
	if err := validate(run, meta); err != nil {
		return err
	}

	if r.checker != nil {
		if err := r.checker.CheckIntegrity(meta.Name, o.source); err != nil {
			return fmt.Errorf("register charm %q: integrity check failed: %w", meta.Name, err)
		}
	}

	entry := &Entry{
		Metadata:     meta,
		Run:          Apply(run, o.middlewares...),
		RegisteredAt: r.now(),
	}

	r.mu.Lock()
	_, exists := r.entries[meta.Name]
	r.entries[meta.Name] = entry
	if !exists {
		r.order = append(r.order, meta.Name)
	}
	r.mu.Unlock()

	if exists {
		r.log.Warn().Str("charm", meta.Name).Msg("charm already registered, overwriting")
	}
	r.log.Info().
		Str("charm", meta.Name).
		Str("category", string(meta.Category)).
		Bool("admin_only", meta.AdminOnly).
		Dur("cooldown", meta.Cooldown).
		Bool("integrity_checked", r.checker != nil).
		Msg("charm registered")
	return nil
}

func validate(run Handler, meta Metadata) error {
	var errs []error
	if run == nil {
		errs = append(errs, errors.New("handler is nil"))
	}
	if !validName.MatchString(meta.Name) {
		errs = append(errs, fmt.Errorf("invalid name %q", meta.Name))
	}
	if !meta.Category.Valid() {
		errs = append(errs, fmt.Errorf("unknown category %q", meta.Category))
	}
	if meta.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("negative cooldown %s", meta.Cooldown))
	}
	if len(errs) > 0 {
		return fmt.Errorf("register charm %q: %w", meta.Name, errors.Join(errs...))
	}
	return nil
}

// Unregister removes name and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	name = strings.ToLower(name)

	r.mu.Lock()
	_, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok {
		r.log.Info().Str("charm", name).Msg("charm unregistered")
	}
	return ok
}

// Get looks up a charm by name, case-insensitively.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(name)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ListNames returns all names in registration order.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ListByCategory returns the entries of one category in registration order.
func (r *Registry) ListByCategory(category Category) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, name := range r.order {
		if e := r.entries[name]; e.Metadata.Category == category {
			out = append(out, *e)
		}
	}
	return out
}

// Len returns the number of registered charms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Suggest returns "did you mean" candidates for an unknown name.
func (r *Registry) Suggest(input string) []string {
	return Suggest(input, r.ListNames(), MaxSuggestionDistance, MaxSuggestions)
}
