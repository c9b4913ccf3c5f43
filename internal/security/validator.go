// Package security screens user-supplied argument text and charm source text
// for dangerous content, and keeps a per-user violation counter that callers
// consult through IsBlocked.
package security

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxLength      = 1500
	DefaultMaxSourceBytes = 50 * 1024
	DefaultBlockThreshold = 10
	recordMaxAge          = 24 * time.Hour
)

// Violation is returned by Validate and CheckIntegrity.
type Violation struct {
	Reason Reason
	Rule   string
	UserID string
	Charm  string
}

func (v *Violation) Error() string {
	switch {
	case v.Charm != "":
		return fmt.Sprintf("security: charm %q rejected: %s (%s)", v.Charm, v.Reason.Describe(), v.Rule)
	case v.UserID != "":
		return fmt.Sprintf("security: input from %s rejected: %s (%s)", v.UserID, v.Reason.Describe(), v.Rule)
	default:
		return fmt.Sprintf("security: input rejected: %s (%s)", v.Reason.Describe(), v.Rule)
	}
}

// IsViolation reports whether err carries a *Violation.
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}

type violationRecord struct {
	count int
	last  time.Time
}

// Validator is safe for concurrent use.
type Validator struct {
	log zerolog.Logger
	now func() time.Time

	maxLength      int
	maxSourceBytes int
	blockThreshold int

	inputRules []Rule
	codeRules  []Rule

	mu         sync.Mutex
	violations map[string]*violationRecord
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithBlockThreshold sets how many violations mark a user blocked.
func WithBlockThreshold(n int) Option {
	return func(v *Validator) { v.blockThreshold = n }
}

// WithMaxLength sets the argument length cap, in runes.
func WithMaxLength(n int) Option {
	return func(v *Validator) { v.maxLength = n }
}

func New(logger zerolog.Logger, opts ...Option) *Validator {
	v := &Validator{
		log:            logger.With().Str("component", "security").Logger(),
		now:            time.Now,
		maxLength:      DefaultMaxLength,
		maxSourceBytes: DefaultMaxSourceBytes,
		blockThreshold: DefaultBlockThreshold,
		inputRules:     InputRules(),
		codeRules:      CodeRules(),
		violations:     make(map[string]*violationRecord),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SelfCheck validates the validator's own configuration. Run it at startup.
func (v *Validator) SelfCheck() error {
	var errs []error
	if v.maxLength <= 0 {
		errs = append(errs, fmt.Errorf("max length must be positive, got %d", v.maxLength))
	}
	if v.maxSourceBytes <= 0 {
		errs = append(errs, fmt.Errorf("max source size must be positive, got %d", v.maxSourceBytes))
	}
	if v.blockThreshold <= 0 {
		errs = append(errs, fmt.Errorf("block threshold must be positive, got %d", v.blockThreshold))
	}
	if err := checkRules(v.inputRules); err != nil {
		errs = append(errs, fmt.Errorf("input rules: %w", err))
	}
	if err := checkRules(v.codeRules); err != nil {
		errs = append(errs, fmt.Errorf("code rules: %w", err))
	}
	if len(v.inputRules) == 0 {
		errs = append(errs, errors.New("input rule table is empty"))
	}
	return errors.Join(errs...)
}

// Validate screens argument text. Empty text always passes. Each rejection
// bumps the user's violation counter; Validate itself does not refuse
// blocked users, callers check IsBlocked.
func (v *Validator) Validate(text, userID string) error {
	if text == "" {
		return nil
	}

	if utf8.RuneCountInString(text) > v.maxLength {
		return v.reject(&Violation{Reason: ReasonTooLong, Rule: "max-length", UserID: userID})
	}

	for _, r := range v.inputRules {
		hit, err := r.Matches(text)
		if err != nil {
			v.log.Warn().Err(err).Str("rule", r.Name).Msg("rule evaluation failed, rejecting")
			hit = true
		}
		if hit {
			return v.reject(&Violation{Reason: r.Reason, Rule: r.Name, UserID: userID})
		}
	}
	return nil
}

// CheckIntegrity screens a charm's source text once, at registration. It is a
// coarse static filter, not a sandbox.
func (v *Validator) CheckIntegrity(name, source string) error {
	if len(source) > v.maxSourceBytes {
		return v.rejectCharm(&Violation{Reason: ReasonSourceTooLarge, Rule: "max-source-size", Charm: name})
	}
	for _, r := range v.codeRules {
		hit, err := r.Matches(source)
		if err != nil {
			hit = true
		}
		if hit {
			return v.rejectCharm(&Violation{Reason: r.Reason, Rule: r.Name, Charm: name})
		}
	}
	return nil
}

func (v *Validator) reject(viol *Violation) error {
	count := 0
	if viol.UserID != "" {
		v.mu.Lock()
		rec, ok := v.violations[viol.UserID]
		if !ok {
			rec = &violationRecord{}
			v.violations[viol.UserID] = rec
		}
		rec.count++
		rec.last = v.now()
		count = rec.count
		v.mu.Unlock()
	}

	ev := v.log.Warn().
		Str("event", "security").
		Str("user", viol.UserID).
		Str("reason", string(viol.Reason)).
		Str("rule", viol.Rule).
		Int("violations", count)
	if count >= v.blockThreshold {
		ev = ev.Bool("blocked", true)
	}
	ev.Msg("input rejected")
	return viol
}

func (v *Validator) rejectCharm(viol *Violation) error {
	v.log.Error().
		Str("event", "security").
		Str("charm", viol.Charm).
		Str("reason", string(viol.Reason)).
		Str("rule", viol.Rule).
		Msg("charm integrity check failed")
	return viol
}

// IsBlocked reports whether the user reached the block threshold.
func (v *Validator) IsBlocked(userID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.violations[userID]
	return ok && rec.count >= v.blockThreshold
}

// Violations returns the user's accumulated violation count.
func (v *Validator) Violations(userID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if rec, ok := v.violations[userID]; ok {
		return rec.count
	}
	return 0
}

// ResetUser clears the user's counter, lifting a block. It reports whether
// there was anything to clear.
func (v *Validator) ResetUser(userID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.violations[userID]
	delete(v.violations, userID)
	return ok
}

// Cleanup drops records idle for more than 24h. Blocked users are kept until
// ResetUser. It returns the number of records removed.
func (v *Validator) Cleanup() int {
	cutoff := v.now().Add(-recordMaxAge)

	v.mu.Lock()
	defer v.mu.Unlock()
	removed := 0
	for id, rec := range v.violations {
		if rec.count >= v.blockThreshold {
			continue
		}
		if rec.last.Before(cutoff) {
			delete(v.violations, id)
			removed++
		}
	}
	return removed
}

// BlockedUsers returns how many users are currently blocked.
func (v *Validator) BlockedUsers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, rec := range v.violations {
		if rec.count >= v.blockThreshold {
			n++
		}
	}
	return n
}
