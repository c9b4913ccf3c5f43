package charm

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Middleware wraps a handler (logging, recovery, metrics).
type Middleware func(Handler) Handler

// Apply wraps h so that the first middleware is the outermost.
func Apply(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// PanicError is returned by WithRecover when a handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("charm panicked: %v", e.Value)
}

// WithRecover turns a panic in the handler into a *PanicError.
func WithRecover() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, c *Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, c)
		}
	}
}

// WithCommandLog logs each execution with its duration and outcome.
func WithCommandLog(logger zerolog.Logger, name string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, c *Context) error {
			start := time.Now()
			err := next(ctx, c)

			ev := logger.Info()
			if err != nil {
				ev = logger.Error().Err(err)
			}
			ev = ev.Str("charm", name).
				Str("user", c.Caller.ID).
				Dur("took", time.Since(start))
			if c.Guild != nil {
				ev = ev.Str("guild", c.Guild.ID)
			}
			ev.Msg("charm executed")
			return err
		}
	}
}
