package charm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRecover(t *testing.T) {
	h := Apply(func(context.Context, *Context) error {
		panic("boom")
	}, WithRecover())

	err := h(context.Background(), &Context{})
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestWithCommandLog_PassesThroughErrors(t *testing.T) {
	want := errors.New("failed")
	h := Apply(func(context.Context, *Context) error { return want },
		WithCommandLog(zerolog.Nop(), "x"))

	err := h(context.Background(), &Context{Caller: Caller{ID: "u1"}, Guild: &Guild{ID: "g1"}})
	assert.ErrorIs(t, err, want)
}
