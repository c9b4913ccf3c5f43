package dispatch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_KeepsNewest(t *testing.T) {
	h := NewHistory(3)
	for i := range 5 {
		h.Append("g", HistoryRecord{Command: fmt.Sprintf("c%d", i)})
	}
	h.Append("other", HistoryRecord{Command: "x"})

	got := h.Fetch("g")
	require.Len(t, got, 3)
	assert.Equal(t, "c2", got[0].Command)
	assert.Equal(t, "c4", got[2].Command)

	got[0].Command = "mutated"
	assert.Equal(t, "c2", h.Fetch("g")[0].Command)
	assert.Len(t, h.Fetch("other"), 1)
	assert.Empty(t, h.Fetch("missing"))
}

func TestHistory_DefaultLimit(t *testing.T) {
	h := NewHistory(0)
	for range DefaultHistorySize + 5 {
		h.Append("g", HistoryRecord{})
	}
	assert.Len(t, h.Fetch("g"), DefaultHistorySize)
}
