package charm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"ping", "ping", 0},
		{"pog", "pong", 1},
		{"pog", "poll", 2},
		{"kitten", "sitting", 3},
		{"héllo", "hello", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, Levenshtein(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
}

func TestSuggest(t *testing.T) {
	names := []string{"help", "hello", "helm", "say", "embed", "held"}

	got := Suggest("HELP", names, 2, 3)
	assert.Equal(t, []string{"help", "helm", "held"}, got, "distance first, then registry order")

	assert.Len(t, Suggest("hel", names, 2, 10), 4)
	assert.NotNil(t, Suggest("zzzzzz", names, 2, 3))
	assert.Empty(t, Suggest("zzzzzz", names, 2, 3))
}
