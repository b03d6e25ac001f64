package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool, 500)
	for range 500 {
		got, err := Generate(PrefixCycle)
		require.NoError(t, err)
		require.False(t, seen[got], "duplicate id %s", got)
		seen[got] = true

		prefix, suffix, ok := Split(got)
		require.True(t, ok, got)
		assert.Equal(t, PrefixCycle, prefix)
		assert.Len(t, suffix, size)
		assert.NotContains(t, suffix, "_")
		assert.NotContains(t, suffix, "-")
	}
}

func TestHasPrefix(t *testing.T) {
	review, err := Generate(PrefixReview)
	require.NoError(t, err)

	assert.True(t, HasPrefix(review, PrefixReview))
	assert.False(t, HasPrefix(review, PrefixClient))
	assert.False(t, HasPrefix("review-", PrefixReview))
	assert.False(t, HasPrefix("review-short", PrefixReview))
	assert.False(t, HasPrefix("review-"+strings.Repeat("_", size), PrefixReview))
	assert.False(t, HasPrefix("review"+strings.Repeat("a", size), PrefixReview))
}

func BenchmarkGenerate(b *testing.B) {
	for b.Loop() {
		_, _ = Generate(PrefixCycle)
	}
}
