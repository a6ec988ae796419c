package marketnames

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	entries []Entry
	err     error
}

func (s staticSource) ListNames(context.Context) ([]Entry, error) { return s.entries, s.err }

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	assert.Equal(t, "Total Points", c.Name(16, "basketball"))
	assert.Equal(t, "Asian Handicap", c.Name(11, "soccer"))
	assert.Equal(t, "Market 424242", c.Name(424242, "soccer"))
}

func TestOverridesTakePrecedence(t *testing.T) {
	c, err := Parse([]byte("default:\n  16: Totals\nsoccer:\n  16: Goals\n"))
	require.NoError(t, err)

	n, err := c.LoadOverrides(context.Background(), staticSource{entries: []Entry{
		{Sport: "soccer", MarketID: 16, Name: "Gols"},
		{MarketID: 99, Name: "Especial"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "Gols", c.Name(16, "soccer"))
	assert.Equal(t, "Totals", c.Name(16, "tennis"))
	assert.Equal(t, "Especial", c.Name(99, "tennis"))
}

func TestLoadOverridesError(t *testing.T) {
	c, err := Parse([]byte("default:\n  1: Result\n"))
	require.NoError(t, err)

	_, err = c.LoadOverrides(context.Background(), staticSource{err: errors.New("boom")})
	assert.Error(t, err)
	assert.Equal(t, "Result", c.Name(1, "soccer"))
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("default: [1, 2"))
	assert.Error(t, err)
}
