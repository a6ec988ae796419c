package marketcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyIncludesVersion(t *testing.T) {
	c := &Cache{Instance: "a1"}
	assert.Equal(t, "live-odds:markets:a1:42:v7", c.Key("42", 7))
	assert.NotEqual(t, c.Key("42", 7), c.Key("42", 8))
}

func TestKeyIsScopedToInstance(t *testing.T) {
	a, b := New(nil, 0), New(nil, 0)

	assert.NotEmpty(t, a.Instance)
	assert.NotEqual(t, a.Instance, b.Instance)
	assert.NotEqual(t, a.Key("42", 5), b.Key("42", 5))
}

func TestNewDefaultsTTL(t *testing.T) {
	assert.Equal(t, 30*time.Second, New(nil, 0).TTL)
	assert.Equal(t, time.Minute, New(nil, time.Minute).TTL)
}
