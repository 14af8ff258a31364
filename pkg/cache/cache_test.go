package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStampValidation(t *testing.T) {
	c, err := New("test", 10)
	require.NoError(t, err)

	t0 := time.Now()
	s0 := Stamp{Size: 11, ModTime: t0}
	c.Put("revprops/0/1", s0, "props-v1")

	v, ok := c.Get("revprops/0/1", s0)
	require.True(t, ok)
	assert.Equal(t, "props-v1", v)

	// the backing file moved on: the entry must not be served
	s1 := Stamp{Size: 14, ModTime: t0.Add(time.Second)}
	_, ok = c.Get("revprops/0/1", s1)
	assert.False(t, ok)

	// the stale entry was dropped on the failed lookup
	assert.Zero(t, c.Len())
}

func TestCacheEviction(t *testing.T) {
	c, err := New("small", 2)
	require.NoError(t, err)

	s := Stamp{Size: 1, ModTime: time.Now()}
	c.Put("a", s, 1)
	c.Put("b", s, 2)
	c.Put("c", s, 3)

	_, ok := c.Get("a", s)
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get("c", s)
	assert.True(t, ok)

	c.Drop("c")
	_, ok = c.Get("c", s)
	assert.False(t, ok)
}

func TestSharedNamespaces(t *testing.T) {
	c1, err := Shared("ns-shared-test", 10)
	require.NoError(t, err)
	c2, err := Shared("ns-shared-test", 10)
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	s := Stamp{Size: 5, ModTime: time.Now()}
	c1.Put("k", s, "visible")
	v, ok := c2.Get("k", s)
	require.True(t, ok)
	assert.Equal(t, "visible", v)

	// empty namespaces stay private and get a generated name
	p1, err := Shared("", 10)
	require.NoError(t, err)
	p2, err := Shared("", 10)
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
	assert.NotEmpty(t, p1.Namespace())
	assert.NotEqual(t, p1.Namespace(), p2.Namespace())
}
