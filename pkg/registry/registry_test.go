package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("x", "first"))
	err := r.Register("x", "second")
	assert.Error(t, err)

	v, _ := r.Get("x")
	assert.Equal(t, "first", v)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := NewBaseRegistry[string]()
	assert.Error(t, r.Register("", "v"))
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := NewBaseRegistry[string]()

	names := []string{"lookup", "analytics", "documents", "extra"}
	for _, n := range names {
		require.NoError(t, r.Register(n, n+"-item"))
	}

	assert.Equal(t, names, r.Names())
	assert.Equal(t, []string{"lookup-item", "analytics-item", "documents-item", "extra-item"}, r.List())
}

func TestRemoveKeepsOrderOfRemaining(t *testing.T) {
	r := NewBaseRegistry[int]()
	for i, n := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(n, i))
	}

	require.NoError(t, r.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, r.Names())
	assert.Equal(t, 2, r.Count())

	assert.Error(t, r.Remove("b"))
}

func TestReplaceKeepsPosition(t *testing.T) {
	r := NewBaseRegistry[string]()
	require.NoError(t, r.Register("a", "1"))
	require.NoError(t, r.Register("b", "2"))

	require.NoError(t, r.Replace("a", "updated"))
	assert.Equal(t, []string{"a", "b"}, r.Names())

	v, _ := r.Get("a")
	assert.Equal(t, "updated", v)
}

func TestClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Register(fmt.Sprintf("item-%d", i), i))
	}

	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Names())
}
