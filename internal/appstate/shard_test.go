package appstate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShardedMap_GetOrCreateOnlyCreatesOnce(t *testing.T) {
	sm := newShardedMap[*Node](8)

	calls := 0
	create := func() *Node {
		calls++
		return &Node{ID: "n1"}
	}

	v1, created1 := sm.GetOrCreate("n1", create)
	v2, created2 := sm.GetOrCreate("n1", create)

	require.True(t, created1)
	require.False(t, created2)
	require.Same(t, v1, v2)
	require.Equal(t, 1, calls)
}

func TestShardedMap_DeleteRemovesKey(t *testing.T) {
	sm := newShardedMap[string](8)
	sm.Set("k", "v")

	v, ok := sm.Delete("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	_, ok = sm.Get("k")
	require.False(t, ok)

	_, ok = sm.Delete("k")
	require.False(t, ok)
}

func TestShardedMap_LenAndValues(t *testing.T) {
	sm := newShardedMap[int](4)
	sm.Set("a", 1)
	sm.Set("b", 2)
	sm.Set("c", 3)

	require.Equal(t, 3, sm.Len())
	require.ElementsMatch(t, []int{1, 2, 3}, sm.Values())
}
