package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gammadia/compound/cloud"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node string

func (n node) Name() string { return string(n) }

func TestRegistry(t *testing.T) {
	registry := New()

	require.NoError(t, registry.Add(node("a")))
	require.NoError(t, registry.Add(node("b")))
	assert.EqualError(t, registry.Add(node("a")), "node 'a' is already registered")

	found, ok := registry.Get("a")
	assert.True(t, ok)
	assert.Equal(t, node("a"), found)

	_, ok = registry.Get("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []cloud.Node{node("a"), node("b")}, registry.List())

	require.NoError(t, registry.Remove(node("a")))
	assert.EqualError(t, registry.Remove(node("a")), "node 'a' is not registered")
	assert.Equal(t, 1, registry.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := node(fmt.Sprintf("node-%d", i))
			assert.NoError(t, registry.Add(name))
			_, ok := registry.Get(string(name))
			assert.True(t, ok)
			_ = registry.List()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, registry.Len())
	names := lo.Map(registry.List(), func(n cloud.Node, _ int) string { return n.Name() })
	assert.Len(t, lo.Uniq(names), 50)
}
