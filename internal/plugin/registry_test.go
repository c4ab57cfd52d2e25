package plugin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desc(name string, deps ...string) Descriptor {
	return Descriptor{Plugin: NewMockPlugin(name), Dependencies: deps}
}

func TestRegistry_Register_Success(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(desc("test-plugin")))

	d, err := r.Get("test-plugin")
	require.NoError(t, err)
	assert.Equal(t, "test-plugin", d.Plugin.Name())
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(desc("test-plugin")))
	err := r.Register(desc("test-plugin"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_Get_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("non-existent-plugin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(desc("plugin-one")))
	require.NoError(t, r.Register(desc("plugin-two")))

	assert.Len(t, r.List(), 2)
}

func TestRegistry_GetLoadOrder_NoDependency(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(desc("plugin-one")))
	require.NoError(t, r.Register(desc("plugin-two")))
	require.NoError(t, r.Register(desc("plugin-three")))

	order, err := r.GetLoadOrder()
	require.NoError(t, err)
	assert.Len(t, order, 3)
	assert.Contains(t, order, "plugin-one")
	assert.Contains(t, order, "plugin-two")
	assert.Contains(t, order, "plugin-three")
}

func TestRegistry_GetLoadOrder_WithDependency(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(desc("plugin-A")))
	require.NoError(t, r.Register(desc("plugin-B", "plugin-A")))
	require.NoError(t, r.Register(desc("plugin-C", "plugin-B")))

	order, err := r.GetLoadOrder()
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, "plugin-A", order[0])
	assert.Equal(t, "plugin-B", order[1])
	assert.Equal(t, "plugin-C", order[2])
}

func TestRegistry_GetLoadOrder_ComplexDependency(t *testing.T) {
	r := NewRegistry()

	// D -> B -> A
	// D -> C -> A
	require.NoError(t, r.Register(desc("plugin-A")))
	require.NoError(t, r.Register(desc("plugin-B", "plugin-A")))
	require.NoError(t, r.Register(desc("plugin-C", "plugin-A")))
	require.NoError(t, r.Register(desc("plugin-D", "plugin-B", "plugin-C")))

	order, err := r.GetLoadOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)
	assert.Equal(t, "plugin-A", order[0])
	assert.Equal(t, "plugin-B", order[1])
	assert.Equal(t, "plugin-C", order[2])
	assert.Equal(t, "plugin-D", order[3])
}

func TestRegistry_GetLoadOrder_CircularDependency(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(desc("plugin-A", "plugin-B")))
	require.NoError(t, r.Register(desc("plugin-B", "plugin-C")))
	require.NoError(t, r.Register(desc("plugin-C", "plugin-A")))

	_, err := r.GetLoadOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestRegistry_GetLoadOrder_MissingDependency(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(desc("plugin-with-missing-dep", "missing-dep")))

	_, err := r.GetLoadOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dependency")
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	const numGoroutines = 100
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			_ = r.Register(desc(fmt.Sprintf("plugin-%d", id)))
			done <- true
		}(i)
	}
	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	assert.Len(t, r.List(), numGoroutines)
}
