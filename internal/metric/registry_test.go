package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_IsEmpty(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(0)
	assert.False(t, ok)
	_, ok = r.LookupByName("anything")
	assert.False(t, ok)
}

func TestRegistry_Register_AssignsDenseIDs(t *testing.T) {
	r := NewRegistry()
	id0 := r.Register(Metric{Name: "cpu_energy_joules"})
	id1 := r.Register(Metric{Name: "gpu_energy_joules"})

	assert.Equal(t, uint32(0), id0)
	assert.Equal(t, uint32(1), id1)

	m, ok := r.Lookup(id1)
	require.True(t, ok)
	assert.Equal(t, "gpu_energy_joules", m.Name)
}

func TestRegistry_Register_IdempotentByName(t *testing.T) {
	r := NewRegistry()
	id0 := r.Register(Metric{Name: "cpu_energy_joules", Unit: "J"})
	id1 := r.Register(Metric{Name: "cpu_energy_joules", Unit: "J"})

	assert.Equal(t, id0, id1, "re-registering the same name must return the existing id")

	m, ok := r.Lookup(id0)
	require.True(t, ok)
	assert.Equal(t, "J", m.Unit)
}

func TestRegistry_LookupByName(t *testing.T) {
	r := NewRegistry()
	id := r.Register(Metric{Name: "cpu_energy_joules"})

	got, ok := r.LookupByName("cpu_energy_joules")
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = r.LookupByName("missing")
	assert.False(t, ok)
}

func TestRegistry_Lookup_OutOfRangeID(t *testing.T) {
	r := NewRegistry()
	r.Register(Metric{Name: "only_one"})

	_, ok := r.Lookup(5)
	assert.False(t, ok)
}

func TestRegistry_Clone_IsIndependent(t *testing.T) {
	r := NewRegistry()
	r.Register(Metric{Name: "cpu_energy_joules"})

	clone := r.Clone()
	clone.Register(Metric{Name: "gpu_energy_joules"})

	_, ok := r.LookupByName("gpu_energy_joules")
	assert.False(t, ok, "registering on the clone must not leak back into the original")

	_, ok = clone.LookupByName("cpu_energy_joules")
	assert.True(t, ok, "the clone must carry everything registered before cloning")
}

func TestRegistry_Clone_ExtraRegistrationsDontShareIDSpace(t *testing.T) {
	r := NewRegistry()
	r.Register(Metric{Name: "cpu_energy_joules"})

	clone := r.Clone()
	cloneID := clone.Register(Metric{Name: "gpu_energy_joules"})
	origID := r.Register(Metric{Name: "gpu_energy_joules"})

	assert.Equal(t, cloneID, origID, "both start from the same cloned length, so independent registration assigns the same next id")
	_, ok := clone.LookupByName("gpu_energy_joules")
	assert.True(t, ok)
}

func TestMetric_String(t *testing.T) {
	m := Metric{Name: "cpu_energy_joules", Unit: "J"}
	assert.Equal(t, "cpu_energy_joules (J)", m.String())
}
