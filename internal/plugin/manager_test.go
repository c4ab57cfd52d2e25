package plugin

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumet-io/alumet/pkg/plugin"
)

func testManagerConfig() ManagerConfig {
	return ManagerConfig{
		InitTimeout:         time.Second,
		StartTimeout:        time.Second,
		StopTimeout:         time.Second,
		HealthCheckInterval: 0,
		HealthCheckTimeout:  time.Second,
	}
}

func TestNewManager(t *testing.T) {
	r := NewRegistry()
	m := NewManager(testManagerConfig(), r)
	assert.NotNil(t, m)
}

func TestManager_Initialize_Success(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("plugin-one")
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	m := NewManager(testManagerConfig(), r)
	require.NoError(t, m.Initialize(map[string]map[string]interface{}{}))
	assert.True(t, mp.WasInitCalled())

	status, err := m.GetStatus("plugin-one")
	require.NoError(t, err)
	assert.Equal(t, StateInitialized, status.State)
}

func TestManager_Initialize_DependencyOrder(t *testing.T) {
	r := NewRegistry()
	pa := NewMockPlugin("plugin-A")
	pb := NewMockPlugin("plugin-B")
	require.NoError(t, r.Register(Descriptor{Plugin: pa}))
	require.NoError(t, r.Register(Descriptor{Plugin: pb, Dependencies: []string{"plugin-A"}}))

	m := NewManager(testManagerConfig(), r)
	require.NoError(t, m.Initialize(map[string]map[string]interface{}{}))
	assert.True(t, pa.WasInitCalled())
	assert.True(t, pb.WasInitCalled())
}

func TestManager_Initialize_PluginError(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("bad-plugin")
	mp.SetInitError(errors.New("boom"))
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	m := NewManager(testManagerConfig(), r)
	err := m.Initialize(map[string]map[string]interface{}{})
	require.Error(t, err)

	status, statusErr := m.GetStatus("bad-plugin")
	require.NoError(t, statusErr)
	assert.Equal(t, StateError, status.State)
}

func TestManager_Initialize_Timeout(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("slow-plugin")
	mp.SetInitDelay(50 * time.Millisecond)
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	cfg := testManagerConfig()
	cfg.InitTimeout = 5 * time.Millisecond
	m := NewManager(cfg, r)

	err := m.Initialize(map[string]map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestManager_Start_Success(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("plugin-one")
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	m := NewManager(testManagerConfig(), r)
	require.NoError(t, m.Start(func(string) plugin.StartContext { return &fakeStartContext{} }))
	assert.True(t, mp.WasStartCalled())

	status, err := m.GetStatus("plugin-one")
	require.NoError(t, err)
	assert.Equal(t, StateReady, status.State)
}

func TestManager_Start_Error(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("bad-plugin")
	mp.SetStartError(errors.New("boom"))
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	m := NewManager(testManagerConfig(), r)
	err := m.Start(func(string) plugin.StartContext { return &fakeStartContext{} })
	require.Error(t, err)
}

func TestManager_PostStart_Success(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("plugin-one")
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	m := NewManager(testManagerConfig(), r)
	require.NoError(t, m.PostStart(nil))
}

func TestManager_Stop_Success(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("plugin-one")
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	m := NewManager(testManagerConfig(), r)
	require.NoError(t, m.Start(func(string) plugin.StartContext { return &fakeStartContext{} }))
	require.NoError(t, m.Stop())
	assert.True(t, mp.WasStopCalled())

	status, err := m.GetStatus("plugin-one")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, status.State)
}

func TestManager_Stop_ReverseOrderThenError(t *testing.T) {
	r := NewRegistry()
	pa := NewMockPlugin("plugin-A")
	pb := NewMockPlugin("plugin-B")
	pa.SetStopError(errors.New("boom"))
	require.NoError(t, r.Register(Descriptor{Plugin: pa}))
	require.NoError(t, r.Register(Descriptor{Plugin: pb, Dependencies: []string{"plugin-A"}}))

	m := NewManager(testManagerConfig(), r)
	require.NoError(t, m.Start(func(string) plugin.StartContext { return &fakeStartContext{} }))

	err := m.Stop()
	require.Error(t, err)
	assert.True(t, pb.WasStopCalled(), "plugin-B stops first (reverse order) before plugin-A's error surfaces")
}

func TestManager_HealthCheck(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("plugin-one")
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	cfg := testManagerConfig()
	cfg.HealthCheckInterval = 5 * time.Millisecond
	m := NewManager(cfg, r)
	require.NoError(t, m.Start(func(string) plugin.StartContext { return &fakeStartContext{} }))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, mp.WasHealthCalled())

	require.NoError(t, m.Stop())
}

func TestManager_HealthCheck_UnhealthyPlugin(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("plugin-one")
	mp.SetHealthError(errors.New("unhealthy"))
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	cfg := testManagerConfig()
	cfg.HealthCheckInterval = 5 * time.Millisecond
	m := NewManager(cfg, r)
	require.NoError(t, m.Start(func(string) plugin.StartContext { return &fakeStartContext{} }))

	time.Sleep(30 * time.Millisecond)

	status, err := m.GetStatus("plugin-one")
	require.NoError(t, err)
	assert.Equal(t, StateError, status.State)

	require.NoError(t, m.Stop())
}

func TestManager_GetStatus(t *testing.T) {
	r := NewRegistry()
	mp := NewMockPlugin("plugin-one")
	require.NoError(t, r.Register(Descriptor{Plugin: mp}))

	m := NewManager(testManagerConfig(), r)
	require.NoError(t, m.Initialize(map[string]map[string]interface{}{}))

	status, err := m.GetStatus("plugin-one")
	require.NoError(t, err)
	assert.Equal(t, "plugin-one", status.Name)
}

func TestManager_GetStatus_NotFound(t *testing.T) {
	r := NewRegistry()
	m := NewManager(testManagerConfig(), r)

	_, err := m.GetStatus("nonexistent")
	require.Error(t, err)
}

func TestManager_GetAllStatuses(t *testing.T) {
	r := NewRegistry()

	p1 := NewMockPlugin("plugin1")
	p2 := NewMockPlugin("plugin2")

	require.NoError(t, r.Register(Descriptor{Plugin: p1}))
	require.NoError(t, r.Register(Descriptor{Plugin: p2}))

	config := testManagerConfig()
	manager := NewManager(config, r)
	require.NoError(t, manager.Initialize(make(map[string]map[string]interface{})))

	statuses := manager.GetAllStatuses()
	assert.Len(t, statuses, 2)
	assert.Contains(t, statuses, "plugin1")
	assert.Contains(t, statuses, "plugin2")
}
