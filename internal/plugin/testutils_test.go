package plugin

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alumet-io/alumet/internal/log"
	"github.com/alumet-io/alumet/pkg/plugin"
)

// TestMain runs before all tests in this package
func TestMain(m *testing.M) {
	// 初始化日志框架
	log.Init(&log.LoggerConfig{Level: "info"})

	code := m.Run()
	os.Exit(code)
}

// MockPlugin 模拟插件（用于测试）
type MockPlugin struct {
	name         string
	version      string
	initCalled   atomic.Bool
	startCalled  atomic.Bool
	stopCalled   atomic.Bool
	healthCalled atomic.Bool

	// 控制行为
	initDelay   time.Duration
	startDelay  time.Duration
	stopDelay   time.Duration
	healthDelay time.Duration

	initError   error
	startError  error
	stopError   error
	healthError error
}

// NewMockPlugin 创建模拟插件
func NewMockPlugin(name string) *MockPlugin {
	return &MockPlugin{name: name, version: "1.0.0"}
}

func (m *MockPlugin) Name() string                    { return m.name }
func (m *MockPlugin) Version() string                 { return m.version }
func (m *MockPlugin) DefaultConfig() plugin.Config     { return plugin.Config{} }
func (m *MockPlugin) PostPipelineStart(plugin.PostStartContext) error { return nil }

// Init 初始化
func (m *MockPlugin) Init(config plugin.Config) error {
	if m.initDelay > 0 {
		time.Sleep(m.initDelay)
	}
	m.initCalled.Store(true)
	return m.initError
}

// Start 启动
func (m *MockPlugin) Start(start plugin.StartContext) error {
	if m.startDelay > 0 {
		time.Sleep(m.startDelay)
	}
	m.startCalled.Store(true)
	return m.startError
}

// Stop 停止
func (m *MockPlugin) Stop() error {
	if m.stopDelay > 0 {
		time.Sleep(m.stopDelay)
	}
	m.stopCalled.Store(true)
	return m.stopError
}

// Health 健康检查 (optional HealthChecker)
func (m *MockPlugin) Health() error {
	if m.healthDelay > 0 {
		time.Sleep(m.healthDelay)
	}
	m.healthCalled.Store(true)
	return m.healthError
}

func (m *MockPlugin) WasInitCalled() bool   { return m.initCalled.Load() }
func (m *MockPlugin) WasStartCalled() bool  { return m.startCalled.Load() }
func (m *MockPlugin) WasStopCalled() bool   { return m.stopCalled.Load() }
func (m *MockPlugin) WasHealthCalled() bool { return m.healthCalled.Load() }

func (m *MockPlugin) SetInitDelay(d time.Duration)   { m.initDelay = d }
func (m *MockPlugin) SetStartDelay(d time.Duration)  { m.startDelay = d }
func (m *MockPlugin) SetStopDelay(d time.Duration)   { m.stopDelay = d }
func (m *MockPlugin) SetHealthDelay(d time.Duration) { m.healthDelay = d }

func (m *MockPlugin) SetInitError(err error)   { m.initError = err }
func (m *MockPlugin) SetStartError(err error)  { m.startError = err }
func (m *MockPlugin) SetStopError(err error)   { m.stopError = err }
func (m *MockPlugin) SetHealthError(err error) { m.healthError = err }

func (m *MockPlugin) Reset() {
	m.initCalled.Store(false)
	m.startCalled.Store(false)
	m.stopCalled.Store(false)
	m.healthCalled.Store(false)
}

// fakeStartContext is a no-op plugin.StartContext for manager tests that
// only need to observe plugin lifecycle calls, not real pipeline wiring.
type fakeStartContext struct{ nextID uint32 }

func (f *fakeStartContext) RegisterMetric(plugin.MetricDef) uint32 {
	f.nextID++
	return f.nextID
}
func (f *fakeStartContext) AddSource(string, plugin.Source, plugin.SourceCategory) {}
func (f *fakeStartContext) AddAutonomousSource(string, plugin.AutonomousSource)    {}
func (f *fakeStartContext) AddTransform(string, plugin.Transform)                  {}
func (f *fakeStartContext) AddOutput(string, plugin.Output)                        {}

var _ plugin.StartContext = (*fakeStartContext)(nil)
