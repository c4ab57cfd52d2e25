package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alumet-io/alumet/internal/log"
	"github.com/alumet-io/alumet/pkg/plugin"
)

// State tracks a plugin's position in its lifecycle.
type State int

const (
	StateRegistered State = iota
	StateInitialized
	StateReady
	StateStopped
	StateError
)

func (s State) String() string {
	return [...]string{"Registered", "Initialized", "Ready", "Stopped", "Error"}[s]
}

// Status reports one plugin's current lifecycle state.
type Status struct {
	Name  string
	State State
	Error error
}

// ManagerConfig bounds how long each lifecycle phase is allowed to run.
type ManagerConfig struct {
	InitTimeout  time.Duration
	StartTimeout time.Duration
	StopTimeout  time.Duration

	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}

// Manager drives every registered plugin through Init -> Start ->
// PostPipelineStart -> Stop in dependency order, with per-phase timeouts
// and an optional periodic health-check loop, grounded on the teacher's
// Manager but bound to pkg/plugin.Plugin's Start(StartContext)/
// PostPipelineStart(PostStartContext) contract instead of a bare Start().
type Manager struct {
	config   ManagerConfig
	registry *Registry

	mu       sync.RWMutex
	statuses map[string]*Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager constructs a Manager over registry.
func NewManager(config ManagerConfig, registry *Registry) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:   config,
		registry: registry,
		statuses: make(map[string]*Status),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Initialize calls Init on every plugin in dependency order, falling back
// to the plugin's own DefaultConfig when configs has no section for it.
func (m *Manager) Initialize(configs map[string]map[string]interface{}) error {
	order, err := m.registry.GetLoadOrder()
	if err != nil {
		return err
	}

	log.GetLogger().Info("initializing plugins in dependency order")

	for _, name := range order {
		d, _ := m.registry.Get(name)
		cfg := plugin.Config(configs[name])
		if cfg == nil {
			cfg = d.Plugin.DefaultConfig()
		}
		if err := m.initPlugin(d.Plugin, cfg); err != nil {
			log.GetLogger().WithError(err).Errorf("failed to initialize plugin %s", name)
			return err
		}
		log.GetLogger().Infof("initialized plugin %s", name)
	}
	return nil
}

func (m *Manager) initPlugin(p plugin.Plugin, cfg plugin.Config) error {
	name := p.Name()
	m.mu.Lock()
	m.statuses[name] = &Status{Name: name, State: StateRegistered}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, m.config.InitTimeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- p.Init(cfg) }()

	select {
	case <-ctx.Done():
		err := fmt.Errorf("initialization timeout after %v", m.config.InitTimeout)
		m.updateStatus(name, StateError, err)
		return err
	case err := <-errChan:
		if err != nil {
			m.updateStatus(name, StateError, err)
			return err
		}
		m.updateStatus(name, StateInitialized, nil)
		return nil
	}
}

// Start calls Start(ctx) on every plugin in dependency order. newContext is
// invoked once per plugin so the caller can hand each plugin its own
// StartContext scoped to its name (needed to track, e.g., which transforms
// a given plugin registered for the control plane's per-plugin mask),
// rather than sharing one anonymous context across every plugin.
func (m *Manager) Start(newContext func(pluginName string) plugin.StartContext) error {
	order, err := m.registry.GetLoadOrder()
	if err != nil {
		return err
	}

	log.GetLogger().Info("starting plugins")

	for _, name := range order {
		d, _ := m.registry.Get(name)
		if err := m.startPlugin(d.Plugin, newContext(name)); err != nil {
			log.GetLogger().WithError(err).Errorf("failed to start plugin %s", name)
			return err
		}
		log.GetLogger().Infof("started plugin %s", name)
	}

	if m.config.HealthCheckInterval > 0 {
		m.wg.Add(1)
		go m.healthCheckLoop()
	}
	return nil
}

func (m *Manager) startPlugin(p plugin.Plugin, start plugin.StartContext) error {
	name := p.Name()
	ctx, cancel := context.WithTimeout(m.ctx, m.config.StartTimeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- p.Start(start) }()

	select {
	case <-ctx.Done():
		err := fmt.Errorf("start timeout after %v", m.config.StartTimeout)
		m.updateStatus(name, StateError, err)
		return err
	case err := <-errChan:
		if err != nil {
			m.updateStatus(name, StateError, err)
			return err
		}
		m.updateStatus(name, StateReady, nil)
		return nil
	}
}

// PostStart calls PostPipelineStart(post) on every plugin, once the
// pipeline built during Start is already running.
func (m *Manager) PostStart(post plugin.PostStartContext) error {
	order, err := m.registry.GetLoadOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		d, _ := m.registry.Get(name)
		if err := d.Plugin.PostPipelineStart(post); err != nil {
			return fmt.Errorf("plugin %q PostPipelineStart: %w", name, err)
		}
	}
	return nil
}

// Stop calls Stop on every plugin in reverse dependency order.
func (m *Manager) Stop() error {
	m.cancel()
	m.wg.Wait()

	order, err := m.registry.GetLoadOrder()
	if err != nil {
		return err
	}

	log.GetLogger().Info("stopping plugins")

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		d, _ := m.registry.Get(name)
		if err := m.stopPlugin(d.Plugin); err != nil {
			log.GetLogger().WithError(err).Errorf("failed to stop plugin %s", name)
			return err
		}
		log.GetLogger().Infof("stopped plugin %s", name)
	}
	return nil
}

func (m *Manager) stopPlugin(p plugin.Plugin) error {
	name := p.Name()
	ctx, cancel := context.WithTimeout(context.Background(), m.config.StopTimeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- p.Stop() }()

	select {
	case <-ctx.Done():
		err := fmt.Errorf("stop timeout after %v", m.config.StopTimeout)
		m.updateStatus(name, StateError, err)
		return err
	case err := <-errChan:
		if err != nil {
			m.updateStatus(name, StateError, err)
			return err
		}
		m.updateStatus(name, StateStopped, nil)
		return nil
	}
}

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkAllPlugins()
		}
	}
}

func (m *Manager) checkAllPlugins() {
	m.mu.RLock()
	ready := make([]string, 0)
	for name, status := range m.statuses {
		if status.State == StateReady {
			ready = append(ready, name)
		}
	}
	m.mu.RUnlock()

	for _, name := range ready {
		d, err := m.registry.Get(name)
		if err != nil {
			continue
		}
		checker, ok := d.Plugin.(HealthChecker)
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.config.HealthCheckTimeout)
		errChan := make(chan error, 1)
		go func() { errChan <- checker.Health() }()

		select {
		case <-ctx.Done():
			err := fmt.Errorf("health check timeout after %v", m.config.HealthCheckTimeout)
			m.updateStatus(name, StateError, err)
			log.GetLogger().WithError(err).Errorf("health check timeout for plugin %s", name)
		case err := <-errChan:
			if err != nil {
				m.updateStatus(name, StateError, err)
				log.GetLogger().WithError(err).Errorf("health check failed for plugin %s", name)
			}
		}
		cancel()
	}
}

// GetStatus returns the current status of the named plugin.
func (m *Manager) GetStatus(name string) (*Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if status, exists := m.statuses[name]; exists {
		return status, nil
	}
	return nil, fmt.Errorf("plugin %q not found", name)
}

// GetAllStatuses returns a snapshot of every plugin's status.
func (m *Manager) GetAllStatuses() map[string]*Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]*Status, len(m.statuses))
	for name, status := range m.statuses {
		statuses[name] = status
	}
	return statuses
}

func (m *Manager) updateStatus(name string, state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, exists := m.statuses[name]
	if !exists {
		status = &Status{Name: name}
		m.statuses[name] = status
	}
	status.State = state
	status.Error = err
}
