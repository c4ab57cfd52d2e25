// Package daemon implements the measurement pipeline agent's process
// lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/alumet-io/alumet/internal/config"
	"github.com/alumet-io/alumet/internal/control"
	"github.com/alumet-io/alumet/internal/log"
	"github.com/alumet-io/alumet/internal/metric"
	"github.com/alumet-io/alumet/internal/metrics"
	"github.com/alumet-io/alumet/internal/pipeline"
	"github.com/alumet-io/alumet/internal/plugin"
	"github.com/alumet-io/alumet/internal/trigger"
	alumetplugin "github.com/alumet-io/alumet/pkg/plugin"
)

// Lifecycle phase timeouts for the plugin manager. Not presently
// user-configurable: the config surface already covers every structural
// knob a plugin author needs; these bound a programming error (a plugin
// that hangs in Init/Start/Stop), not a tunable.
const (
	pluginInitTimeout         = 10 * time.Second
	pluginStartTimeout        = 10 * time.Second
	pluginStopTimeout         = 10 * time.Second
	pluginHealthCheckInterval = 30 * time.Second
	pluginHealthCheckTimeout  = 5 * time.Second
)

// taskMetrics is registered on prometheus.DefaultRegisterer once per
// process, since registering the same metric names twice panics; every
// Daemon started in the process shares it.
var (
	taskMetricsOnce sync.Once
	taskMetrics     *pipeline.TaskMetrics
)

// Daemon owns the measurement pipeline agent's process lifecycle: config,
// the plugin registry/manager, the running Pipeline, the control plane and
// the metrics/status HTTP server. Adapted from the teacher's
// internal/daemon/daemon.go, now wrapping pipeline start/stop instead of a
// task manager + UDS server + Kafka consumer.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string

	registry *plugin.Registry
	manager  *plugin.Manager

	pipe          *pipeline.Pipeline
	controlPlane  *control.Plane
	controlHandle *control.Handle
	metricsServer *metrics.Server

	// Per-plugin registration bookkeeping, built up during Start by the
	// startContext handed to each plugin, and consumed afterwards to build
	// the control plane's per-plugin sender/mask tables.
	pluginSources    map[string][]string
	pluginOutputs    map[string][]string
	pluginTransforms map[string][]string
	startErr         error

	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
}

// New loads configuration and constructs a Daemon ready to Start.
func New(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:           cfg,
		configPath:       configPath,
		registry:         plugin.NewRegistry(),
		pluginSources:    make(map[string][]string),
		pluginOutputs:    make(map[string][]string),
		pluginTransforms: make(map[string][]string),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Start brings up logging, discovers and initializes plugins, assembles
// the pipeline from what they register, starts the control plane and the
// metrics/status HTTP server, and finally starts the pipeline dataflow
// itself.
func (d *Daemon) Start() error {
	log.Init(&d.config.Log)
	l := log.GetLogger()
	l.WithField("hostname", d.config.Node.Hostname).WithField("config", d.configPath).Info("starting alumet agent")

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	loaderMode := plugin.StaticMode
	if d.config.PluginDiscovery.Dir != "" {
		loaderMode = plugin.DynamicMode
	}
	loader := plugin.NewLoader(plugin.LoaderConfig{
		Mode:     loaderMode,
		Path:     d.config.PluginDiscovery.Dir,
		Patterns: d.config.PluginDiscovery.Patterns,
	}, d.registry)
	if err := loader.Load(); err != nil {
		return fmt.Errorf("failed to load plugins: %w", err)
	}

	d.manager = plugin.NewManager(plugin.ManagerConfig{
		InitTimeout:         pluginInitTimeout,
		StartTimeout:        pluginStartTimeout,
		StopTimeout:         pluginStopTimeout,
		HealthCheckInterval: pluginHealthCheckInterval,
		HealthCheckTimeout:  pluginHealthCheckTimeout,
	}, d.registry)

	pluginConfigs := make(map[string]map[string]interface{}, len(d.config.Plugins))
	for name, section := range d.config.Plugins {
		pluginConfigs[name] = section
	}
	if err := d.manager.Initialize(pluginConfigs); err != nil {
		return fmt.Errorf("failed to initialize plugins: %w", err)
	}

	taskMetricsOnce.Do(func() { taskMetrics = pipeline.NewTaskMetrics(prometheus.DefaultRegisterer) })
	d.pipe = pipeline.New(pipeline.Config{
		SourceChannelCapacity: d.config.Pipeline.SourceChannelCapacity,
		BroadcastCapacity:     d.config.Pipeline.BroadcastCapacity,
		RealtimePoolSize:      d.config.Pipeline.RealtimePoolSize,
	}, taskMetrics, log.Entry())

	pollInterval, _ := time.ParseDuration(d.config.Pipeline.DefaultPollInterval)
	flushInterval, _ := time.ParseDuration(d.config.Pipeline.DefaultFlushInterval)

	triggers := make(map[string]pipeline.SourceCmd)
	newContext := func(pluginName string) alumetplugin.StartContext {
		return &startContext{
			pluginName:    pluginName,
			daemon:        d,
			triggers:      triggers,
			pollInterval:  pollInterval,
			flushInterval: flushInterval,
		}
	}
	if err := d.manager.Start(newContext); err != nil {
		return fmt.Errorf("failed to start plugins: %w", err)
	}
	if d.startErr != nil {
		return fmt.Errorf("plugin registration failed: %w", d.startErr)
	}

	chain := d.pipe.Chain()
	pluginMask := make(map[string]uint64, len(d.pluginTransforms))
	for name, names := range d.pluginTransforms {
		pluginMask[name] = pipeline.MaskFor(chain, names...)
	}
	sourceSenders := make(map[string][]*pipeline.Watch[pipeline.SourceCmd])
	for name, srcNames := range d.pluginSources {
		for _, srcName := range srcNames {
			if w, ok := d.pipe.SourceWatch(srcName); ok {
				sourceSenders[name] = append(sourceSenders[name], w)
			}
		}
	}
	outputSenders := make(map[string][]*pipeline.Watch[pipeline.OutputCmd])
	for name, outNames := range d.pluginOutputs {
		for _, outName := range outNames {
			if w, ok := d.pipe.OutputWatch(outName); ok {
				outputSenders[name] = append(outputSenders[name], w)
			}
		}
	}

	d.controlPlane = control.NewPlane(
		sourceSenders, outputSenders, pluginMask,
		pipeline.AllMask(chain), d.pipe.ActiveFlags(), d.config.Control.QueueCapacity,
	)
	go d.controlPlane.Run(d.ctx)
	d.controlHandle = control.NewHandle(d.ctx, d.controlPlane)

	if err := d.pipe.Start(triggers); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	if err := d.manager.PostStart(&postStartContext{handle: d.controlHandle}); err != nil {
		return fmt.Errorf("plugin PostPipelineStart failed: %w", err)
	}

	if err := d.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	l.Info("alumet agent started successfully")
	return nil
}

func (d *Daemon) startMetricsServer() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path, d)
	return d.metricsServer.Start(d.ctx)
}

// Status implements metrics.StatusProvider, giving the /status HTTP
// endpoint (and the CLI `status` command, which reads it over HTTP) a
// read-only snapshot of what is currently running.
func (d *Daemon) Status() metrics.Report {
	chain := d.pipe.Chain()
	flags := d.pipe.ActiveFlags().Load()
	transforms := make([]metrics.TransformStatus, len(chain))
	for i, nt := range chain {
		transforms[i] = metrics.TransformStatus{Name: nt.Name, Active: flags&(1<<nt.Index) != 0}
	}
	return metrics.Report{
		InstanceID: d.pipe.InstanceID.String(),
		Sources:    d.pipe.SourceNames(),
		Transforms: transforms,
		Outputs:    d.pipe.OutputNames(),
	}
}

// Stop performs graceful shutdown: drain the pipeline, release plugin
// resources, stop the metrics server, then remove the PID file. Errors
// from each phase are aggregated rather than short-circuiting, so a
// failure in one component doesn't prevent cleanup of the rest.
func (d *Daemon) Stop() error {
	log.GetLogger().Info("initiating graceful shutdown")

	var err error
	if d.pipe != nil {
		err = multierr.Append(err, d.pipe.Stop())
	}
	if d.manager != nil {
		err = multierr.Append(err, d.manager.Stop())
	}
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = multierr.Append(err, d.metricsServer.Stop(shutdownCtx))
		cancel()
	}

	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	err = multierr.Append(err, d.removePIDFile())

	log.GetLogger().Info("daemon stopped gracefully")
	return err
}

// Run blocks until SIGTERM/SIGINT triggers a graceful Stop, or SIGHUP
// triggers a config Reload.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig.String()).Info("received shutdown signal")
				return d.Stop()
			case syscall.SIGHUP:
				log.GetLogger().Info("received reload signal")
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}
		case <-d.ctx.Done():
			return d.Stop()
		}
	}
}

// Reload re-reads the config file and reports which settings changed.
// Only the node section and plugin config tables are truly hot: every structural
// pipeline setting (channel capacities, realtime pool size) and the
// logging setup are fixed for the process lifetime once Start has run,
// mirroring the teacher's own hot/cold split in its Reload.
func (d *Daemon) Reload() error {
	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	var requiresRestart []string
	if newConfig.Pipeline != d.config.Pipeline {
		requiresRestart = append(requiresRestart, "pipeline")
	}
	if newConfig.Log.Level != d.config.Log.Level {
		requiresRestart = append(requiresRestart, "log.level")
	}
	if newConfig.Metrics.Listen != d.config.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}

	d.config.Node = newConfig.Node
	d.config.Plugins = newConfig.Plugins

	log.GetLogger().WithField("requires_restart", requiresRestart).Info("configuration reloaded")
	return nil
}

func (d *Daemon) writePIDFile() error {
	if d.config.Control.PIDFile == "" {
		return nil
	}
	pid := os.Getpid()
	if err := os.WriteFile(d.config.Control.PIDFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.config.Control.PIDFile, err)
	}
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.config.Control.PIDFile == "" {
		return nil
	}
	if err := os.Remove(d.config.Control.PIDFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.config.Control.PIDFile, err)
	}
	return nil
}

// startContext is handed to exactly one plugin's Start call, scoped to
// pluginName so its registrations can be attributed back to it for the
// control plane's per-plugin sender/mask tables.
type startContext struct {
	pluginName    string
	daemon        *Daemon
	triggers      map[string]pipeline.SourceCmd
	pollInterval  time.Duration
	flushInterval time.Duration
}

func (c *startContext) RegisterMetric(m alumetplugin.MetricDef) uint32 {
	valueType := metric.U64
	if m.IsFloat {
		valueType = metric.F64
	}
	ids := c.daemon.pipe.RegisterMetrics([]metric.Metric{{
		Name: m.Name, Description: m.Description, Unit: m.Unit, ValueType: valueType,
	}})
	return ids[0]
}

func (c *startContext) AddSource(name string, src alumetplugin.Source, category alumetplugin.SourceCategory) {
	if err := c.daemon.pipe.AddSource(pipeline.Registration{Name: name, Source: src, Category: category}); err != nil {
		c.recordError(err)
		return
	}
	trig, err := trigger.NewTimeInterval(time.Now(), c.pollInterval, c.flushInterval)
	if err != nil {
		c.recordError(err)
		return
	}
	c.daemon.pluginSources[c.pluginName] = append(c.daemon.pluginSources[c.pluginName], name)
	c.triggers[name] = pipeline.SourceCmd{Kind: pipeline.SourceSetTrigger, Trigger: trig}
}

func (c *startContext) AddAutonomousSource(name string, src alumetplugin.AutonomousSource) {
	c.daemon.pipe.AddAutonomousSource(name, src)
}

func (c *startContext) AddTransform(name string, t alumetplugin.Transform) {
	if err := c.daemon.pipe.AddTransform(name, t); err != nil {
		c.recordError(err)
		return
	}
	c.daemon.pluginTransforms[c.pluginName] = append(c.daemon.pluginTransforms[c.pluginName], name)
}

func (c *startContext) AddOutput(name string, out alumetplugin.Output) {
	c.daemon.pipe.AddOutput(pipeline.OutputRegistration{Name: name, Output: out})
	c.daemon.pluginOutputs[c.pluginName] = append(c.daemon.pluginOutputs[c.pluginName], name)
}

func (c *startContext) recordError(err error) {
	if c.daemon.startErr == nil {
		c.daemon.startErr = fmt.Errorf("plugin %q: %w", c.pluginName, err)
	}
}

// postStartContext is handed to every plugin's PostPipelineStart call,
// once the pipeline built during Start is already running.
type postStartContext struct {
	handle *control.Handle
}

func (p *postStartContext) ControlHandle() alumetplugin.ControlHandle { return p.handle }

var _ alumetplugin.StartContext = (*startContext)(nil)
var _ alumetplugin.PostStartContext = (*postStartContext)(nil)
