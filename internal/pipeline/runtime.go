package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/alumet-io/alumet/internal/measurement"
	"github.com/alumet-io/alumet/internal/metric"
	"github.com/alumet-io/alumet/pkg/plugin"
)

// Config holds the structural parameters a Pipeline is built from: channel
// capacities and the chain of registered tasks. Mirrors the shape of the
// teacher's pipeline Config/Builder, generalized from a single
// capture/decode/parse/process/report chain to the Source/Transform/Output
// dataflow.
type Config struct {
	SourceChannelCapacity int // source->transform bounded channel (non-blocking send)
	BroadcastCapacity     int // transform->outputs broadcast ring, per subscriber
	RealtimePoolSize      int // dedicated pool for RealtimePriority sources; 0 disables it
}

// Registration is everything the runtime needs to spawn one SourceTask.
type Registration struct {
	Name     string
	Source   plugin.Source
	Category plugin.SourceCategory
}

// OutputRegistration is everything the runtime needs to spawn one
// OutputTask.
type OutputRegistration struct {
	Name   string
	Output plugin.Output
}

// autonomousRegistration pairs a plugin.AutonomousSource with its name for
// the spawned-and-forgotten task spun up in Start.
type autonomousRegistration struct {
	Name   string
	Source plugin.AutonomousSource
}

// Pipeline owns the running Sources -> Transform -> Outputs dataflow and
// implements wait_for_all semantics: Stop blocks until every source, then
// the transform task, then every output has completed, aggregating the
// first real failure via go.uber.org/multierr (SPEC_FULL.md §5, §7).
type Pipeline struct {
	cfg Config

	// InstanceID uniquely identifies this pipeline run; it is reported by
	// the daemon's status endpoint.
	InstanceID uuid.UUID

	in       chan *measurement.Buffer
	broadcast *Broadcast

	realtimePool *pool.ErrorPool

	activeFlags *atomic.Uint64
	chain       []NamedTransform
	registry    *metric.Registry

	sourceCmds map[string]*Watch[SourceCmd]
	outputCmds map[string]*Watch[OutputCmd]

	sources    []*SourceTask
	autonomous []autonomousRegistration
	transform  *TransformTask
	outputs    []*OutputTask

	metrics *TaskMetrics
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	pool   *pool.ErrorPool
	mu     sync.Mutex
	err    error
}

// New constructs a Pipeline. Sources, the transform chain and outputs are
// added via AddSource/AddTransform/AddOutput before calling Start, matching
// the plugin Start(alumet_start) contract in pkg/plugin: a plugin's
// StartContext implementation delegates to these methods.
func New(cfg Config, metrics *TaskMetrics, log *logrus.Entry) *Pipeline {
	if cfg.SourceChannelCapacity <= 0 {
		cfg.SourceChannelCapacity = 1024
	}
	if cfg.BroadcastCapacity <= 0 {
		cfg.BroadcastCapacity = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:         cfg,
		InstanceID:  uuid.NewV4(),
		in:          make(chan *measurement.Buffer, cfg.SourceChannelCapacity),
		broadcast:   NewBroadcast(cfg.BroadcastCapacity),
		activeFlags: atomic.NewUint64(0),
		registry:    metric.NewRegistry(),
		sourceCmds:  make(map[string]*Watch[SourceCmd]),
		outputCmds:  make(map[string]*Watch[OutputCmd]),
		metrics:     metrics,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ActiveFlags exposes the shared activation word for the control plane.
func (p *Pipeline) ActiveFlags() *atomic.Uint64 { return p.activeFlags }

// SourceNames returns the name of every registered source, in registration
// order, for status reporting.
func (p *Pipeline) SourceNames() []string {
	names := make([]string, len(p.sources))
	for i, s := range p.sources {
		names[i] = s.Name
	}
	return names
}

// OutputNames returns the name of every registered output, in registration
// order, for status reporting.
func (p *Pipeline) OutputNames() []string {
	names := make([]string, len(p.outputs))
	for i, o := range p.outputs {
		names[i] = o.Name
	}
	return names
}

// Chain exposes the transform chain for mask computation by the control
// plane.
func (p *Pipeline) Chain() []NamedTransform { return p.chain }

// SourceWatch returns the per-source command watch, for control plane
// wiring.
func (p *Pipeline) SourceWatch(name string) (*Watch[SourceCmd], bool) {
	w, ok := p.sourceCmds[name]
	return w, ok
}

// OutputWatch returns the per-output command watch, for control plane
// wiring.
func (p *Pipeline) OutputWatch(name string) (*Watch[OutputCmd], bool) {
	w, ok := p.outputCmds[name]
	return w, ok
}

// AddSource registers a source, enabled by default (all transform bits are
// governed independently; sources always run once started). Registering a
// RealtimePriority source with no realtime pool configured
// (Config.RealtimePoolSize == 0) is a configuration error (ErrNoRealtimePool,
// SPEC_FULL.md §12): Go has no portable realtime scheduling primitive, so
// such sources instead run on a smaller, dedicated goroutine pool whose
// workers pin themselves to an OS thread for best-effort latency isolation.
func (p *Pipeline) AddSource(reg Registration) error {
	if reg.Category == plugin.RealtimePrioritySource && p.cfg.RealtimePoolSize == 0 {
		return fmt.Errorf("%w: source %q", ErrNoRealtimePool, reg.Name)
	}
	cmds := NewWatch[SourceCmd]()
	p.sourceCmds[reg.Name] = cmds
	p.sources = append(p.sources, &SourceTask{
		Name:     reg.Name,
		Source:   reg.Source,
		Category: reg.Category,
		Out:      p.in,
		Cmds:     cmds,
		Log:      p.log.WithField("source", reg.Name),
		Metrics:  p.metrics,
	})
	return nil
}

// AddAutonomousSource registers a pre-built cooperative task that pushes
// buffers to the source->transform channel directly, bypassing the
// SourceCmd protocol entirely. It is spawned in Start and forgotten: the
// only way to stop it is pipeline shutdown (its stop channel closes when
// the pipeline's context is cancelled).
func (p *Pipeline) AddAutonomousSource(name string, src plugin.AutonomousSource) {
	p.autonomous = append(p.autonomous, autonomousRegistration{Name: name, Source: src})
}

// AddTransform appends a transform to the fixed-order chain. The chain is
// frozen once Start is called. Limit: 64 transforms (one atomic word).
func (p *Pipeline) AddTransform(name string, t plugin.Transform) error {
	if len(p.chain) >= 64 {
		return fmt.Errorf("alumet: transform chain limit (64) exceeded, cannot add %q", name)
	}
	p.chain = append(p.chain, NamedTransform{Name: name, Transform: t, Index: uint(len(p.chain))})
	return nil
}

// AddOutput registers an output.
func (p *Pipeline) AddOutput(reg OutputRegistration) {
	cmds := NewWatch[OutputCmd]()
	p.outputCmds[reg.Name] = cmds
	id, sub := p.broadcast.Subscribe()
	_ = id
	p.outputs = append(p.outputs, &OutputTask{
		Name:     reg.Name,
		Output:   reg.Output,
		Sub:      sub,
		Cmds:     cmds,
		Registry: p.registry.Clone(),
		Log:      p.log.WithField("output", reg.Name),
		Metrics:  p.metrics,
	})
}

// RegisterMetrics registers metrics against the pipeline's canonical
// registry directly (used for metrics known before Start; post-start
// registrations go through the RegisterMetrics OutputMsg round-trip
// instead, per spec.md §4.3).
func (p *Pipeline) RegisterMetrics(metrics []metric.Metric) []uint32 {
	ids := make([]uint32, len(metrics))
	for i, m := range metrics {
		ids[i] = p.registry.Register(m)
	}
	return ids
}

// Start configures every source's trigger (SourceCmd.SetTrigger must be the
// first command each source task observes) and spawns every task through a
// sourcegraph/conc error pool, generalizing the teacher's manual
// WaitGroup+recover pattern (internal/task/task.go) into a pool whose Wait
// aggregates panics and errors alike.
func (p *Pipeline) Start(triggers map[string]SourceCmd) error {
	p.transform = &TransformTask{
		Chain:       p.chain,
		ActiveFlags: p.activeFlags,
		In:          p.in,
		Out:         p.broadcast,
		Log:         p.log.WithField("component", "transform"),
		Metrics:     p.metrics,
	}

	for _, src := range p.sources {
		trig, ok := triggers[src.Name]
		if !ok || trig.Kind != SourceSetTrigger {
			return fmt.Errorf("%w: no SetTrigger command staged for source %q", ErrProtocolViolation, src.Name)
		}
		p.sourceCmds[src.Name].Send(trig)
	}

	p.pool = pool.New().WithErrors()
	if p.cfg.RealtimePoolSize > 0 {
		p.realtimePool = pool.New().WithErrors().WithMaxGoroutines(p.cfg.RealtimePoolSize)
	}

	var sourcesDone sync.WaitGroup
	sourcesDone.Add(len(p.sources) + len(p.autonomous))
	for _, src := range p.sources {
		src := src
		spawn := p.pool.Go
		if src.Category == plugin.RealtimePrioritySource {
			spawn = p.realtimePool.Go
		}
		spawn(func() error {
			defer sourcesDone.Done()
			if src.Category == plugin.RealtimePrioritySource {
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()
			}
			return src.Run()
		})
	}

	stopAutonomous := make(chan struct{})
	go func() {
		<-p.ctx.Done()
		close(stopAutonomous)
	}()
	for _, a := range p.autonomous {
		a := a
		p.pool.Go(func() error {
			defer sourcesDone.Done()
			a.Source.Run(p.in, stopAutonomous)
			return nil
		})
	}
	// The shared source->transform channel is closed only once every
	// source has finished, so the transform task's range loop terminates
	// naturally (spec.md §4.2 "on input channel closed: terminate
	// successfully") instead of racing multiple sources over who closes it.
	go func() {
		sourcesDone.Wait()
		close(p.in)
	}()

	p.pool.Go(func() error {
		err := p.transform.Run()
		p.broadcast.Close()
		return err
	})
	for _, out := range p.outputs {
		out := out
		p.pool.Go(func() error { return out.Run() })
	}

	return nil
}

// WaitForAll blocks until sources, the transform task and outputs have all
// completed, returning the aggregated first failure (if any) via
// go.uber.org/multierr.
func (p *Pipeline) WaitForAll() error {
	err := p.pool.Wait()
	if p.realtimePool != nil {
		err = multierr.Append(err, p.realtimePool.Wait())
	}
	if err != nil {
		p.mu.Lock()
		p.err = multierr.Append(p.err, err)
		p.mu.Unlock()
	}
	return err
}

// Stop issues Stop to every source and output, closes the shared input
// channel and broadcast once sources have drained, then waits for the
// transform and outputs to finish. Dropping the handle entirely (cancelling
// ctx) is the non-graceful path; Stop is the graceful one.
func (p *Pipeline) Stop() error {
	for _, w := range p.sourceCmds {
		w.Send(SourceCmd{Kind: SourceStop})
	}
	for _, w := range p.outputCmds {
		w.Send(OutputCmd{Kind: OutputStop})
	}
	p.cancel()
	return p.WaitForAll()
}

// Context returns the pipeline's lifecycle context, cancelled by Stop.
func (p *Pipeline) Context() context.Context { return p.ctx }
