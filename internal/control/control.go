// Package control implements the pipeline's control plane: a single task
// holding per-plugin sender maps and the shared transform activation word,
// reachable through a small family of handle types (Handle, ScopedHandle,
// BlockingHandle) — the full tiering implied
// but not spelled out by spec.md §4.4, supplemented from
// original_source/alumet/src/pipeline/runtime.rs (SPEC_FULL.md §12).
package control

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"github.com/alumet-io/alumet/internal/pipeline"
)

// Command is the unit of work sent on the bounded control queue. Commands
// are processed strictly in arrival order by the control task.
type Command struct {
	Scope  string // "" means all()
	Kind   CommandKind
	Source pipeline.SourceCmd
	Output pipeline.OutputCmd
	TX     pipeline.TransformCmdKind
	Reply  chan error
}

type CommandKind int

const (
	CmdControlSources CommandKind = iota
	CmdControlTransforms
	CmdControlOutputs
)

// defaultQueueCapacity is the recommended bounded multi-producer
// single-consumer control queue capacity from spec.md §5, used when
// NewPlane is given a non-positive capacity.
const defaultQueueCapacity = 256

// Plane is the control task's owned state. It exists exclusively after
// Start — no external mutation is permitted once the task is running
// (spec.md §5 "owned by the control task exclusively after startup").
type Plane struct {
	sourceSenders map[string][]*pipeline.Watch[pipeline.SourceCmd]
	outputSenders map[string][]*pipeline.Watch[pipeline.OutputCmd]
	pluginMask    map[string]uint64 // plugin name -> bitmask over its transforms
	allMask       uint64

	activeFlags *atomic.Uint64

	queue  chan Command
	done   chan struct{}
}

// NewPlane constructs an un-started control plane over the given
// plugin->sender registrations, plugin->mask table and the shared
// activation word. queueCapacity <= 0 falls back to defaultQueueCapacity.
func NewPlane(
	sourceSenders map[string][]*pipeline.Watch[pipeline.SourceCmd],
	outputSenders map[string][]*pipeline.Watch[pipeline.OutputCmd],
	pluginMask map[string]uint64,
	allMask uint64,
	activeFlags *atomic.Uint64,
	queueCapacity int,
) *Plane {
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	return &Plane{
		sourceSenders: sourceSenders,
		outputSenders: outputSenders,
		pluginMask:    pluginMask,
		allMask:       allMask,
		activeFlags:   activeFlags,
		queue:         make(chan Command, queueCapacity),
		done:          make(chan struct{}),
	}
}

// Run is the control task's main loop: process commands from the queue in
// arrival order until ctx is cancelled.
func (p *Plane) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-p.queue:
			err := p.apply(cmd)
			if cmd.Reply != nil {
				cmd.Reply <- err
			}
		}
	}
}

func (p *Plane) apply(cmd Command) error {
	switch cmd.Kind {
	case CmdControlSources:
		senders, err := p.resolveSourceSenders(cmd.Scope)
		if err != nil {
			return err
		}
		for _, w := range senders {
			w.Send(cmd.Source)
		}
		return nil

	case CmdControlOutputs:
		senders, err := p.resolveOutputSenders(cmd.Scope)
		if err != nil {
			return err
		}
		for _, w := range senders {
			w.Send(cmd.Output)
		}
		return nil

	case CmdControlTransforms:
		mask, err := p.resolveMask(cmd.Scope)
		if err != nil {
			return err
		}
		if cmd.TX == pipeline.TransformEnable {
			p.activeFlags.Or(mask)
		} else {
			p.activeFlags.And(^mask)
		}
		return nil
	}
	return nil
}

func (p *Plane) resolveSourceSenders(scope string) ([]*pipeline.Watch[pipeline.SourceCmd], error) {
	if scope == "" {
		var all []*pipeline.Watch[pipeline.SourceCmd]
		for _, v := range p.sourceSenders {
			all = append(all, v...)
		}
		return all, nil
	}
	senders, ok := p.sourceSenders[scope]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownPlugin, scope)
	}
	return senders, nil
}

func (p *Plane) resolveOutputSenders(scope string) ([]*pipeline.Watch[pipeline.OutputCmd], error) {
	if scope == "" {
		var all []*pipeline.Watch[pipeline.OutputCmd]
		for _, v := range p.outputSenders {
			all = append(all, v...)
		}
		return all, nil
	}
	senders, ok := p.outputSenders[scope]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownPlugin, scope)
	}
	return senders, nil
}

func (p *Plane) resolveMask(scope string) (uint64, error) {
	if scope == "" {
		return p.allMask, nil
	}
	mask, ok := p.pluginMask[scope]
	if !ok {
		return 0, fmt.Errorf("%w: %q", pipeline.ErrUnknownPlugin, scope)
	}
	return mask, nil
}

// submit enqueues cmd and blocks for its reply.
func (p *Plane) submit(ctx context.Context, cmd Command) error {
	cmd.Reply = make(chan error, 1)
	select {
	case p.queue <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
