package control

import (
	"context"

	"github.com/alumet-io/alumet/internal/pipeline"
	"github.com/alumet-io/alumet/pkg/plugin"
)

// Handle is the cloneable, suspending control handle returned by
// control_handle(). NewHandle does not spawn the control task: the caller
// starts Plane.Run itself (the daemon does so just before NewHandle).
// Every clone shares the same underlying Plane.
type Handle struct {
	plane *Plane
	ctx   context.Context
}

// NewHandle wraps an already-running Plane. Cloning is simply copying the
// struct value, since Plane is reference-held via its channel.
func NewHandle(ctx context.Context, plane *Plane) *Handle {
	return &Handle{plane: plane, ctx: ctx}
}

func (h *Handle) Clone() *Handle { return &Handle{plane: h.plane, ctx: h.ctx} }

// All returns a scope addressing every registered plugin.
func (h *Handle) All() plugin.ControlScope { return &scope{plane: h.plane, ctx: h.ctx, name: ""} }

// Plugin returns a scope addressing only the named plugin's senders.
func (h *Handle) Plugin(name string) plugin.ControlScope {
	return &scope{plane: h.plane, ctx: h.ctx, name: name}
}

// Blocking returns a BlockingHandle wrapping this handle for non-async
// callers (e.g. CLI commands), per SPEC_FULL.md §12.
func (h *Handle) Blocking() *BlockingHandle { return &BlockingHandle{h: h} }

type scope struct {
	plane *Plane
	ctx   context.Context
	name  string
}

func (s *scope) ControlSources(cmd plugin.SourceCommand) error {
	return s.plane.submit(s.ctx, Command{
		Scope: s.name, Kind: CmdControlSources, Source: toSourceCmd(cmd),
	})
}

func (s *scope) ControlTransforms(cmd plugin.TransformCommand) error {
	kind := pipeline.TransformEnable
	if cmd == plugin.TransformCmdDisable {
		kind = pipeline.TransformDisable
	}
	return s.plane.submit(s.ctx, Command{Scope: s.name, Kind: CmdControlTransforms, TX: kind})
}

func (s *scope) ControlOutputs(cmd plugin.OutputCommand) error {
	return s.plane.submit(s.ctx, Command{
		Scope: s.name, Kind: CmdControlOutputs, Output: toOutputCmd(cmd),
	})
}

func toSourceCmd(cmd plugin.SourceCommand) pipeline.SourceCmd {
	switch cmd {
	case plugin.SourceCmdPause:
		return pipeline.SourceCmd{Kind: pipeline.SourcePause}
	case plugin.SourceCmdStop:
		return pipeline.SourceCmd{Kind: pipeline.SourceStop}
	default:
		return pipeline.SourceCmd{Kind: pipeline.SourceRun}
	}
}

func toOutputCmd(cmd plugin.OutputCommand) pipeline.OutputCmd {
	switch cmd {
	case plugin.OutputCmdPause:
		return pipeline.OutputCmd{Kind: pipeline.OutputPause}
	case plugin.OutputCmdStop:
		return pipeline.OutputCmd{Kind: pipeline.OutputStop}
	default:
		return pipeline.OutputCmd{Kind: pipeline.OutputRun}
	}
}

// ScopedHandle is a handle pre-bound to one plugin, handed to that plugin
// instead of a general Handle so it cannot address other plugins' senders.
type ScopedHandle struct {
	scope plugin.ControlScope
}

func NewScopedHandle(h *Handle, pluginName string) *ScopedHandle {
	return &ScopedHandle{scope: h.Plugin(pluginName)}
}

func (s *ScopedHandle) ControlSources(cmd plugin.SourceCommand) error {
	return s.scope.ControlSources(cmd)
}
func (s *ScopedHandle) ControlTransforms(cmd plugin.TransformCommand) error {
	return s.scope.ControlTransforms(cmd)
}
func (s *ScopedHandle) ControlOutputs(cmd plugin.OutputCommand) error {
	return s.scope.ControlOutputs(cmd)
}

// BlockingHandle is a blocking-call wrapper around Handle for non-async
// callers (e.g. a CLI `status`/`control` subcommand run from main, outside
// any pipeline task).
type BlockingHandle struct {
	h *Handle
}

func (b *BlockingHandle) All() plugin.ControlScope           { return b.h.All() }
func (b *BlockingHandle) Plugin(name string) plugin.ControlScope { return b.h.Plugin(name) }
