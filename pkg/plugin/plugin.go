// Package plugin defines the capability interfaces external collaborators
// implement to participate in the measurement pipeline: the plugin
// lifecycle shim itself, and the Source/Transform/Output capabilities a
// plugin may register during that lifecycle.
//
// Source, Transform and Output are capability sets, not a class hierarchy:
// a plugin hands ownership of a concrete value implementing one of these
// interfaces to the runtime, which drives it from its own task.
package plugin

import (
	"time"

	"github.com/alumet-io/alumet/internal/measurement"
)

// Config is the raw configuration table handed to a plugin's Init, decoded
// from whatever format the embedding agent's configuration loader uses.
// Plugins are otherwise opaque to the pipeline core (SPEC_FULL.md §1).
type Config map[string]interface{}

// Plugin is the lifecycle shim every external data producer/consumer
// implements.
type Plugin interface {
	// Name returns the plugin's stable identifier, used to scope control
	// plane commands (control.Plugin(name)). Metric registration
	// deduplicates by metric name alone; the plugin name is not part of
	// that key.
	Name() string
	// Version returns the plugin's version string.
	Version() string
	// DefaultConfig returns the configuration table to use when the agent's
	// config file has no section for this plugin. May return nil.
	DefaultConfig() Config
	// Init constructs the plugin's runtime state from config. May fail.
	Init(config Config) error
	// Start registers metrics and adds sources/transforms/outputs
	// synchronously, through the StartContext.
	Start(start StartContext) error
	// PostPipelineStart runs after the pipeline is live; it receives a
	// control handle that sends commands to the sources, transforms and
	// outputs registered during Start. No sources can be added at this
	// stage.
	PostPipelineStart(post PostStartContext) error
	// Stop releases any resources held by the plugin.
	Stop() error
}

// StartContext is handed to Plugin.Start. It lets a plugin register its
// metrics and contribute sources, transforms and outputs to the pipeline
// being assembled.
type StartContext interface {
	RegisterMetric(m MetricDef) uint32
	AddSource(name string, src Source, category SourceCategory)
	AddAutonomousSource(name string, src AutonomousSource)
	AddTransform(name string, t Transform)
	AddOutput(name string, out Output)
}

// PostStartContext is handed to Plugin.PostPipelineStart, after the
// pipeline has already started running.
type PostStartContext interface {
	ControlHandle() ControlHandle
}

// MetricDef is the plugin-facing metric registration payload (mirrors
// metric.Metric without importing internal/metric, keeping pkg/plugin
// free of internal packages per Go's import-visibility convention).
type MetricDef struct {
	Name        string
	Description string
	Unit        string
	IsFloat     bool
}

// SourceCategory distinguishes sources that may run on the shared
// cooperative pool from those requiring a dedicated high-priority pool.
type SourceCategory int

const (
	// NormalSource may run on the general worker pool.
	NormalSource SourceCategory = iota
	// RealtimePrioritySource must run on a dedicated high-priority pool;
	// absence of that pool at pipeline construction time is a
	// configuration error (ErrNoRealtimePool).
	RealtimePrioritySource
)

// Source polls a single probe and accumulates points into buf.
type Source interface {
	Poll(buf *measurement.Buffer, timestamp time.Time) error
}

// AutonomousSource is a pre-built cooperative task that pushes buffers to
// the pipeline's source->transform channel without participating in the
// SourceCmd protocol. It is spawned and forgotten.
type AutonomousSource interface {
	Run(out chan<- *measurement.Buffer, stop <-chan struct{})
}

// Transform mutates a buffer of points in place. It may overwrite Value and
// Attributes but must not reorder or resize the buffer.
type Transform interface {
	Apply(buf *measurement.Buffer) error
}

// Output consumes a buffer and persists/forwards it. Write may block; the
// runtime is responsible for dispatching it off the cooperative scheduler.
type Output interface {
	Write(buf *measurement.Buffer, ctx *OutputContext) error
}

// OutputContext is handed to every Output.Write call. It carries an
// independent, append-only clone of the metric registry: outputs never
// share a mutable registry, trading memory duplication for a lock-free hot
// path (SPEC_FULL.md §9).
type OutputContext struct {
	Registry MetricRegistryView
}

// MetricRegistryView is the read side of internal/metric.Registry exposed
// to plugins, avoiding a pkg/plugin -> internal/metric import cycle risk
// while still letting outputs resolve a point's metric_id to its
// definition.
type MetricRegistryView interface {
	Lookup(id uint32) (name, unit string, isFloat bool, ok bool)
}

// ControlHandle is the in-process control surface described in
// SPEC_FULL.md §6 (no wire protocol). Scope is selected with All() or
// Plugin(name); every operation has a suspending and a blocking variant.
type ControlHandle interface {
	All() ControlScope
	Plugin(name string) ControlScope
}

// ControlScope issues commands to the sources/transforms/outputs within a
// scope (all plugins, or one named plugin).
type ControlScope interface {
	ControlSources(cmd SourceCommand) error
	ControlTransforms(cmd TransformCommand) error
	ControlOutputs(cmd OutputCommand) error
}

// SourceCommand, TransformCommand and OutputCommand mirror the *Cmd types
// in internal/pipeline without importing that package, so that plugin
// authors depend only on pkg/plugin.
type SourceCommand int

const (
	SourceCmdRun SourceCommand = iota
	SourceCmdPause
	SourceCmdStop
)

type TransformCommand int

const (
	TransformCmdEnable TransformCommand = iota
	TransformCmdDisable
)

type OutputCommand int

const (
	OutputCmdRun OutputCommand = iota
	OutputCmdPause
	OutputCmdStop
)
