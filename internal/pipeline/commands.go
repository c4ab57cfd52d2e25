package pipeline

import (
	"github.com/alumet-io/alumet/internal/measurement"
	"github.com/alumet-io/alumet/internal/metric"
	"github.com/alumet-io/alumet/internal/trigger"
)

// SourceCmdKind tags a SourceCmd variant.
type SourceCmdKind int

const (
	SourceRun SourceCmdKind = iota
	SourcePause
	SourceStop
	SourceSetTrigger
)

// SourceCmd is sent on a source's per-element watch channel. The first
// command a source task observes MUST be SourceSetTrigger; any other first
// command is a programming error (ErrProtocolViolation).
type SourceCmd struct {
	Kind    SourceCmdKind
	Trigger *trigger.TimeInterval // only meaningful for SourceSetTrigger; after the first command, nil leaves the current trigger unchanged
}

// TransformCmdKind tags a TransformCmd variant.
type TransformCmdKind int

const (
	TransformEnable TransformCmdKind = iota
	TransformDisable
)

// TransformCmd carries the precomputed bitmask for the transforms it
// addresses (a single plugin's mask, or all-ones for an "all" scope
// command).
type TransformCmd struct {
	Kind TransformCmdKind
	Mask uint64
}

// OutputCmdKind tags an OutputCmd variant.
type OutputCmdKind int

const (
	OutputRun OutputCmdKind = iota
	OutputPause
	OutputStop
)

// OutputCmd is sent on an output's per-element watch channel.
type OutputCmd struct {
	Kind OutputCmdKind
}

// OutputMsgKind tags an OutputMsg variant broadcast from the transform task
// to every output task.
type OutputMsgKind int

const (
	MsgWriteMeasurements OutputMsgKind = iota
	MsgRegisterMetrics
)

// OutputMsg is the payload type broadcast over the transform->outputs
// channel.
type OutputMsg struct {
	Kind OutputMsgKind

	// Set when Kind == MsgWriteMeasurements.
	Buffer *measurement.Buffer

	// Set when Kind == MsgRegisterMetrics.
	Metrics    []metric.Metric
	SourceName string
	ReplyTo    chan<- []uint32
}
