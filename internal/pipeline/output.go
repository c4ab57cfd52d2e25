package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/alumet-io/alumet/internal/metric"
	"github.com/alumet-io/alumet/pkg/plugin"
)

// registryView adapts *metric.Registry to the plugin.MetricRegistryView
// interface handed to Output.Write, without pkg/plugin importing
// internal/metric.
type registryView struct{ reg *metric.Registry }

func (v registryView) Lookup(id uint32) (string, string, bool, bool) {
	m, ok := v.reg.Lookup(id)
	return m.Name, m.Unit, m.ValueType == metric.F64, ok
}

// OutputTask is one per sink. It subscribes to the transform broadcast and
// the control plane's per-element OutputCmd watch, and dispatches blocking
// writes off its own dedicated goroutine so the pipeline's cooperative
// tasks never block.
type OutputTask struct {
	Name   string
	Output plugin.Output

	Sub     <-chan BroadcastItem
	Cmds    *Watch[OutputCmd]
	Registry *metric.Registry

	Log     *logrus.Entry
	Metrics *TaskMetrics
}

// Run executes the output task's command/message interleaving loop. A
// non-panic write error is logged and swallowed — the output keeps
// running; a panic inside the write is fatal.
func (t *OutputTask) Run() error {
	ctx := &plugin.OutputContext{Registry: registryView{reg: t.Registry}}
	lastVersion := versionOfOutput(t.Cmds)
	paused := false

	for {
		if paused {
			cmd, ver, closed := t.waitOutputChange(t.Cmds)
			if closed {
				return nil
			}
			lastVersion = ver
			switch cmd.Kind {
			case OutputRun:
				paused = false
			case OutputStop:
				return nil
			case OutputPause:
				// stay paused
			}
			continue
		}

		select {
		case <-t.Cmds.Changed():
			cmd, ver, closed := t.Cmds.Load()
			if closed {
				return nil
			}
			if ver == lastVersion {
				continue
			}
			lastVersion = ver
			switch cmd.Kind {
			case OutputRun:
			case OutputPause:
				paused = true
			case OutputStop:
				return nil
			}

		case item, ok := <-t.Sub:
			if !ok {
				return nil
			}
			if item.Lagged > 0 && t.Log != nil {
				t.Log.Warnf("output %q lagged: %d buffers dropped", t.Name, item.Lagged)
			}
			if err := t.handle(item.Msg, ctx); err != nil {
				if panicErr, ok := err.(*PanicError); ok {
					return panicErr
				}
				if t.Log != nil {
					t.Log.WithError(err).Warnf("output %q write failed, continuing", t.Name)
				}
			}
		}
	}
}

func (t *OutputTask) handle(msg OutputMsg, ctx *plugin.OutputContext) (err error) {
	switch msg.Kind {
	case MsgWriteMeasurements:
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Recovered: r}
			}
		}()
		writeErr := t.Output.Write(msg.Buffer, ctx)
		if t.Metrics != nil {
			t.Metrics.RecordWrite(t.Name, writeErr)
		}
		if writeErr != nil {
			return fmt.Errorf("%w: output %q: %v", ErrWrite, t.Name, writeErr)
		}
		return nil

	case MsgRegisterMetrics:
		ids := make([]uint32, len(msg.Metrics))
		for i, m := range msg.Metrics {
			ids[i] = t.Registry.Register(m)
		}
		if msg.ReplyTo != nil {
			msg.ReplyTo <- ids
		}
		return nil
	}
	return nil
}

func versionOfOutput(w *Watch[OutputCmd]) uint64 {
	_, v, _ := w.Load()
	return v
}

func (t *OutputTask) waitOutputChange(w *Watch[OutputCmd]) (OutputCmd, uint64, bool) {
	<-w.Changed()
	cmd, ver, closed := w.Load()
	return cmd, ver, closed
}
