package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/alumet-io/alumet/internal/measurement"
	"github.com/alumet-io/alumet/pkg/plugin"
)

// NamedTransform pairs a Transform with its fixed chain index, used to test
// the corresponding bit of ActiveFlags.
type NamedTransform struct {
	Name      string
	Transform plugin.Transform
	Index     uint // 0..63
}

func (nt NamedTransform) bit() uint64 { return 1 << nt.Index }

// TransformTask is the single task owning the ordered chain of transforms
// for a pipeline. Exactly one exists per pipeline.
type TransformTask struct {
	Chain []NamedTransform

	// ActiveFlags is the shared lock-free activation word: bit i gates
	// Chain[i]. Read with a relaxed snapshot once per buffer — there is no
	// cross-variable ordering requirement (SPEC_FULL.md §5).
	ActiveFlags *atomic.Uint64

	In      <-chan *measurement.Buffer
	Out     *Broadcast
	Log     *logrus.Entry
	Metrics *TaskMetrics
}

// Run executes the transform task's main loop: receive a buffer, snapshot
// active_flags, apply every enabled transform in fixed index order,
// broadcast the result. Returns ErrTransform on any transform failure
// (unrecoverable: downstream semantics depend on the full chain running),
// or nil if the input channel closes.
func (t *TransformTask) Run() error {
	for buf := range t.In {
		start := time.Now()
		flags := t.ActiveFlags.Load()
		for _, nt := range t.Chain {
			if flags&nt.bit() == 0 {
				continue
			}
			if err := nt.Transform.Apply(buf); err != nil {
				return fmt.Errorf("%w: transform %q: %v", ErrTransform, nt.Name, err)
			}
		}

		if t.Metrics != nil {
			t.Metrics.RecordTransformApply(buf.Len(), time.Since(start))
		}

		if ok := t.Out.Publish(OutputMsg{Kind: MsgWriteMeasurements, Buffer: buf}); !ok {
			// Broadcast-send failure (no receivers) is fatal per spec.md
			// §4.2; old-drop-on-full never blocks or fails when at least
			// one subscriber exists.
			return fmt.Errorf("%w: no output receivers for transformed buffer", ErrTransform)
		}
	}

	if t.Log != nil {
		t.Log.Warn("source->transform channel closed, terminating transform task")
	}
	return nil
}

// EnableMask performs an atomic fetch_or(mask), activating every transform
// whose bit is set.
func (t *TransformTask) EnableMask(mask uint64) {
	t.ActiveFlags.Or(mask)
}

// DisableMask performs an atomic fetch_and_not(mask), deactivating every
// transform whose bit is set.
func (t *TransformTask) DisableMask(mask uint64) {
	t.ActiveFlags.And(^mask)
}

// MaskFor computes the bitmask covering every transform in names.
func MaskFor(chain []NamedTransform, names ...string) uint64 {
	var mask uint64
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for _, nt := range chain {
		if want[nt.Name] {
			mask |= nt.bit()
		}
	}
	return mask
}

// AllMask returns a mask covering every transform in the chain.
func AllMask(chain []NamedTransform) uint64 {
	var mask uint64
	for _, nt := range chain {
		mask |= nt.bit()
	}
	return mask
}
