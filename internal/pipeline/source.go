package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alumet-io/alumet/internal/measurement"
	"github.com/alumet-io/alumet/internal/trigger"
	"github.com/alumet-io/alumet/pkg/plugin"
)

// SourceTask owns one probe, accumulates into a buffer, and flushes
// downstream every flush_rounds polls. Exactly one SourceTask runs per
// registered source.
type SourceTask struct {
	Name     string
	Source   plugin.Source
	Category plugin.SourceCategory

	Out  chan<- *measurement.Buffer
	Cmds *Watch[SourceCmd]

	Log     *logrus.Entry
	Metrics *TaskMetrics
}

// Run executes the source task's main loop. It returns ErrPoll,
// ErrSendBackpressure, or ErrProtocolViolation on fatal conditions, and nil
// on a clean Stop.
func (t *SourceTask) Run() error {
	first, _, closed := t.Cmds.Load()
	if closed {
		return nil
	}
	if first.Kind != SourceSetTrigger || first.Trigger == nil {
		return fmt.Errorf("%w: source %q first command must be SetTrigger(Some(_))", ErrProtocolViolation, t.Name)
	}

	trig := first.Trigger
	lastVersion := versionOf(t.Cmds)
	buf := measurement.NewBuffer(trig.FlushRounds())

	ticker := trig.NewTicker()
	defer ticker.Stop()

	paused := false
	round := 0

	for {
		if paused {
			prev := trig
			if err := t.waitForResume(&trig, &lastVersion); err != nil {
				if err == errStopRequested {
					return nil
				}
				return err
			}
			if trig != prev {
				ticker.Stop()
				ticker = trig.NewTicker()
			}
			paused = false
			continue
		}

		select {
		case now := <-ticker.C:
			round++
			if err := t.Source.Poll(buf, now); err != nil {
				return fmt.Errorf("%w: source %q: %v", ErrPoll, t.Name, err)
			}
			if t.Metrics != nil {
				t.Metrics.RecordPoll(t.Name)
			}

			if trig.ShouldFlush(round) {
				hint := buf.Len()
				if err := t.flush(buf); err != nil {
					return err
				}
				buf = measurement.NewBuffer(hint)

				newTrig, stop, err := t.applyPendingCommand(&lastVersion, round, &paused)
				if err != nil {
					return err
				}
				if stop {
					return nil
				}
				if newTrig != nil {
					buf.Reserve(newTrig.FlushRounds() - (round % newTrig.FlushRounds()))
					trig = newTrig
					ticker.Stop()
					ticker = trig.NewTicker()
				}
			}
		}
	}
}

func versionOf(w *Watch[SourceCmd]) uint64 {
	_, v, _ := w.Load()
	return v
}

func (t *SourceTask) flush(buf *measurement.Buffer) error {
	select {
	case t.Out <- buf:
		if t.Metrics != nil {
			t.Metrics.RecordFlush(t.Name, buf.Len())
		}
		return nil
	default:
		return fmt.Errorf("%w: source %q", ErrSendBackpressure, t.Name)
	}
}

// applyPendingCommand checks, without blocking, whether a new command
// arrived since lastVersion and applies it. Returning (trigger, stop, err):
// a non-nil trigger means the caller must reconfigure its ticker; stop=true
// means the task should exit cleanly.
func (t *SourceTask) applyPendingCommand(lastVersion *uint64, round int, paused *bool) (*trigger.TimeInterval, bool, error) {
	cmd, ver, closed := t.Cmds.Load()
	if closed {
		return nil, true, nil
	}
	if ver == *lastVersion {
		return nil, false, nil
	}
	*lastVersion = ver

	switch cmd.Kind {
	case SourceRun:
		return nil, false, nil
	case SourcePause:
		*paused = true
		return nil, false, nil
	case SourceStop:
		return nil, true, nil
	case SourceSetTrigger:
		if cmd.Trigger == nil {
			return nil, false, nil
		}
		return cmd.Trigger, false, nil
	default:
		return nil, false, nil
	}
}

// waitForResume blocks a paused source on command changes, honoring Run,
// Stop and SetTrigger (which re-configures but stays paused unless the new
// state implies running — this implementation treats SetTrigger alone as
// not implying running, matching spec.md's "stays paused unless the new
// state implies running" with the only state that implies running being an
// explicit Run).
func (t *SourceTask) waitForResume(trig **trigger.TimeInterval, lastVersion *uint64) error {
	for {
		<-t.Cmds.Changed()
		cmd, ver, closed := t.Cmds.Load()
		if closed {
			return nil
		}
		*lastVersion = ver
		switch cmd.Kind {
		case SourceRun:
			return nil
		case SourceStop:
			return errStopRequested
		case SourceSetTrigger:
			if cmd.Trigger != nil {
				*trig = cmd.Trigger
			}
			continue
		}
	}
}

// errStopRequested is an internal sentinel translated to a clean nil return
// by Run; it never escapes this package.
var errStopRequested = fmt.Errorf("alumet: stop requested")

var _ = time.Now
