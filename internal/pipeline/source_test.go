package pipeline

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumet-io/alumet/internal/measurement"
	"github.com/alumet-io/alumet/internal/trigger"
)

func newTestTrigger(t *testing.T, poll, flush time.Duration) *trigger.TimeInterval {
	t.Helper()
	trig, err := trigger.NewTimeInterval(time.Now(), poll, flush)
	require.NoError(t, err)
	return trig
}

type countingSource struct {
	polls  int32
	failAt int32 // 0 disables
}

func (s *countingSource) Poll(buf *measurement.Buffer, ts time.Time) error {
	n := atomic.AddInt32(&s.polls, 1)
	if s.failAt != 0 && n == s.failAt {
		return errors.New("device read failed")
	}
	buf.Push(measurement.Point{Timestamp: ts})
	return nil
}

func newSourceTask(src *countingSource, out chan *measurement.Buffer) (*SourceTask, *Watch[SourceCmd]) {
	cmds := NewWatch[SourceCmd]()
	task := &SourceTask{
		Name: "test-source",
		Source: src,
		Out:  out,
		Cmds: cmds,
		Log:  logrus.NewEntry(logrus.New()),
	}
	return task, cmds
}

func TestSourceTask_RequiresSetTriggerFirst(t *testing.T) {
	out := make(chan *measurement.Buffer, 4)
	task, cmds := newSourceTask(&countingSource{}, out)
	cmds.Send(SourceCmd{Kind: SourceRun})

	err := task.Run()
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestSourceTask_FlushesEveryFlushRounds(t *testing.T) {
	out := make(chan *measurement.Buffer, 4)
	src := &countingSource{}
	task, cmds := newSourceTask(src, out)

	trig := newTestTrigger(t, 2*time.Millisecond, 6*time.Millisecond)
	cmds.Send(SourceCmd{Kind: SourceSetTrigger, Trigger: trig})

	done := make(chan error, 1)
	go func() { done <- task.Run() }()

	var buf *measurement.Buffer
	select {
	case buf = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("no flush received")
	}
	assert.Equal(t, 3, buf.Len())

	cmds.Send(SourceCmd{Kind: SourceStop})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source task did not stop")
	}
}

func TestSourceTask_PollErrorIsFatal(t *testing.T) {
	out := make(chan *measurement.Buffer, 4)
	src := &countingSource{failAt: 1}
	task, cmds := newSourceTask(src, out)

	trig := newTestTrigger(t, 2*time.Millisecond, 2*time.Millisecond)
	cmds.Send(SourceCmd{Kind: SourceSetTrigger, Trigger: trig})

	errCh := make(chan error, 1)
	go func() { errCh <- task.Run() }()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrPoll)
	case <-time.After(2 * time.Second):
		t.Fatal("source task never failed")
	}
}

func TestSourceTask_BackpressureIsFatal(t *testing.T) {
	out := make(chan *measurement.Buffer) // unbuffered: first flush always blocks
	src := &countingSource{}
	task, cmds := newSourceTask(src, out)

	trig := newTestTrigger(t, 2*time.Millisecond, 2*time.Millisecond)
	cmds.Send(SourceCmd{Kind: SourceSetTrigger, Trigger: trig})

	errCh := make(chan error, 1)
	go func() { errCh <- task.Run() }()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSendBackpressure)
	case <-time.After(2 * time.Second):
		t.Fatal("source task never hit backpressure")
	}
}

func TestSourceTask_PauseThenResume(t *testing.T) {
	out := make(chan *measurement.Buffer, 8)
	src := &countingSource{}
	task, cmds := newSourceTask(src, out)

	trig := newTestTrigger(t, 2*time.Millisecond, 2*time.Millisecond)
	cmds.Send(SourceCmd{Kind: SourceSetTrigger, Trigger: trig})

	done := make(chan error, 1)
	go func() { done <- task.Run() }()

	<-out // first flush arrives

	cmds.Send(SourceCmd{Kind: SourcePause})
	time.Sleep(20 * time.Millisecond)
	pausedCount := atomic.LoadInt32(&src.polls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, pausedCount, atomic.LoadInt32(&src.polls), "no polling should occur while paused")

	cmds.Send(SourceCmd{Kind: SourceRun})
	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("source did not resume flushing")
	}

	cmds.Send(SourceCmd{Kind: SourceStop})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source task did not stop")
	}
}

func TestSourceTask_StopBeforeFirstCommand(t *testing.T) {
	out := make(chan *measurement.Buffer, 1)
	task, cmds := newSourceTask(&countingSource{}, out)
	cmds.Close()

	assert.NoError(t, task.Run())
}
