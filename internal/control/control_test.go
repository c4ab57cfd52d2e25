package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/alumet-io/alumet/internal/pipeline"
	"github.com/alumet-io/alumet/pkg/plugin"
)

func newTestPlane(t *testing.T) (*Plane, *pipeline.Watch[pipeline.SourceCmd], *pipeline.Watch[pipeline.OutputCmd], *atomic.Uint64) {
	t.Helper()
	srcWatch := pipeline.NewWatch[pipeline.SourceCmd]()
	outWatch := pipeline.NewWatch[pipeline.OutputCmd]()
	flags := atomic.NewUint64(0)

	plane := NewPlane(
		map[string][]*pipeline.Watch[pipeline.SourceCmd]{"cpu-plugin": {srcWatch}},
		map[string][]*pipeline.Watch[pipeline.OutputCmd]{"cpu-plugin": {outWatch}},
		map[string]uint64{"cpu-plugin": 0b1},
		0b11, flags, 0,
	)
	return plane, srcWatch, outWatch, flags
}

func TestPlane_ControlSourcesScoped(t *testing.T) {
	plane, srcWatch, _, _ := newTestPlane(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.Run(ctx)

	handle := NewHandle(ctx, plane)
	require.NoError(t, handle.Plugin("cpu-plugin").ControlSources(plugin.SourceCmdPause))

	cmd, _, _ := srcWatch.Load()
	assert.Equal(t, pipeline.SourcePause, cmd.Kind)
}

func TestPlane_ControlSourcesUnknownPlugin(t *testing.T) {
	plane, _, _, _ := newTestPlane(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.Run(ctx)

	handle := NewHandle(ctx, plane)
	err := handle.Plugin("no-such-plugin").ControlSources(plugin.SourceCmdStop)
	assert.ErrorIs(t, err, pipeline.ErrUnknownPlugin)
}

func TestPlane_ControlOutputsAll(t *testing.T) {
	plane, _, outWatch, _ := newTestPlane(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.Run(ctx)

	handle := NewHandle(ctx, plane)
	require.NoError(t, handle.All().ControlOutputs(plugin.OutputCmdStop))

	cmd, _, _ := outWatch.Load()
	assert.Equal(t, pipeline.OutputStop, cmd.Kind)
}

func TestPlane_ControlTransformsSetsAndClearsMask(t *testing.T) {
	plane, _, _, flags := newTestPlane(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.Run(ctx)

	handle := NewHandle(ctx, plane)
	require.NoError(t, handle.Plugin("cpu-plugin").ControlTransforms(plugin.TransformCmdEnable))
	assert.Equal(t, uint64(0b1), flags.Load())

	require.NoError(t, handle.All().ControlTransforms(plugin.TransformCmdEnable))
	assert.Equal(t, uint64(0b11), flags.Load())

	require.NoError(t, handle.Plugin("cpu-plugin").ControlTransforms(plugin.TransformCmdDisable))
	assert.Equal(t, uint64(0b10), flags.Load())
}

func TestPlane_CommandsAppliedInOrder(t *testing.T) {
	plane, _, _, flags := newTestPlane(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.Run(ctx)

	handle := NewHandle(ctx, plane)
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			require.NoError(t, handle.All().ControlTransforms(plugin.TransformCmdEnable))
		} else {
			require.NoError(t, handle.All().ControlTransforms(plugin.TransformCmdDisable))
		}
	}
	// Last issued command (i=19, odd) disables: final state must be 0.
	assert.Equal(t, uint64(0), flags.Load())
}

func TestPlane_SubmitTimesOutWhenPlaneNeverStarted(t *testing.T) {
	plane, _, _, _ := newTestPlane(t)
	// Deliberately never call plane.Run: the queue is never drained.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	handle := NewHandle(ctx, plane)
	err := handle.All().ControlSources(plugin.SourceCmdPause)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScopedHandle_AddressesOnlyItsPlugin(t *testing.T) {
	plane, srcWatch, _, _ := newTestPlane(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.Run(ctx)

	handle := NewHandle(ctx, plane)
	scoped := NewScopedHandle(handle, "cpu-plugin")
	require.NoError(t, scoped.ControlSources(plugin.SourceCmdStop))

	cmd, _, _ := srcWatch.Load()
	assert.Equal(t, pipeline.SourceStop, cmd.Kind)
}

func TestHandle_Clone_SharesPlane(t *testing.T) {
	plane, _, _, _ := newTestPlane(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.Run(ctx)

	handle := NewHandle(ctx, plane)
	clone := handle.Clone()
	require.NoError(t, clone.Plugin("cpu-plugin").ControlSources(plugin.SourceCmdStop))
}

func TestBlockingHandle_DelegatesToHandle(t *testing.T) {
	plane, _, outWatch, _ := newTestPlane(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go plane.Run(ctx)

	blocking := NewHandle(ctx, plane).Blocking()
	require.NoError(t, blocking.All().ControlOutputs(plugin.OutputCmdPause))

	cmd, _, _ := outWatch.Load()
	assert.Equal(t, pipeline.OutputPause, cmd.Kind)
}
