package relay

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/engine/enginetest"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/monitoring"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	eng     *enginetest.Engine
	ctx     *enginetest.Context
	a, b    *enginetest.Target
	frames  chan engine.Frame
	metrics *monitoring.Metrics
	relay   *Relay
}

func setup(t *testing.T, sink Sink) *fixture {
	t.Helper()
	f := &fixture{eng: enginetest.New(), frames: make(chan engine.Frame, 16), metrics: monitoring.NewMetrics(nil)}

	c, err := f.eng.NewContext(context.Background(), engine.ContextOptions{})
	require.NoError(t, err)
	f.ctx = c.(*enginetest.Context)

	a, err := c.NewTarget(context.Background())
	require.NoError(t, err)
	b, err := c.NewTarget(context.Background())
	require.NoError(t, err)
	f.a, f.b = a.(*enginetest.Target), b.(*enginetest.Target)

	if sink == nil {
		sink = SinkFunc(func(frame engine.Frame) error {
			f.frames <- frame
			return nil
		})
	}
	f.relay = New(sink, engine.ScreencastOptions{Quality: 70, MaxWidth: 1920, MaxHeight: 1080}, nil).WithMetrics(f.metrics)
	return f
}

func (f *fixture) next(t *testing.T) engine.Frame {
	t.Helper()
	select {
	case frame := <-f.frames:
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame relayed")
		return engine.Frame{}
	}
}

func TestRelayForwardsAndAcks(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, f.relay.Start(ctx, f.a))
	assert.Equal(t, f.a.ID(), f.relay.Current())

	require.True(t, f.a.PushFrame([]byte("one")))
	frame := f.next(t)
	assert.Equal(t, []byte("one"), frame.Data)

	require.Eventually(t, func() bool { return len(f.a.Acks()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{frame.Seq}, f.a.Acks())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FramesRelayed))
}

func TestRelaySwitchStopsOldStreamFirst(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, f.relay.Start(ctx, f.a))
	require.NoError(t, f.relay.Start(ctx, f.b))

	assert.Equal(t, []string{"start:T1", "stop:T1", "start:T2"}, f.ctx.ScreencastLog())
	assert.False(t, f.a.Streaming())
	assert.True(t, f.b.Streaming())
	assert.False(t, f.a.PushFrame([]byte("stale")))
	assert.Equal(t, f.b.ID(), f.relay.Current())
}

func TestRelayStopIsIdempotent(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	f.relay.Stop(ctx)
	require.NoError(t, f.relay.Start(ctx, f.a))
	f.relay.Stop(ctx)
	f.relay.Stop(ctx)

	assert.Equal(t, engine.TargetID(""), f.relay.Current())
	assert.Equal(t, []string{"start:T1", "stop:T1"}, f.ctx.ScreencastLog())
}

func TestRelayNewerFrameSupersedesUnsent(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	var sent []string

	f := setup(t, SinkFunc(func(frame engine.Frame) error {
		entered <- struct{}{}
		<-release
		sent = append(sent, string(frame.Data))
		return nil
	}))
	ctx := context.Background()
	require.NoError(t, f.relay.Start(ctx, f.a))

	f.a.PushFrame([]byte("1"))
	<-entered // pump is now blocked writing frame 1

	f.a.PushFrame([]byte("2"))
	f.a.PushFrame([]byte("3"))

	require.Eventually(t, func() bool { return len(f.a.Acks()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{2}, f.a.Acks())

	close(release)
	require.Eventually(t, func() bool { return len(f.a.Acks()) == 3 }, time.Second, 5*time.Millisecond)
	f.relay.Stop(ctx)

	assert.Equal(t, []string{"1", "3"}, sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FramesSuperseded))
}

func TestRelayStartFailure(t *testing.T) {
	f := setup(t, nil)
	require.NoError(t, f.a.Close(context.Background()))

	err := f.relay.Start(context.Background(), f.a)
	assert.Equal(t, engine.TargetGone, engine.Classify(err))
	assert.Equal(t, engine.TargetID(""), f.relay.Current())
}
