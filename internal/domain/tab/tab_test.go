package tab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTarget(t *testing.T, c engine.Context) engine.Target {
	t.Helper()
	target, err := c.NewTarget(context.Background())
	require.NoError(t, err)
	return target
}

func newContext(t *testing.T) engine.Context {
	t.Helper()
	c, err := enginetest.New().NewContext(context.Background(), engine.ContextOptions{})
	require.NoError(t, err)
	return c
}

func TestTabWorkRunsInOrder(t *testing.T) {
	tb := New(newTarget(t, newContext(t)))
	defer tb.Close(context.Background())

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, tb.Submit(func(ctx context.Context, _ engine.Target) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 19 {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("work did not finish")
	}
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTabsRunIndependently(t *testing.T) {
	c := newContext(t)
	slow := New(newTarget(t, c))
	fast := New(newTarget(t, c))
	defer slow.Close(context.Background())
	defer fast.Close(context.Background())

	release := make(chan struct{})
	require.NoError(t, slow.Submit(func(ctx context.Context, _ engine.Target) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}))

	ran := make(chan struct{})
	require.NoError(t, fast.Submit(func(context.Context, engine.Target) { close(ran) }))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("fast tab blocked behind slow tab")
	}
	close(release)
}

func TestTabCloseCancelsWork(t *testing.T) {
	target := newTarget(t, newContext(t))
	tb := New(target)

	started := make(chan struct{})
	canceled := make(chan struct{})
	require.NoError(t, tb.Submit(func(ctx context.Context, _ engine.Target) {
		close(started)
		<-ctx.Done()
		close(canceled)
	}))
	<-started

	require.NoError(t, tb.Close(context.Background()))
	<-canceled

	assert.Equal(t, Closed, tb.State())
	assert.True(t, target.(*enginetest.Target).Closed())
	assert.ErrorIs(t, tb.Submit(func(context.Context, engine.Target) {}), ErrClosed)
	assert.NoError(t, tb.Close(context.Background()))
}

func TestTabStateMachine(t *testing.T) {
	tb := New(newTarget(t, newContext(t)))

	assert.Equal(t, Creating, tb.State())
	assert.True(t, tb.MarkReady())
	assert.True(t, tb.MarkLoading())
	assert.Equal(t, Loading, tb.State())
	assert.True(t, tb.MarkReady())
	assert.False(t, tb.MarkReady())

	require.NoError(t, tb.Close(context.Background()))
	assert.False(t, tb.MarkLoading())
	assert.False(t, tb.SetURL("https://example.com"))
	assert.False(t, tb.SetTitle("x"))
	assert.Equal(t, "closed", tb.State().String())
}

func TestTabTitleChange(t *testing.T) {
	tb := New(newTarget(t, newContext(t)))
	defer tb.Close(context.Background())

	assert.Equal(t, "about:blank", tb.URL())
	assert.True(t, tb.SetTitle("Example"))
	assert.False(t, tb.SetTitle("Example"))
	assert.Equal(t, "Example", tb.Title())
}
