package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBroker(t *testing.T) {
	ctx := context.Background()

	t.Run("reuses topics", func(t *testing.T) {
		b := Local()
		assert.Same(t, b.Topic(ctx, "a"), b.Topic(ctx, "a"))
		assert.NotSame(t, b.Topic(ctx, "a"), b.Topic(ctx, "b"))
	})

	t.Run("delivers to every subscriber in order", func(t *testing.T) {
		tp := Local().Topic(ctx, "exec")
		h1, h2 := newRecordingHook(), newRecordingHook()
		_, err := tp.Subscribe(ctx, h1)
		require.NoError(t, err)
		_, err = tp.Subscribe(ctx, h2)
		require.NoError(t, err)

		id := uuid.New()
		require.NoError(t, tp.Publish(ctx, Output{TaskID: id, Line: "one"}))
		require.NoError(t, tp.Publish(ctx, EngineChanged{TaskID: id, To: "lua"}))
		require.NoError(t, tp.Publish(ctx, TaskFailed{TaskID: id, Error: "x"}))

		for _, h := range []*recordingHook{h1, h2} {
			require.Eventually(t, func() bool { return len(h.recorded()) == 3 }, time.Second, 5*time.Millisecond)
			got := h.recorded()
			assert.Equal(t, "one", got[0].(Output).Line)
			assert.IsType(t, EngineChanged{}, got[1])
			assert.IsType(t, TaskFailed{}, got[2])
		}
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		tp := Local().Topic(ctx, "exec")
		h := newRecordingHook()
		sub, err := tp.Subscribe(ctx, h)
		require.NoError(t, err)
		assert.NotEmpty(t, sub.ID())

		sub.Unsubscribe()
		sub.Unsubscribe()
		require.NoError(t, tp.Publish(ctx, Output{Line: "lost"}))
		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, h.recorded())
	})

	t.Run("cancelled subscriber context unsubscribes", func(t *testing.T) {
		tp := Local().Topic(ctx, "exec")
		h := newRecordingHook()
		sctx, cancel := context.WithCancel(ctx)
		_, err := tp.Subscribe(sctx, h)
		require.NoError(t, err)
		cancel()

		require.Eventually(t, func() bool {
			return tp.(*topic).subscriptions.Len() == 0
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("slow subscribers are dropped", func(t *testing.T) {
		tp := Local().WithSlowSubscriberTimeout(5 * time.Millisecond).Topic(ctx, "exec")
		h := &blockingHook{recordingHook: newRecordingHook(), release: make(chan struct{})}
		_, err := tp.Subscribe(ctx, h)
		require.NoError(t, err)

		for range 60 {
			require.NoError(t, tp.Publish(ctx, Output{Line: "x"}))
		}
		assert.Equal(t, uintptr(0), tp.(*topic).subscriptions.Len())
		close(h.release)
	})

	t.Run("requires a hook and an event", func(t *testing.T) {
		tp := Local().Topic(ctx, "exec")
		_, err := tp.Subscribe(ctx, nil)
		assert.Error(t, err)
		assert.Error(t, tp.Publish(ctx, nil))
	})
}

func TestNATSBroker(t *testing.T) {
	nc, err := nats.Connect(nats.DefaultURL, nats.Timeout(200*time.Millisecond))
	if err != nil {
		t.Skipf("nats server not available: %v", err)
	}
	t.Cleanup(nc.Close)

	ctx := context.Background()
	b := NATS(nc)
	assert.Same(t, b.Topic(ctx, "polyscript.test"), b.Topic(ctx, "polyscript.test"))

	tp := b.Topic(ctx, "polyscript.test."+uuid.NewString())
	h := newRecordingHook()
	sub, err := tp.Subscribe(ctx, h)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	id := uuid.New()
	require.NoError(t, tp.Publish(ctx, Output{TaskID: id, Engine: "lua", Stream: "stdout", Line: "over the wire"}))
	require.Eventually(t, func() bool { return len(h.recorded()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "over the wire", h.recorded()[0].(Output).Line)
}
