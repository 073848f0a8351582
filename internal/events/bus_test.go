package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeOnlySeesFutureEvents(t *testing.T) {
	b := NewBus(10)
	b.Publish(ErrorEvent{Message: "before subscribe"})

	sub := b.Subscribe()
	b.Publish(ErrorEvent{Message: "after subscribe"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "after subscribe", got[0].(ErrorEvent).Message)
}

func TestBus_NextBlocksUntilPublish(t *testing.T) {
	b := NewBus(10)
	sub := b.Subscribe()

	done := make(chan []Event, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		got, err := sub.Next(ctx)
		require.NoError(t, err)
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	b.Publish(ErrorEvent{Message: "hello"})

	select {
	case got := <-done:
		require.Len(t, got, 1)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Publish")
	}
}

func TestBus_NextRespectsContextCancellation(t *testing.T) {
	b := NewBus(10)
	sub := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sub.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBus_LossyRingBuffer_ReportsLag(t *testing.T) {
	b := NewBus(3)
	sub := b.Subscribe()

	for i := 0; i < 5; i++ {
		b.Publish(ErrorEvent{Message: "evt"})
	}

	got, err := sub.Poll()
	require.ErrorIs(t, err, ErrLagged)
	require.Len(t, got, 3, "only the 3 most recent events should still be retained")
}

func TestBus_Poll_NonBlockingWhenEmpty(t *testing.T) {
	b := NewBus(10)
	sub := b.Subscribe()

	got, err := sub.Poll()
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestEnvelope_FlattensTypeAndPayload(t *testing.T) {
	e := BuildStatusEvent{ProjectID: 1, BuildID: 2, Status: "success"}
	env := Envelope{Type: e.EventType(), Event: e}

	data, err := env.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), `"type":"build_status"`)
	require.Contains(t, string(data), `"project_id":1`)
}
