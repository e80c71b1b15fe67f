package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestMemoryBrokerDeliversByTopic(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	lecturerSub, err := broker.Subscribe(ctx, LecturerTopic("lec-1"))
	require.NoError(t, err)
	defer lecturerSub.Close()
	sessionSub, err := broker.Subscribe(ctx, SessionTopic("s-1"))
	require.NoError(t, err)
	defer sessionSub.Close()

	require.NoError(t, broker.Publish(ctx, Event{Type: EventSessionStarted, Topic: LecturerTopic("lec-1"), SessionID: "s-1"}))
	ev := receive(t, lecturerSub)
	assert.Equal(t, EventSessionStarted, ev.Type)
	assert.False(t, ev.OccurredAt.IsZero())

	select {
	case <-sessionSub.C():
		t.Fatal("session subscriber must not receive lecturer events")
	default:
	}
}

func TestMemoryBrokerCloseUnsubscribes(t *testing.T) {
	broker := NewMemoryBroker()
	sub, err := broker.Subscribe(context.Background(), SessionTopic("s-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, broker.Subscribers(SessionTopic("s-1")))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, broker.Subscribers(SessionTopic("s-1")))
	_, ok := <-sub.C()
	assert.False(t, ok)

	require.NoError(t, broker.Publish(context.Background(), Event{Topic: SessionTopic("s-1")}))
}

func TestMemoryBrokerContextCancelCloses(t *testing.T) {
	broker := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := broker.Subscribe(ctx, SessionTopic("s-1"))
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestMemoryBrokerFullBufferDoesNotBlock(t *testing.T) {
	broker := NewMemoryBroker()
	sub, err := broker.Subscribe(context.Background(), SessionTopic("s-1"))
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < subscriptionBuffer*3; i++ {
		require.NoError(t, broker.Publish(context.Background(), Event{Topic: SessionTopic("s-1")}))
	}
	assert.Len(t, sub.C(), subscriptionBuffer)
}

func TestMemoryBrokerClosedRejectsSubscribe(t *testing.T) {
	broker := NewMemoryBroker()
	sub, err := broker.Subscribe(context.Background(), LecturerTopic("lec-1"))
	require.NoError(t, err)
	require.NoError(t, broker.Close())

	_, ok := <-sub.C()
	assert.False(t, ok)
	_, err = broker.Subscribe(context.Background(), LecturerTopic("lec-1"))
	assert.ErrorIs(t, err, ErrBrokerClosed)
}
