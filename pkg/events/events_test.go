package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventInstanceStarted, Message: "inst-1"})

	select {
	case ev := <-sub.Events():
		require.Equal(t, EventInstanceStarted, ev.Type)
		require.Equal(t, "inst-1", ev.Message)
		require.NotEmpty(t, ev.ID, "Publish must mint an ID when unset")
		require.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published event")
	}
}

func TestBroker_SeqIsMonotonicAcrossPublishes(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventInstanceStarted})
	b.Publish(&Event{Type: EventInstanceStopped})

	first := <-sub.Events()
	second := <-sub.Events()

	require.Less(t, first.Seq, second.Seq, "sequence numbers must strictly increase")
}

func TestBroker_FanOutToMultipleSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	require.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventSandboxPruned})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case ev := <-sub.Events():
			require.Equal(t, EventSandboxPruned, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("every subscriber must receive the broadcast event")
		}
	}
}

func TestBroker_UnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Events()
	require.False(t, open, "unsubscribe must close the subscriber's channel")
}

func TestBroker_PublishDoesNotBlockAfterStop(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	b.Stop() // Stop must tolerate being called twice

	done := make(chan struct{})
	go func() {
		b.Publish(&Event{Type: EventInstanceStarted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish after stop must not block indefinitely")
	}
}
