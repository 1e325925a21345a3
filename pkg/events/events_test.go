package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{
		Type:    EventCertificateInvalid,
		Message: "index continuity violation",
		Metadata: map[string]string{
			"reason": "invalid_index",
			"index":  "7",
		},
	})

	select {
	case got := <-sub:
		assert.Equal(t, EventCertificateInvalid, got.Type)
		assert.Equal(t, "invalid_index", got.Metadata["reason"])
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscriberCount(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	require.Equal(t, 0, broker.SubscriberCount())

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	assert.Equal(t, 2, broker.SubscriberCount())

	broker.Unsubscribe(sub1)
	assert.Equal(t, 1, broker.SubscriberCount())

	broker.Unsubscribe(sub2)
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestPublishNonBlockingOnFullBuffer(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			broker.Publish(&Event{Type: EventManifestInvalidated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}
