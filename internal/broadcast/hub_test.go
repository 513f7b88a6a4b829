package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalpass/standby-cli/internal/model"
)

func logEvent(runID, msg string) model.Event {
	return model.Event{Type: model.EventLog, TS: time.Now(), RunID: runID, Message: msg}
}

func TestHub_SubscribeReceivesLiveEvents(t *testing.T) {
	h := New()
	ch, cancel := h.Subscribe("run-1")
	defer cancel()

	h.Publish("run-1", logEvent("run-1", "first"))
	h.Publish("run-1", logEvent("run-1", "second"))

	assert.Equal(t, "first", (<-ch).Message)
	assert.Equal(t, "second", (<-ch).Message)
}

func TestHub_LateSubscriberGetsHistoryFirst(t *testing.T) {
	h := New()
	h.Publish("run-1", logEvent("run-1", "one"))
	h.Publish("run-1", logEvent("run-1", "two"))

	ch, cancel := h.Subscribe("run-1")
	defer cancel()
	h.Publish("run-1", logEvent("run-1", "three"))

	// Replay comes in order before any live event.
	assert.Equal(t, "one", (<-ch).Message)
	assert.Equal(t, "two", (<-ch).Message)
	assert.Equal(t, "three", (<-ch).Message)
}

func TestHub_RunsAreIsolated(t *testing.T) {
	h := New()
	ch, cancel := h.Subscribe("run-a")
	defer cancel()

	h.Publish("run-b", logEvent("run-b", "elsewhere"))
	h.Publish("run-a", logEvent("run-a", "here"))

	assert.Equal(t, "here", (<-ch).Message)
	assert.Len(t, h.History("run-b"), 1)
	assert.Len(t, h.History("run-a"), 1)
}

func TestHub_CloseEndsSubscribers(t *testing.T) {
	h := New()
	ch, cancel := h.Subscribe("run-1")
	defer cancel()

	h.Publish("run-1", logEvent("run-1", "final"))
	h.Close("run-1")

	assert.Equal(t, "final", (<-ch).Message)
	_, open := <-ch
	assert.False(t, open)

	// Publishing after close is a no-op, history stays intact.
	h.Publish("run-1", logEvent("run-1", "late"))
	assert.Len(t, h.History("run-1"), 1)
}

func TestHub_SubscribeAfterCloseReplaysAndEnds(t *testing.T) {
	h := New()
	h.Publish("run-1", logEvent("run-1", "only"))
	h.Close("run-1")

	ch, cancel := h.Subscribe("run-1")
	defer cancel()
	assert.Equal(t, "only", (<-ch).Message)
	_, open := <-ch
	assert.False(t, open)
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	h := New()
	ch, cancel := h.Subscribe("run-1")
	defer cancel()

	// Overflow the buffer without draining; the subscriber must be cut
	// loose instead of blocking the publisher.
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish("run-1", logEvent("run-1", "flood"))
	}

	received := 0
	for range ch {
		received++
	}
	assert.Equal(t, subscriberBuffer, received)
	assert.Len(t, h.History("run-1"), subscriberBuffer+10)
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	h := New()
	_, cancel := h.Subscribe("run-1")
	cancel()
	require.NotPanics(t, cancel)
}
