package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/globalpass/standby-cli/internal/model"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind is dropped rather than back-pressuring the run.
const subscriberBuffer = 256

// Hub fans run events out to subscribers. Each run has its own ordered
// event log; a subscriber attaching mid-run receives the full history
// before any live event, and event order within a run is the order the
// run produced them. Nothing is ordered across runs.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

type topic struct {
	mu     sync.Mutex
	log    []model.Event
	subs   map[int]chan model.Event
	nextID int
	closed bool
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{topics: make(map[string]*topic)}
}

func (h *Hub) topicFor(runID string) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[runID]
	if !ok {
		t = &topic{subs: make(map[int]chan model.Event)}
		h.topics[runID] = t
	}
	return t
}

// Publish appends an event to the run's log and delivers it to every
// subscriber. It never blocks: a subscriber whose buffer is full is
// dropped so slow listeners cannot stall the producing bot task.
func (h *Hub) Publish(runID string, ev model.Event) {
	t := h.topicFor(runID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.log = append(t.log, ev)
	for id, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			zap.L().Warn("broadcast: dropping slow subscriber",
				zap.String("run_id", runID),
				zap.Int("subscriber", id),
			)
			delete(t.subs, id)
			close(ch)
		}
	}
}

// Subscribe returns a channel of events for the run plus a cancel
// function. History up to the subscription point is replayed in order
// before any live event; the replay and registration happen atomically
// so no event is missed or duplicated.
func (h *Hub) Subscribe(runID string) (<-chan model.Event, func()) {
	t := h.topicFor(runID)

	t.mu.Lock()
	history := make([]model.Event, len(t.log))
	copy(history, t.log)

	ch := make(chan model.Event, subscriberBuffer+len(history))
	for _, ev := range history {
		ch <- ev
	}

	if t.closed {
		close(ch)
		t.mu.Unlock()
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// History returns a copy of the run's event log so far.
func (h *Hub) History(runID string) []model.Event {
	t := h.topicFor(runID)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Event, len(t.log))
	copy(out, t.log)
	return out
}

// Close marks the run's stream finished and closes all subscriber
// channels. The log remains available through History.
func (h *Hub) Close(runID string) {
	t := h.topicFor(runID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}
