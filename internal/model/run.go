package model

import "time"

// RunStatus is the lifecycle state of a run. The machine is
// pending → running → {completed, error}; no transition leaves a
// terminal state.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// BotState is the lifecycle state of one bot task within a run.
type BotState string

const (
	BotStateIdle    BotState = "idle"
	BotStateRunning BotState = "running"
	BotStateDone    BotState = "done"
	BotStateError   BotState = "error"
)

// Terminal reports whether the bot task has finished, successfully or not.
func (s BotState) Terminal() bool {
	return s == BotStateDone || s == BotStateError
}

// BotTaskState is the bookkeeping for one (run, bot) pair. Percent is
// monotonically non-decreasing while running; Records is set once state
// is done, FailureReason once state is error.
type BotTaskState struct {
	Bot           string            `json:"bot"`
	State         BotState          `json:"state"`
	Percent       int               `json:"percent"`
	Caption       string            `json:"caption,omitempty"`
	Records       []RawFlightRecord `json:"records,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
}

// Run is one end-to-end search request spanning all applicable bots.
type Run struct {
	ID          string                   `json:"id"`
	Criteria    SearchCriteria           `json:"criteria"`
	Status      RunStatus                `json:"status"`
	Error       string                   `json:"error,omitempty"`
	Bots        map[string]*BotTaskState `json:"bots"`
	Results     []ConsolidatedFlight     `json:"results,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// EventType classifies run events delivered to subscribers.
type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
)

// Event is one entry in a run's ordered event stream.
type Event struct {
	Type    EventType `json:"type"`
	TS      time.Time `json:"ts"`
	RunID   string    `json:"run_id"`
	Message string    `json:"message,omitempty"`
	Bot     string    `json:"bot,omitempty"`
	Percent int       `json:"percent,omitempty"`
	Caption string    `json:"caption,omitempty"`
	Status  RunStatus `json:"status,omitempty"`
	Error   string    `json:"error,omitempty"`
}
