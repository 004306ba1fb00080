package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "worker.started").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeWorkerStarted     = "worker.started"
	TypeWorkerStopped     = "worker.stopped"
	TypeWorkerDied        = "worker.died"
	TypeWorkerSpawnFailed = "worker.spawn_failed"
	TypeRecordDropped     = "relay.record_dropped"
	TypeChannelRejected   = "boundary.channel_rejected"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Worker Lifecycle Events
// -----------------------------------------------------------------------------

// WorkerStartedEvent is emitted once the worker process has been spawned.
type WorkerStartedEvent struct {
	baseEvent
	RunID string
	PID   int
	Path  string // resolved executable
	Mode  string // deployment mode
}

// NewWorkerStartedEvent creates a WorkerStartedEvent.
func NewWorkerStartedEvent(runID string, pid int, path, mode string) WorkerStartedEvent {
	return WorkerStartedEvent{
		baseEvent: newBaseEvent(TypeWorkerStarted),
		RunID:     runID,
		PID:       pid,
		Path:      path,
		Mode:      mode,
	}
}

// WorkerStoppedEvent is emitted when an explicit Stop has reaped the worker.
type WorkerStoppedEvent struct {
	baseEvent
	RunID string
	PID   int
}

// NewWorkerStoppedEvent creates a WorkerStoppedEvent.
func NewWorkerStoppedEvent(runID string, pid int) WorkerStoppedEvent {
	return WorkerStoppedEvent{
		baseEvent: newBaseEvent(TypeWorkerStopped),
		RunID:     runID,
		PID:       pid,
	}
}

// WorkerDiedEvent is emitted when the worker exits without a stop request.
type WorkerDiedEvent struct {
	baseEvent
	RunID    string
	PID      int
	ExitCode int // -1 when killed by a signal
	Reason   string
}

// NewWorkerDiedEvent creates a WorkerDiedEvent.
func NewWorkerDiedEvent(runID string, pid, exitCode int, reason string) WorkerDiedEvent {
	return WorkerDiedEvent{
		baseEvent: newBaseEvent(TypeWorkerDied),
		RunID:     runID,
		PID:       pid,
		ExitCode:  exitCode,
		Reason:    reason,
	}
}

// WorkerSpawnFailedEvent is emitted when Start could not create the worker.
type WorkerSpawnFailedEvent struct {
	baseEvent
	Path  string
	Error string
}

// NewWorkerSpawnFailedEvent creates a WorkerSpawnFailedEvent.
func NewWorkerSpawnFailedEvent(path, errMsg string) WorkerSpawnFailedEvent {
	return WorkerSpawnFailedEvent{
		baseEvent: newBaseEvent(TypeWorkerSpawnFailed),
		Path:      path,
		Error:     errMsg,
	}
}

// -----------------------------------------------------------------------------
// Relay Events
// -----------------------------------------------------------------------------

// RecordDroppedEvent is emitted for each malformed worker record.
type RecordDroppedEvent struct {
	baseEvent
	Line  int64
	Error string
}

// NewRecordDroppedEvent creates a RecordDroppedEvent.
func NewRecordDroppedEvent(line int64, errMsg string) RecordDroppedEvent {
	return RecordDroppedEvent{
		baseEvent: newBaseEvent(TypeRecordDropped),
		Line:      line,
		Error:     errMsg,
	}
}

// ChannelRejectedEvent is emitted when the boundary drops an inbound
// dispatch for a name outside the whitelist.
type ChannelRejectedEvent struct {
	baseEvent
	Name      string
	Direction string
}

// NewChannelRejectedEvent creates a ChannelRejectedEvent.
func NewChannelRejectedEvent(direction, name string) ChannelRejectedEvent {
	return ChannelRejectedEvent{
		baseEvent: newBaseEvent(TypeChannelRejected),
		Name:      name,
		Direction: direction,
	}
}
