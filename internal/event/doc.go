// Package event provides a pub-sub event bus that decouples the worker
// supervisor from the components that react to its lifecycle.
//
// The supervisor publishes; the shell, the metrics collector and the
// boundary's status channel subscribe. None of them imports the others.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Types
//
// Worker lifecycle:
//   - [WorkerStartedEvent] ("worker.started")
//   - [WorkerStoppedEvent] ("worker.stopped"), after an explicit stop
//   - [WorkerDiedEvent] ("worker.died"), after an unexpected exit
//   - [WorkerSpawnFailedEvent] ("worker.spawn_failed")
//
// Relay:
//   - [RecordDroppedEvent] ("relay.record_dropped"), one malformed record
//   - [ChannelRejectedEvent] ("boundary.channel_rejected")
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine, in registration order, and a
// panicking handler is recovered so the others still run.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeWorkerDied, func(e event.Event) {
//	    died := e.(event.WorkerDiedEvent)
//	    logger.Warn("worker died", "exit_code", died.ExitCode)
//	})
//
//	bus.Publish(event.NewWorkerDiedEvent("run-1", 4242, 1, "exit status 1"))
package event
