// Package worker supervises the backend worker process.
//
// A [Supervisor] owns at most one live worker at a time. Start resolves the
// executable for the deployment mode, spawns it with piped standard
// streams, and starts one reader goroutine per output stream. Every line
// the worker writes to stdout is handed, in order, to the configured
// [LineHandler]; stderr lines are logged and never relayed.
//
// Lifecycle:
//
//	StateIdle -> StateRunning -> StateStopped   (Stop was called)
//	                          -> StateDied      (the worker exited on its own)
//
// A stopped or dead supervisor can be started again. Start on a running
// supervisor fails with errors.ErrAlreadyRunning and leaves the live worker
// alone. The supervisor never restarts a worker by itself; an unexpected
// exit is reported through the [ExitHandler] as a *errors.WorkerDiedError
// and published on the event bus.
//
// Stop closes the worker's stdin first, since the worker exits on EOF, and
// kills it if it is still alive after the stop timeout. Stop is idempotent.
//
// On unix the worker runs in its own process group. Kills go to the whole
// group, and whatever is left in it is killed once the worker exits, so a
// bundled launcher cannot leave its interpreter behind. Output held open
// by such descendants stops counting one second after the worker exits.
package worker
