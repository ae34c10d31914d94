// Package orchestrator runs the asynchronous task lifecycle. It persists a
// pending record on submission, executes circuits on a bounded pool of
// goroutines, translates them to the canonical dialect, enforces execution
// deadlines and writes each terminal record exactly once.
package orchestrator
