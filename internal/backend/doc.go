// Package backend defines the execution engine contract that circuit
// simulators implement, the wire messages shared by the remote adapters,
// and a registry the orchestrator resolves engines from.
package backend
