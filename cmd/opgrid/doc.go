// Package main hosts the opgrid CLI entrypoint and command graph.
//
// The Cobra command tree submits descriptors to the operator lifecycle,
// either as goroutine ranks in one process (run --local) or as one process
// per rank joined through the leader's coordinator (run, launch). The
// remaining commands inspect the schema registry, the job store and the
// local environment without running anything.
//
// Keep this package lean: behaviour belongs in the internal packages and is
// surfaced here through flags and rendering only.
package main
