// Package daemon coordinates the long-running shortcast process.
//
// It wires configuration, queue storage, the workflow manager, the HTTP API,
// and the retention sweeper into a single lifecycle with flock-based locking
// to prevent multiple instances. Startup always runs recovery before any
// worker claims a job, so jobs interrupted by a previous run are resolved
// first.
//
// Keep orchestration logic here: job semantics live in api and workflow while
// the daemon focuses on startup, shutdown, and transport.
package daemon
