// Package client talks to a running shortcast daemon over its HTTP API.
//
// The CLI uses it for submit, status, list, cancel, and health. Watch follows
// a job's event stream over a websocket until the job reaches a terminal state.
package client
