// Package main hosts the shortcast CLI entrypoint and command graph.
//
// Job commands (submit, status, list, cancel) call the daemon's HTTP API.
// Queue maintenance opens the SQLite store directly and refuses to recover
// while a daemon holds the lock. Configuration scaffolding and the doctor
// checks run without a daemon.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through a command or flag here.
package main
