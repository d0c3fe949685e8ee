// Package queue persists content-generation jobs in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, job
// claiming, heartbeat tracking, restart recovery, cancellation, stats
// queries, and the retention purge. A Job owns its ordered Artifact records;
// both are written together in one transaction so readers never observe a job
// whose status disagrees with its artifacts.
//
// Treat this package as the single source of truth for job semantics; when you
// add new statuses or columns, update schema.sql and bump schemaVersion.
package queue
