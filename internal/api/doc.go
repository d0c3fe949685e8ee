// Package api holds the job-facing service layer and its wire types. The
// daemon's HTTP handlers and the CLI both speak these DTOs, so neither needs
// to know about queue internals.
//
// # Key Types
//
// JobService: validates submissions, applies per-owner rate and concurrency
// limits, persists the job, and wakes the workflow manager.
//
// SubmitRequest/SubmitResponse: the submission contract.
//
// JobStatusView: a read-only projection of queue.Job with per-artifact detail.
//
// ValidationError/RateLimitError: typed failures that the HTTP layer maps to
// 400 and 429.
//
// # Design Notes
//
// Status reads are pure projections of the stored job, so repeated reads of a
// terminal job serialize to identical bytes. Timestamps use RFC3339 with
// milliseconds in UTC.
package api
