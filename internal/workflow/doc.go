// Package workflow is the scheduling engine: it claims queued jobs and drives
// every artifact through generate, upload, schedule, and notify.
//
// A Manager runs a fixed pool of workers under an errgroup. Each worker claims
// one job at a time from the queue store, refreshes its heartbeat while it
// works, and resolves artifact i completely before starting i+1, so publish
// times stay strictly increasing. External calls go through the Generator,
// Publisher, and Notifier interfaces and are retried with the shared backoff
// policy. Only notification failures are tolerated; any other exhausted or
// permanent failure fails the artifact and the job.
//
// A reclaim loop applies queue.Store.RecoverInterrupted to jobs whose
// heartbeat went stale, and Recover does the same once at daemon start.
package workflow
