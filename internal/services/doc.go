// Package services defines shared utilities consumed by the scheduling engine
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, artifact indexes, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the engine decide
//     between retrying a stage and failing the job.
//   - HTTP status classification shared by the generator, publisher, and
//     webhook adapters.
package services
