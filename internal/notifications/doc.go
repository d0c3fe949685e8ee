// Package notifications delivers operator-facing daemon events via ntfy.
//
// This is separate from the per-video webhook: it tells whoever runs the
// daemon that a job finished, failed, or needs manual recovery. When no ntfy
// topic is configured the service is a no-op. Each event type can be toggled
// in the [notifications] config section.
package notifications
