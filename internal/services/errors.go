package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure classes. Collaborator clients tag every error with exactly one of
// these so the workflow can decide between retrying and failing the artifact.
var (
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
	ErrValidation    = errors.New("validation error")
	ErrRateLimited   = errors.New("rate limited")
	ErrNotFound      = errors.New("not found")
	ErrNotification  = errors.New("notification failure")
	ErrConfiguration = errors.New("configuration error")
)

// terminal lists classes that another attempt cannot fix.
var terminal = []error{ErrPermanent, ErrValidation, ErrConfiguration, ErrNotFound}

// Wrap tags err with marker and prefixes it with "stage: operation: message",
// skipping blank parts. A nil marker means ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	var detail strings.Builder
	for _, part := range []string{stage, operation, message} {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if detail.Len() > 0 {
			detail.WriteString(": ")
		}
		detail.WriteString(part)
	}
	if detail.Len() == 0 {
		detail.WriteString("service failure")
	}
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail.String())
	}
	return fmt.Errorf("%w: %s: %w", marker, detail.String(), err)
}

// Retryable reports whether another attempt may succeed. Untagged errors
// count as transient. Cancellation is never retried.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	for _, class := range terminal {
		if errors.Is(err, class) {
			return false
		}
	}
	return true
}
