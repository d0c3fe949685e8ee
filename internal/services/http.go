package services

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// HTTPStatusError captures a non-success response from an external service.
type HTTPStatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.StatusCode, body)
}

// Transient reports whether the status code is worth retrying.
func (e *HTTPStatusError) Transient() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// CheckResponse converts a non-2xx response into a marked error. The response
// body is read (bounded) but not closed.
func CheckResponse(service, stage, operation string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	retryAfter, _ := ParseRetryAfter(resp.Header.Get("Retry-After"))
	statusErr := &HTTPStatusError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Body:       string(body),
		RetryAfter: retryAfter,
	}
	marker := ErrPermanent
	if statusErr.Transient() {
		marker = ErrTransient
	}
	return Wrap(marker, stage, operation, "unexpected response", statusErr)
}

// ClassifyTransportError marks a failed round trip as transient since the
// request never reached a definitive answer.
func ClassifyTransportError(stage, operation string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(ErrTransient, stage, operation, "request timed out", err)
	}
	return Wrap(ErrTransient, stage, operation, "request failed", err)
}

// RetryAfterHint extracts a server supplied retry delay from err.
func RetryAfterHint(err error) (time.Duration, bool) {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter, true
	}
	return 0, false
}

// ParseRetryAfter understands both delta-seconds and HTTP-date values.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
