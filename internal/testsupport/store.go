package testsupport

import (
	"context"
	"testing"
	"time"

	"shortcast/internal/config"
	"shortcast/internal/queue"
	"shortcast/internal/script"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob builds an unsaved short-form job for owner with one segment per
// entry, publishing the first video an hour from now.
func NewJob(owner string, segments ...string) *queue.Job {
	if len(segments) == 0 {
		segments = []string{"First segment."}
	}
	return &queue.Job{
		Owner:         owner,
		Script:        joinSegments(segments),
		Kind:          script.KindShort,
		Voice:         "onyx",
		Speed:         1.2,
		BasePublishAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		Interval:      150 * time.Minute,
		Segments:      segments,
	}
}

// MustCreateJob stores a NewJob and returns it.
func MustCreateJob(t testing.TB, store *queue.Store, owner string, segments ...string) *queue.Job {
	t.Helper()

	job := NewJob(owner, segments...)
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

func joinSegments(segments []string) string {
	out := ""
	for i, segment := range segments {
		if i > 0 {
			out += " pause "
		}
		out += segment
	}
	return out
}
