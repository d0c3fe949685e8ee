package daemon

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"shortcast/internal/api"
	"shortcast/internal/logging"
	"shortcast/internal/queue"
)

const (
	subscriberBuffer = 32
	eventWriteWait   = 10 * time.Second
	eventPingPeriod  = 30 * time.Second
)

// EventHub fans persisted job snapshots out to websocket subscribers. It
// implements workflow.Observer.
type EventHub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	updates chan api.JobStatusView
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// NewEventHub constructs an empty hub.
func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		logger: logging.NewComponentLogger(logger, "events"),
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// JobUpdated converts the snapshot and delivers it to every subscriber of the
// job. A subscriber that falls behind loses its oldest pending update, never
// the newest.
func (h *EventHub) JobUpdated(job *queue.Job) {
	if job == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[job.ID]
	if len(subs) == 0 {
		return
	}
	view := api.FromJob(job)
	for sub := range subs {
		for {
			select {
			case sub.updates <- view:
			default:
				select {
				case <-sub.updates:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribe registers interest in jobID. The returned cancel func must be
// called when the caller stops reading.
func (h *EventHub) Subscribe(jobID string) (<-chan api.JobStatusView, <-chan struct{}, func()) {
	sub := &subscriber{
		updates: make(chan api.JobStatusView, subscriberBuffer),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		sub.close()
	} else {
		if h.subs[jobID] == nil {
			h.subs[jobID] = make(map[*subscriber]struct{})
		}
		h.subs[jobID][sub] = struct{}{}
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set := h.subs[jobID]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, jobID)
			}
		}
		h.mu.Unlock()
		sub.close()
	}
	return sub.updates, sub.done, cancel
}

// Subscribers returns the number of active subscriptions for jobID.
func (h *EventHub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

// CloseAll ends every subscription; later subscriptions end immediately.
func (h *EventHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for sub := range set {
			sub.close()
		}
	}
	h.subs = make(map[string]map[*subscriber]struct{})
	h.closed = true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are enforced by the CORS layer and the API key.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents streams JobStatusView snapshots for one job until it reaches a
// terminal status, the client disconnects, or the daemon stops.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	owner := ownerOf(r)
	jobID := mux.Vars(r)["id"]
	hub := s.daemon.events

	// Subscribe before the initial read so no save between the two is lost.
	updates, done, cancel := hub.Subscribe(jobID)
	defer cancel()

	job, err := s.jobs.Job(r.Context(), owner, jobID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return
	}
	defer conn.Close()

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(view api.JobStatusView) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
		if err := conn.WriteJSON(view); err != nil {
			return false
		}
		return !queue.Status(view.Status).IsTerminal()
	}

	if !send(api.FromJob(job)) {
		closeStream(conn, "job finished")
		return
	}

	ping := time.NewTicker(eventPingPeriod)
	defer ping.Stop()
	for {
		select {
		case view := <-updates:
			if !send(view) {
				closeStream(conn, "job finished")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			closeStream(conn, "server shutting down")
			return
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventWriteWait))
}
