package msg

import (
	"context"
	"sync"
	"time"
)

// defaultJournalCap bounds the in-memory journal. Consumers that fall more
// than a full journal behind miss events; the cursor they get back still
// resumes at the live edge.
const defaultJournalCap = 1024

// Hub is a sequence-numbered broadcast journal. Publishers append events and
// consumers long-poll with a cursor, which maps cleanly onto a
// request/response IPC surface without server push.
type Hub struct {
	mu      sync.Mutex
	events  []Event
	nextSeq int64
	cap     int
	signal  chan struct{}
}

// NewHub creates a hub with the default journal capacity.
func NewHub() *Hub {
	return &Hub{cap: defaultJournalCap, signal: make(chan struct{}), nextSeq: 1}
}

// Publish assigns the next sequence number, stamps the event, and wakes all
// pending Fetch calls. The assigned sequence is returned.
func (h *Hub) Publish(event Event) int64 {
	h.mu.Lock()
	event.Seq = h.nextSeq
	h.nextSeq++
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	h.events = append(h.events, event)
	if len(h.events) > h.cap {
		h.events = h.events[len(h.events)-h.cap:]
	}
	closed := h.signal
	h.signal = make(chan struct{})
	h.mu.Unlock()

	close(closed)
	return event.Seq
}

// Fetch returns events with Seq > since, up to max (0 means no limit), plus
// the cursor for the next call. When no events are available and wait is
// positive, Fetch blocks until something is published, the wait elapses, or
// the context is done. A timeout returns an empty batch, not an error.
func (h *Hub) Fetch(ctx context.Context, since int64, max int, wait time.Duration) ([]Event, int64, error) {
	deadline := time.Now().Add(wait)
	for {
		h.mu.Lock()
		batch, next := h.collect(since, max)
		signal := h.signal
		h.mu.Unlock()

		if len(batch) > 0 || wait <= 0 {
			return batch, next, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, next, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, next, ctx.Err()
		case <-timer.C:
			return nil, next, nil
		case <-signal:
			timer.Stop()
		}
	}
}

// Cursor returns the current live-edge cursor, i.e. the value a consumer
// passes as since to only receive events published after this call.
func (h *Hub) Cursor() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq - 1
}

func (h *Hub) collect(since int64, max int) ([]Event, int64) {
	next := since
	var batch []Event
	for _, event := range h.events {
		if event.Seq <= since {
			continue
		}
		batch = append(batch, event)
		next = event.Seq
		if max > 0 && len(batch) >= max {
			break
		}
	}
	if len(batch) == 0 {
		// The journal may have truncated past the cursor.
		if edge := h.nextSeq - 1; next < edge && len(h.events) == 0 {
			next = edge
		}
	}
	return batch, next
}
