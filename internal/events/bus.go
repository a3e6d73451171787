// Package events fans out tracker snapshots to per-job subscribers.
package events

import (
	"sync"
	"time"

	"resumeopt/internal/errors"
	"resumeopt/internal/types"
)

const subscriberBuffer = 32

// Event is one snapshot published for a job.
type Event struct {
	// Topic routes the event. Empty means JobID.
	Topic     string
	JobID     string
	Snapshot  types.JobSubmission
	Timestamp time.Time
}

// Bus is a non-blocking publish/subscribe hub keyed by topic, which is
// the job ID unless the publisher sets one.
type Bus struct {
	logger *errors.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
}

func NewBus(logger *errors.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel of events for a topic and a function that
// unsubscribes and closes it. The function is safe to call more than once.
func (b *Bus) Subscribe(jobID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subs[jobID] = append(b.subs[jobID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.remove(jobID, ch)
	}
	return ch, unsub
}

// remove must be called with mu held.
func (b *Bus) remove(jobID string, ch chan Event) {
	subscribers := b.subs[jobID]
	for i, sub := range subscribers {
		if sub == ch {
			close(ch)
			b.subs[jobID] = append(subscribers[:i], subscribers[i+1:]...)
			break
		}
	}
	if len(b.subs[jobID]) == 0 {
		delete(b.subs, jobID)
	}
}

// Publish delivers e to every subscriber of its topic. A full subscriber
// misses the event rather than stalling the publisher.
func (b *Bus) Publish(e Event) {
	topic := e.Topic
	if topic == "" {
		topic = e.JobID
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[topic] {
		select {
		case ch <- e:
		default:
			if b.logger != nil {
				b.logger.Warn("Event bus subscriber full, dropping event", "job_id", e.JobID)
			}
		}
	}
}

// CloseJob closes and removes every subscription for a topic.
func (b *Bus) CloseJob(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[jobID] {
		close(ch)
	}
	delete(b.subs, jobID)
}

// Subscribers returns the number of live subscriptions for jobID.
func (b *Bus) Subscribers(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}
