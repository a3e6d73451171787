package events

import (
	"log/slog"
	"testing"
	"time"

	"resumeopt/internal/errors"
	"resumeopt/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = errors.NewLogger(slog.LevelDebug)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger)

	ch, unsub := bus.Subscribe("job-1")
	defer unsub()

	bus.Publish(Event{
		JobID:     "job-1",
		Snapshot:  types.JobSubmission{ID: "job-1", Status: types.JobStatusProcessing, Progress: 40},
		Timestamp: time.Now(),
	})

	select {
	case e := <-ch:
		assert.Equal(t, "job-1", e.JobID)
		assert.Equal(t, 40, e.Snapshot.Progress)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusIsolatesJobs(t *testing.T) {
	bus := NewBus(testLogger)

	ch, unsub := bus.Subscribe("job-1")
	defer unsub()

	bus.Publish(Event{JobID: "job-2"})

	select {
	case e := <-ch:
		t.Fatalf("received event for another job: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(testLogger)

	ch, unsub := bus.Subscribe("job-1")
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers("job-1"))

	bus.Publish(Event{JobID: "job-1"})
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(testLogger)

	ch, unsub := bus.Subscribe("job-1")
	defer unsub()

	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(Event{JobID: "job-1", Snapshot: types.JobSubmission{Progress: i}})
	}

	assert.Len(t, ch, subscriberBuffer)
}

func TestBusCloseJob(t *testing.T) {
	bus := NewBus(testLogger)

	first, unsubFirst := bus.Subscribe("job-1")
	second, _ := bus.Subscribe("job-1")

	bus.CloseJob("job-1")

	_, ok := <-first
	require.False(t, ok)
	_, ok = <-second
	require.False(t, ok)

	unsubFirst()
	assert.Equal(t, 0, bus.Subscribers("job-1"))
}

func TestBusRoutesByTopic(t *testing.T) {
	bus := NewBus(testLogger)

	byJob, unsubJob := bus.Subscribe("job-1")
	defer unsubJob()
	byTopic, unsubTopic := bus.Subscribe("tracker-7")
	defer unsubTopic()

	bus.Publish(Event{Topic: "tracker-7", JobID: "job-1"})

	assert.Len(t, byTopic, 1)
	assert.Len(t, byJob, 0)

	bus.CloseJob("tracker-7")
	_, ok := <-byTopic
	assert.False(t, ok)
	assert.Equal(t, 1, bus.Subscribers("job-1"))
}
