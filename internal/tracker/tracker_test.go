package tracker

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"resumeopt/internal/errors"
	"resumeopt/internal/events"
	"resumeopt/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = errors.NewLogger(slog.LevelDebug)

// scriptedSource replays reports in order and repeats the last one.
type scriptedSource struct {
	mu          sync.Mutex
	reports     []*types.JobStatusReport
	failOn      int
	statusCalls int
	cancelCalls int
	cancelErr   error
	cancelled   chan struct{}
}

func newScriptedSource(reports ...*types.JobStatusReport) *scriptedSource {
	return &scriptedSource{reports: reports, cancelled: make(chan struct{}, 1)}
}

func (s *scriptedSource) Status(_ context.Context, _ string) (*types.JobStatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCalls++
	if s.failOn > 0 && s.statusCalls == s.failOn {
		return nil, stderrors.New("connection reset by peer")
	}
	idx := min(s.statusCalls-1, len(s.reports)-1)
	report := *s.reports[idx]
	return &report, nil
}

func (s *scriptedSource) Cancel(_ context.Context, _ string) (bool, error) {
	s.mu.Lock()
	s.cancelCalls++
	err := s.cancelErr
	s.mu.Unlock()
	select {
	case s.cancelled <- struct{}{}:
	default:
	}
	return err == nil, err
}

func (s *scriptedSource) calls() (status, cancel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls, s.cancelCalls
}

func processing(progress int, step string) *types.JobStatusReport {
	return &types.JobStatusReport{Status: types.JobStatusProcessing, Progress: progress, CurrentStepLabel: step}
}

func newTestTracker(source StatusSource) *Tracker {
	return New(source, testLogger, WithInterval(5*time.Millisecond), WithPollTimeout(time.Second))
}

func waitDone(t *testing.T, tr *Tracker) {
	t.Helper()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tracker did not stop")
	}
}

func TestTrackerRunsToCompletion(t *testing.T) {
	source := newScriptedSource(
		&types.JobStatusReport{Status: types.JobStatusPending},
		processing(30, "Filling form"),
		processing(70, "Uploading resume"),
		&types.JobStatusReport{
			Status:   types.JobStatusCompleted,
			Progress: 100,
			Result:   &types.JobResult{Success: true, Message: "Application submitted"},
		},
	)
	tr := newTestTracker(source)

	require.NoError(t, tr.Start(context.Background(), "job-1"))
	waitDone(t, tr)

	snap := tr.Snapshot()
	assert.Equal(t, types.JobStatusCompleted, snap.Status)
	assert.Equal(t, types.SessionFinished, snap.Session)
	assert.Equal(t, 100, snap.Progress)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "Application submitted", snap.Result.Message)
	assert.Empty(t, snap.Error)

	status, _ := source.calls()
	assert.Equal(t, 4, status)
}

func TestTrackerStartValidation(t *testing.T) {
	tr := newTestTracker(newScriptedSource(processing(0, "")))

	err := tr.Start(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	require.NoError(t, tr.Start(context.Background(), "job-1"))
	defer tr.Teardown()

	err = tr.Start(context.Background(), "job-2")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTrackerActive))
}

func TestTrackerTerminalStateIsSticky(t *testing.T) {
	source := newScriptedSource(
		&types.JobStatusReport{Status: types.JobStatusFailed, Error: "captcha"},
		processing(50, "Retrying"),
	)
	tr := newTestTracker(source)

	require.NoError(t, tr.Start(context.Background(), "job-1"))
	waitDone(t, tr)

	before := tr.Snapshot()
	require.Equal(t, types.JobStatusFailed, before.Status)

	// Later reports, including a fresh poll, must not change anything.
	assert.False(t, tr.apply(context.Background(), processing(90, "Retrying")))
	assert.False(t, tr.poll(context.Background()))

	after := tr.Snapshot()
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Progress, after.Progress)
	assert.Equal(t, "captcha", after.Error)
	assert.Equal(t, before.CurrentStepLabel, after.CurrentStepLabel)
}

func TestTrackerCancelFromProcessingWithRemoteFailure(t *testing.T) {
	source := newScriptedSource(processing(40, "Answering questions"))
	source.cancelErr = stderrors.New("cancel endpoint unavailable")
	tr := newTestTracker(source)

	require.NoError(t, tr.Start(context.Background(), "job-1"))
	require.Eventually(t, func() bool {
		return tr.Snapshot().Status == types.JobStatusProcessing
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, tr.Cancel(context.Background()))

	snap := tr.Snapshot()
	assert.Equal(t, types.JobStatusFailed, snap.Status)
	assert.Equal(t, CancelledMessage, snap.Error)

	tr.Wait()
	_, cancelCalls := source.calls()
	assert.Equal(t, 1, cancelCalls)

	statusAfterCancel, _ := source.calls()
	time.Sleep(30 * time.Millisecond)
	statusLater, _ := source.calls()
	assert.Equal(t, statusAfterCancel, statusLater, "no polling after cancel")
	assert.Equal(t, types.JobStatusFailed, tr.Snapshot().Status)
}

func TestTrackerCancelIsNoOpOutsideProcessing(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		tr := newTestTracker(newScriptedSource(processing(0, "")))
		assert.False(t, tr.Cancel(context.Background()))
		tr.Teardown()
	})

	t.Run("after completion", func(t *testing.T) {
		source := newScriptedSource(&types.JobStatusReport{Status: types.JobStatusCompleted, Progress: 100})
		tr := newTestTracker(source)
		require.NoError(t, tr.Start(context.Background(), "job-1"))
		waitDone(t, tr)

		assert.False(t, tr.Cancel(context.Background()))
		assert.Equal(t, types.JobStatusCompleted, tr.Snapshot().Status)
		_, cancelCalls := source.calls()
		assert.Equal(t, 0, cancelCalls)
	})
}

func TestTrackerPollingFailureIsFatal(t *testing.T) {
	source := newScriptedSource(processing(10, "Opening page"), processing(20, "Filling form"))
	source.failOn = 3
	tr := newTestTracker(source)

	require.NoError(t, tr.Start(context.Background(), "job-1"))
	waitDone(t, tr)
	time.Sleep(30 * time.Millisecond)

	status, _ := source.calls()
	assert.Equal(t, 3, status, "no polls after the failing one")

	snap := tr.Snapshot()
	assert.Equal(t, types.SessionErrored, snap.Session)
	assert.NotEmpty(t, snap.TrackingError)
	assert.Equal(t, types.JobStatusProcessing, snap.Status, "job status stays at last known value")
	assert.Equal(t, 20, snap.Progress)
}

func TestTrackerRejectsUnknownStatus(t *testing.T) {
	source := newScriptedSource(&types.JobStatusReport{Status: "exploded"})
	tr := newTestTracker(source)

	require.NoError(t, tr.Start(context.Background(), "job-1"))
	waitDone(t, tr)

	assert.Equal(t, types.SessionErrored, tr.Snapshot().Session)
}

func TestTrackerProgressNeverDecreases(t *testing.T) {
	source := newScriptedSource(
		processing(60, "a"),
		processing(40, "b"),
		processing(150, "c"),
		&types.JobStatusReport{Status: types.JobStatusCompleted, Progress: -5},
	)
	tr := newTestTracker(source)

	var seen []int
	ch, unsub := tr.Subscribe()
	defer unsub()

	require.NoError(t, tr.Start(context.Background(), "job-1"))
	waitDone(t, tr)

	for e := range ch {
		seen = append(seen, e.Snapshot.Progress)
	}
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, tr.Snapshot().Progress)
}

func TestTrackerTeardown(t *testing.T) {
	t.Run("stops polling", func(t *testing.T) {
		source := newScriptedSource(processing(10, "working"))
		tr := newTestTracker(source)
		require.NoError(t, tr.Start(context.Background(), "job-1"))

		tr.Teardown()
		waitDone(t, tr)
		tr.Teardown()

		status, _ := source.calls()
		time.Sleep(30 * time.Millisecond)
		later, _ := source.calls()
		assert.Equal(t, status, later)
		assert.Equal(t, types.SessionStopped, tr.Snapshot().Session)
	})

	t.Run("before start", func(t *testing.T) {
		tr := newTestTracker(newScriptedSource(processing(0, "")))
		tr.Teardown()
		waitDone(t, tr)

		err := tr.Start(context.Background(), "job-1")
		assert.True(t, errors.HasCode(err, errors.ErrCodeTrackerActive))
	})

	t.Run("parent context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		tr := newTestTracker(newScriptedSource(processing(10, "working")))
		require.NoError(t, tr.Start(ctx, "job-1"))

		cancel()
		waitDone(t, tr)
		assert.Equal(t, types.SessionStopped, tr.Snapshot().Session)
	})
}

func TestTrackerSnapshotIsACopy(t *testing.T) {
	source := newScriptedSource(&types.JobStatusReport{
		Status: types.JobStatusCompleted,
		Result: &types.JobResult{Success: true, Message: "ok"},
	})
	tr := newTestTracker(source)
	require.NoError(t, tr.Start(context.Background(), "job-1"))
	waitDone(t, tr)

	snap := tr.Snapshot()
	snap.Result.Message = "changed"
	snap.Status = types.JobStatusPending

	again := tr.Snapshot()
	assert.Equal(t, "ok", again.Result.Message)
	assert.Equal(t, types.JobStatusCompleted, again.Status)
}

func TestTrackerSharedBusIsolatesSessionsOfSameJob(t *testing.T) {
	bus := events.NewBus(testLogger)
	first := New(newScriptedSource(processing(10, "first")), testLogger,
		WithInterval(5*time.Millisecond), WithBus(bus))
	second := New(newScriptedSource(processing(20, "second")), testLogger,
		WithInterval(5*time.Millisecond), WithBus(bus))

	ch, unsub := second.Subscribe()
	defer unsub()

	require.NoError(t, first.Start(context.Background(), "job-1"))
	first.Teardown()
	waitDone(t, first)

	select {
	case e, ok := <-ch:
		t.Fatalf("second tracker saw the first one's stream: event=%+v open=%v", e, ok)
	default:
	}

	require.NoError(t, second.Start(context.Background(), "job-1"))
	defer second.Teardown()

	select {
	case e, ok := <-ch:
		require.True(t, ok)
		assert.Equal(t, "job-1", e.JobID)
		assert.Equal(t, "second", e.Snapshot.CurrentStepLabel)
	case <-time.After(2 * time.Second):
		t.Fatal("no event from the second tracker")
	}
}

func TestTrackerWaitWithoutStart(t *testing.T) {
	tr := newTestTracker(newScriptedSource(processing(0, "")))

	returned := make(chan struct{})
	go func() {
		tr.Wait()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on a tracker that was never started")
	}
}
