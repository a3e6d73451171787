// Package tracker follows one auto-apply job from submission to a terminal
// status by polling the remote service.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"resumeopt/internal/errors"
	"resumeopt/internal/events"
	"resumeopt/internal/types"
)

const (
	DefaultPollInterval  = 2 * time.Second
	DefaultPollTimeout   = 30 * time.Second
	DefaultCancelTimeout = 15 * time.Second

	// CancelledMessage is the error recorded on a job cancelled by the user.
	CancelledMessage = "Cancelled by user"
	// trackingLostMessage is what a session shows after its status channel broke.
	trackingLostMessage = "Lost contact with the application service; the job's final status is unknown"
)

var trackerSeq atomic.Uint64

// StatusSource is the remote service that owns the job.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (*types.JobStatusReport, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
}

// Recorder receives tracking telemetry. Implementations must be safe for concurrent use.
type Recorder interface {
	RecordPoll(ctx context.Context, err error)
	RecordOutcome(ctx context.Context, status types.JobStatus, cancelled bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordPoll(context.Context, error)                    {}
func (noopRecorder) RecordOutcome(context.Context, types.JobStatus, bool) {}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the pause between the end of one poll and the start of the next.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithPollTimeout bounds a single status request.
func WithPollTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.pollTimeout = d }
}

// WithCancelTimeout bounds the best-effort remote cancel request.
func WithCancelTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.cancelTimeout = d }
}

// WithBus publishes snapshots on a shared bus instead of a private one.
func WithBus(bus *events.Bus) Option {
	return func(t *Tracker) {
		if bus != nil {
			t.bus = bus
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(t *Tracker) {
		if r != nil {
			t.recorder = r
		}
	}
}

// Tracker owns the JobSubmission for one job. Callers only ever see copies.
type Tracker struct {
	source        StatusSource
	logger        *errors.Logger
	bus           *events.Bus
	recorder      Recorder
	interval      time.Duration
	pollTimeout   time.Duration
	cancelTimeout time.Duration
	now           func() time.Time
	// topic keys this tracker's events on the bus. It is unique per tracker.
	topic         string

	mu         sync.Mutex
	job        types.JobSubmission
	started    bool
	tornDown   bool
	stopLoop   context.CancelFunc
	done       chan struct{}
	background sync.WaitGroup
}

// New creates an idle tracker.
func New(source StatusSource, logger *errors.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		source:        source,
		logger:        logger,
		recorder:      noopRecorder{},
		interval:      DefaultPollInterval,
		pollTimeout:   DefaultPollTimeout,
		cancelTimeout: DefaultCancelTimeout,
		now:           time.Now,
		topic:         fmt.Sprintf("tracker-%d", trackerSeq.Add(1)),
		done:          make(chan struct{}),
		job:           types.JobSubmission{Session: types.SessionIdle},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.bus == nil {
		t.bus = events.NewBus(logger)
	}
	return t
}

// Start begins tracking jobID. It polls at once and then keeps polling,
// one request at a time, until the job is terminal or the tracker is torn down.
func (t *Tracker) Start(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidInput, "job id is required", nil)
	}

	t.mu.Lock()
	if t.started || t.tornDown {
		current := t.job.ID
		t.mu.Unlock()
		return errors.NewTrackingError(errors.ErrCodeTrackerActive,
			"tracker is already in use", nil).WithContext("job_id", current)
	}
	loopCtx, stop := context.WithCancel(ctx)
	t.started = true
	t.stopLoop = stop
	t.job = types.JobSubmission{
		ID:        jobID,
		Status:    types.JobStatusPending,
		Session:   types.SessionPolling,
		UpdatedAt: t.now(),
	}
	t.mu.Unlock()

	t.logger.Info("Tracking auto-apply job", "job_id", jobID, "interval", t.interval)
	go t.run(loopCtx)
	return nil
}

func (t *Tracker) run(ctx context.Context) {
	defer func() {
		t.bus.CloseJob(t.topic)
		close(t.done)
	}()

	for {
		if !t.poll(ctx) {
			return
		}

		timer := time.NewTimer(t.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.markStopped()
			return
		case <-timer.C:
		}
	}
}

// poll performs one status request and reports whether polling should continue.
func (t *Tracker) poll(ctx context.Context) bool {
	jobID := t.jobID()

	reqCtx := ctx
	if t.pollTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, t.pollTimeout)
		defer cancel()
	}

	report, err := t.source.Status(reqCtx, jobID)
	if ctx.Err() != nil {
		t.markStopped()
		return false
	}
	t.recorder.RecordPoll(ctx, err)
	if err != nil {
		t.fail(ctx, err)
		return false
	}
	if report == nil || !report.Status.Valid() {
		t.fail(ctx, errors.NewNetworkError(errors.ErrCodeInvalidResponse,
			"status response carried no recognizable status", nil))
		return false
	}
	return t.apply(ctx, report)
}

// apply copies a status report into the job. Terminal jobs never change.
func (t *Tracker) apply(ctx context.Context, report *types.JobStatusReport) bool {
	t.mu.Lock()
	if t.job.Status.Terminal() || t.job.Session != types.SessionPolling {
		t.mu.Unlock()
		return false
	}

	progress := min(max(report.Progress, 0), 100)
	if progress < t.job.Progress {
		progress = t.job.Progress
	}

	t.job.Status = report.Status
	t.job.Progress = progress
	t.job.CurrentStepLabel = report.CurrentStepLabel
	t.job.UpdatedAt = t.now()

	switch report.Status {
	case types.JobStatusCompleted:
		result := types.JobResult{Success: true}
		if report.Result != nil {
			result = *report.Result
		}
		t.job.Result = &result
		t.job.Session = types.SessionFinished
	case types.JobStatusFailed:
		t.job.Error = report.Error
		if t.job.Error == "" {
			t.job.Error = "Application failed"
		}
		t.job.Session = types.SessionFinished
	}
	terminal := t.job.Status.Terminal()
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.publish(snapshot)
	if terminal {
		t.logger.Info("Auto-apply job finished", "job_id", snapshot.ID, "status", snapshot.Status)
		t.recorder.RecordOutcome(ctx, snapshot.Status, false)
	}
	return !terminal
}

// fail ends the session after a broken status channel. The job keeps its last known status.
func (t *Tracker) fail(ctx context.Context, cause error) {
	t.mu.Lock()
	if t.job.Status.Terminal() || t.job.Session != types.SessionPolling {
		t.mu.Unlock()
		return
	}
	t.job.Session = types.SessionErrored
	t.job.TrackingError = trackingLostMessage
	t.job.UpdatedAt = t.now()
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	appErr := errors.NewTrackingError(errors.ErrCodePollingFailed, "status polling failed", cause).
		WithContext("job_id", snapshot.ID)
	t.logger.LogError(appErr, "Stopped tracking auto-apply job")
	t.publish(snapshot)
}

func (t *Tracker) markStopped() {
	t.mu.Lock()
	if t.job.Session != types.SessionPolling {
		t.mu.Unlock()
		return
	}
	t.job.Session = types.SessionStopped
	t.job.UpdatedAt = t.now()
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.publish(snapshot)
}

// Cancel cancels a processing job. Local state flips to failed before Cancel
// returns; the remote request runs in the background and its failure is only
// logged. It reports whether anything was cancelled.
func (t *Tracker) Cancel(ctx context.Context) bool {
	t.mu.Lock()
	if t.job.Status != types.JobStatusProcessing {
		t.mu.Unlock()
		return false
	}
	t.job.Status = types.JobStatusFailed
	t.job.Error = CancelledMessage
	t.job.Result = nil
	if t.job.Session == types.SessionPolling {
		t.job.Session = types.SessionFinished
	}
	t.job.UpdatedAt = t.now()
	snapshot := t.snapshotLocked()
	stop := t.stopLoop
	t.background.Add(1)
	t.mu.Unlock()

	t.publish(snapshot)
	if stop != nil {
		stop()
	}
	t.recorder.RecordOutcome(ctx, types.JobStatusFailed, true)
	t.logger.Info("Auto-apply job cancelled by user", "job_id", snapshot.ID)

	go func() {
		defer t.background.Done()
		t.cancelRemote(context.WithoutCancel(ctx), snapshot.ID)
	}()
	return true
}

func (t *Tracker) cancelRemote(ctx context.Context, jobID string) {
	if t.cancelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cancelTimeout)
		defer cancel()
	}

	acknowledged, err := t.source.Cancel(ctx, jobID)
	switch {
	case err != nil:
		t.logger.LogError(err, "Remote cancel request failed", "job_id", jobID)
	case !acknowledged:
		t.logger.Warn("Remote service did not acknowledge cancel", "job_id", jobID)
	default:
		t.logger.Debug("Remote cancel acknowledged", "job_id", jobID)
	}
}

// Teardown stops polling. It is safe to call at any time and more than once.
func (t *Tracker) Teardown() {
	t.mu.Lock()
	wasStarted := t.started
	alreadyTornDown := t.tornDown
	t.tornDown = true
	stop := t.stopLoop
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	if !wasStarted && !alreadyTornDown {
		close(t.done)
	}
}

// Wait blocks until polling has exited and any background cancel request has
// returned. It returns at once on a tracker that was never started.
func (t *Tracker) Wait() {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()

	if started {
		<-t.done
	}
	t.background.Wait()
}

// Done is closed once the polling loop has exited.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Snapshot returns a copy of the current job state.
func (t *Tracker) Snapshot() types.JobSubmission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Subscribe streams snapshots until the polling loop exits.
func (t *Tracker) Subscribe() (<-chan events.Event, func()) {
	return t.bus.Subscribe(t.topic)
}

func (t *Tracker) String() string {
	s := t.Snapshot()
	return fmt.Sprintf("job %s: %s (%d%%) session=%s", s.ID, s.Status, s.Progress, s.Session)
}

func (t *Tracker) jobID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.ID
}

func (t *Tracker) snapshotLocked() types.JobSubmission {
	s := t.job
	if t.job.Result != nil {
		result := *t.job.Result
		s.Result = &result
	}
	return s
}

func (t *Tracker) publish(snapshot types.JobSubmission) {
	t.bus.Publish(events.Event{
		Topic:     t.topic,
		JobID:     snapshot.ID,
		Snapshot:  snapshot,
		Timestamp: snapshot.UpdatedAt,
	})
}
