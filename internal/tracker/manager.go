package tracker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"resumeopt/internal/errors"
	"resumeopt/internal/events"
	"resumeopt/internal/types"
)

// ManagerConfig bounds the sessions a Manager runs.
type ManagerConfig struct {
	PollInterval  time.Duration
	PollTimeout   time.Duration
	CancelTimeout time.Duration
	MaxSessions   int64
	// Retention is how long a finished session stays queryable.
	Retention time.Duration
}

type session struct {
	tracker    *Tracker
	finishedAt time.Time
}

// Manager runs one Tracker per job for the HTTP server.
type Manager struct {
	source   StatusSource
	cfg      ManagerConfig
	bus      *events.Bus
	logger   *errors.Logger
	recorder Recorder
	sem      *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// NewManager creates a manager. Close must be called to stop its sessions.
func NewManager(source StatusSource, cfg ManagerConfig, bus *events.Bus, recorder Recorder, logger *errors.Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 50
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 15 * time.Minute
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		source:   source,
		cfg:      cfg,
		bus:      bus,
		logger:   logger,
		recorder: recorder,
		sem:      semaphore.NewWeighted(cfg.MaxSessions),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}

	m.wg.Add(1)
	go m.reapRoutine(cfg.Retention / 2)
	return m
}

// Track starts a session for jobID.
func (m *Manager) Track(jobID string) (*Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[jobID]; ok && existing.finishedAt.IsZero() {
		return nil, errors.NewTrackingError(errors.ErrCodeTrackerActive,
			"job is already being tracked", nil).WithContext("job_id", jobID)
	}
	if !m.sem.TryAcquire(1) {
		return nil, errors.NewTrackingError(errors.ErrCodeTooManySessions,
			"too many auto-apply jobs are being tracked", nil).WithContext("limit", m.cfg.MaxSessions)
	}

	t := New(m.source, m.logger,
		WithInterval(m.cfg.PollInterval),
		WithPollTimeout(m.cfg.PollTimeout),
		WithCancelTimeout(m.cfg.CancelTimeout),
		WithBus(m.bus),
		WithRecorder(m.recorder),
	)
	if err := t.Start(m.ctx, jobID); err != nil {
		m.sem.Release(1)
		return nil, err
	}

	s := &session{tracker: t}
	m.sessions[jobID] = s

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-t.Done()
		m.sem.Release(1)
		m.mu.Lock()
		s.finishedAt = time.Now()
		m.mu.Unlock()
	}()
	return t, nil
}

// Get returns the session tracker for jobID.
func (m *Manager) Get(jobID string) (*Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[jobID]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrCodeJobNotFound, "job is not being tracked", nil).
			WithContext("job_id", jobID)
	}
	return s.tracker, nil
}

// Snapshot returns the tracked state of jobID.
func (m *Manager) Snapshot(jobID string) (types.JobSubmission, error) {
	t, err := m.Get(jobID)
	if err != nil {
		return types.JobSubmission{}, err
	}
	return t.Snapshot(), nil
}

// Cancel cancels jobID and returns its state afterwards.
func (m *Manager) Cancel(ctx context.Context, jobID string) (types.JobSubmission, bool, error) {
	t, err := m.Get(jobID)
	if err != nil {
		return types.JobSubmission{}, false, err
	}
	cancelled := t.Cancel(ctx)
	return t.Snapshot(), cancelled, nil
}

// Teardown stops and forgets jobID.
func (m *Manager) Teardown(jobID string) error {
	m.mu.Lock()
	s, ok := m.sessions[jobID]
	delete(m.sessions, jobID)
	m.mu.Unlock()

	if !ok {
		return errors.NewNotFoundError(errors.ErrCodeJobNotFound, "job is not being tracked", nil).
			WithContext("job_id", jobID)
	}
	s.tracker.Teardown()
	return nil
}

// Active returns the number of sessions still polling.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.finishedAt.IsZero() {
			n++
		}
	}
	return n
}

// Stats reports session counts for the stats endpoint.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	total := len(m.sessions)
	m.mu.RUnlock()

	return map[string]any{
		"tracked_jobs": total,
		"active_jobs":  m.Active(),
		"max_sessions": m.cfg.MaxSessions,
	}
}

// Close tears down every session and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	trackers := make([]*Tracker, 0, len(m.sessions))
	for _, s := range m.sessions {
		trackers = append(trackers, s.tracker)
	}
	m.mu.Unlock()

	for _, t := range trackers {
		t.Teardown()
		t.Wait()
	}
	m.wg.Wait()
}

func (m *Manager) reapRoutine(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reap(time.Now())
		case <-m.ctx.Done():
			return
		}
	}
}

// reap forgets sessions that finished more than Retention ago.
func (m *Manager) reap(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if !s.finishedAt.IsZero() && now.Sub(s.finishedAt) > m.cfg.Retention {
			delete(m.sessions, id)
		}
	}
	m.logger.Debug("Tracker session cleanup completed", "remaining_sessions", len(m.sessions))
}
