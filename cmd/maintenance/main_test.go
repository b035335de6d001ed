package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"resilience/internal/maintenance"
)

// --- Mock Types ---

type mockRetention struct {
	called bool
	now    time.Time
	items  int
	err    error
}

func (m *mockRetention) PurgeSnapshots(_ context.Context, now time.Time) (int, error) {
	m.called = true
	m.now = now
	return m.items, m.err
}

type mockRefresher struct {
	called bool
	items  int
	err    error
}

func (m *mockRefresher) RefreshStale(_ context.Context, _ time.Time) (int, error) {
	m.called = true
	return m.items, m.err
}

type mockJobLock struct {
	acquired bool
	err      error
	lockIDs  []string
	ttls     []time.Duration
}

func (m *mockJobLock) Acquire(_ context.Context, lockID, _ string, ttl time.Duration) (bool, error) {
	m.lockIDs = append(m.lockIDs, lockID)
	m.ttls = append(m.ttls, ttl)
	return m.acquired, m.err
}

type finishCall struct {
	id     int64
	status string
	items  int
	err    error
}

type mockJobHistory struct {
	startErr  error
	nextID    int64
	started   []string
	finishes  []finishCall
	finishErr error
}

func (m *mockJobHistory) Start(_ context.Context, jobType string) (int64, error) {
	m.started = append(m.started, jobType)
	if m.startErr != nil {
		return 0, m.startErr
	}
	return m.nextID, nil
}

func (m *mockJobHistory) Finish(_ context.Context, id int64, status string, items int, err error) error {
	m.finishes = append(m.finishes, finishCall{id: id, status: status, items: items, err: err})
	return m.finishErr
}

// --- Helper Functions ---

var testNow = time.Date(2026, 3, 1, 4, 17, 0, 0, time.UTC)

type fixture struct {
	retention *mockRetention
	refresher *mockRefresher
	lock      *mockJobLock
	history   *mockJobHistory
	handler   *Handler
}

func newFixture() *fixture {
	f := &fixture{
		retention: &mockRetention{},
		refresher: &mockRefresher{},
		lock:      &mockJobLock{acquired: true},
		history:   &mockJobHistory{nextID: 9},
	}
	f.handler = &Handler{
		Retention:  f.retention,
		Refresher:  f.refresher,
		JobLock:    f.lock,
		JobHistory: f.history,
		LockTTL:    15 * time.Minute,
		WorkerID:   "worker-test",
		Clock:      clockwork.NewFakeClockAt(testNow),
		Logger:     slog.New(slog.DiscardHandler),
	}
	return f
}

// --- Tests ---

func TestHandle_PurgeSnapshots(t *testing.T) {
	f := newFixture()
	f.retention.items = 42

	result, err := f.handler.Handle(context.Background(), maintenance.Payload{Task: maintenance.TaskPurgeSnapshots})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !f.retention.called {
		t.Error("expected retention service to be called")
	}
	if !f.retention.now.Equal(testNow) {
		t.Errorf("reference time = %v, want %v", f.retention.now, testNow)
	}
	if !strings.Contains(result, "42 items") {
		t.Errorf("result = %q, want item count", result)
	}
	if got := f.lock.lockIDs; len(got) != 1 || got[0] != "purge_snapshots:2026-03-01T04" {
		t.Errorf("lock IDs = %v", got)
	}
	if f.lock.ttls[0] != 15*time.Minute {
		t.Errorf("lock ttl = %v, want 15m", f.lock.ttls[0])
	}
	if len(f.history.finishes) != 1 {
		t.Fatalf("expected 1 history finish, got %d", len(f.history.finishes))
	}
	fin := f.history.finishes[0]
	if fin.id != 9 || fin.status != "success" || fin.items != 42 {
		t.Errorf("finish = %+v", fin)
	}
}

func TestHandle_RefreshSnapshots(t *testing.T) {
	f := newFixture()
	f.refresher.items = 3

	if _, err := f.handler.Handle(context.Background(), maintenance.Payload{Task: maintenance.TaskRefreshSnapshots}); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !f.refresher.called {
		t.Error("expected refresher to be called")
	}
	if f.retention.called {
		t.Error("retention must not run for a refresh task")
	}
}

func TestHandle_ReferenceTimeOverride(t *testing.T) {
	f := newFixture()
	ref := time.Date(2026, 1, 15, 22, 45, 0, 0, time.FixedZone("CET", 3600))

	if _, err := f.handler.Handle(context.Background(), maintenance.Payload{
		Task:          maintenance.TaskPurgeSnapshots,
		ReferenceTime: &ref,
	}); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !f.retention.now.Equal(ref) || f.retention.now.Location() != time.UTC {
		t.Errorf("reference time = %v, want %v in UTC", f.retention.now, ref)
	}
	if f.lock.lockIDs[0] != "purge_snapshots:2026-01-15T21" {
		t.Errorf("lock ID = %q", f.lock.lockIDs[0])
	}
}

func TestHandle_LockHeld(t *testing.T) {
	f := newFixture()
	f.lock.acquired = false

	result, err := f.handler.Handle(context.Background(), maintenance.Payload{Task: maintenance.TaskPurgeSnapshots})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.HasPrefix(result, "skipped") {
		t.Errorf("result = %q, want skipped", result)
	}
	if f.retention.called || len(f.history.started) != 0 {
		t.Error("nothing may run while the lock is held")
	}
}

func TestHandle_LockError(t *testing.T) {
	f := newFixture()
	f.lock.err = errors.New("db down")

	if _, err := f.handler.Handle(context.Background(), maintenance.Payload{Task: maintenance.TaskPurgeSnapshots}); err == nil {
		t.Fatal("expected an error when the lock cannot be acquired")
	}
	if f.retention.called {
		t.Error("task must not run without the lock")
	}
}

func TestHandle_TaskFailureRecorded(t *testing.T) {
	f := newFixture()
	f.retention.items = 5
	f.retention.err = errors.New("deadlock detected")

	_, err := f.handler.Handle(context.Background(), maintenance.Payload{Task: maintenance.TaskPurgeSnapshots})
	if err == nil || !strings.Contains(err.Error(), "deadlock detected") {
		t.Fatalf("err = %v, want wrapped task error", err)
	}
	fin := f.history.finishes[0]
	if fin.status != "failed" || fin.items != 5 || fin.err == nil {
		t.Errorf("finish = %+v", fin)
	}
}

func TestHandle_HistoryStartFailureStillRuns(t *testing.T) {
	f := newFixture()
	f.history.startErr = errors.New("insert failed")

	if _, err := f.handler.Handle(context.Background(), maintenance.Payload{Task: maintenance.TaskPurgeSnapshots}); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !f.retention.called {
		t.Error("task must run even when history tracking fails")
	}
	if len(f.history.finishes) != 0 {
		t.Error("Finish must be skipped without a job ID")
	}
}

func TestHandle_InvalidTask(t *testing.T) {
	tests := []struct {
		name string
		task maintenance.TaskType
	}{
		{"empty", ""},
		{"unknown", "rebuild_indexes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if _, err := f.handler.Handle(context.Background(), maintenance.Payload{Task: tt.task}); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := logLevel(in); got != want {
			t.Errorf("logLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
