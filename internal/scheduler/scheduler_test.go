package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/telemetry"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, path string, _ any) (*engine.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	return &engine.Report{Steps: 1}, f.errs[path]
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func ptr(t time.Time) *time.Time { return &t }

// --- Cron Tests ---

func TestNextDue(t *testing.T) {
	from := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		sched domain.Schedule
		want  time.Time
	}{
		{
			name:  "cron daily",
			sched: domain.Schedule{CronExpr: "0 9 * * *"},
			want:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "cron every 5 minutes",
			sched: domain.Schedule{CronExpr: "*/5 * * * *"},
			want:  time.Date(2024, 1, 1, 8, 5, 0, 0, time.UTC),
		},
		{
			name:  "cron in timezone",
			sched: domain.Schedule{CronExpr: "0 12 * * *", Timezone: "Europe/Moscow"},
			want:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "every descriptor",
			sched: domain.Schedule{CronExpr: "@every 30s"},
			want:  from.Add(30 * time.Second),
		},
		{
			name:  "interval",
			sched: domain.Schedule{IntervalSec: 60},
			want:  from.Add(time.Minute),
		},
		{
			name:  "cron wins over interval",
			sched: domain.Schedule{CronExpr: "0 9 * * *", IntervalSec: 60},
			want:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDue(&tt.sched, from)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestNextDue_NoTrigger(t *testing.T) {
	_, err := NextDue(&domain.Schedule{}, time.Now())
	require.ErrorIs(t, err, ErrNoTrigger)
}

func TestValidateCronExpr(t *testing.T) {
	assert.NoError(t, ValidateCronExpr("0 9 * * 1-5"))
	assert.NoError(t, ValidateCronExpr("@hourly"))
	assert.Error(t, ValidateCronExpr("every day"))
	assert.Error(t, ValidateCronExpr("61 * * * *"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sched   domain.Schedule
		wantErr bool
	}{
		{"cron", domain.Schedule{FlowPath: "f.json", CronExpr: "* * * * *"}, false},
		{"interval", domain.Schedule{FlowPath: "f.json", IntervalSec: 10}, false},
		{"no path", domain.Schedule{IntervalSec: 10}, true},
		{"no trigger", domain.Schedule{FlowPath: "f.json"}, true},
		{"bad cron", domain.Schedule{FlowPath: "f.json", CronExpr: "bad"}, true},
		{"bad timezone", domain.Schedule{FlowPath: "f.json", IntervalSec: 10, Timezone: "Mars/Base"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.sched)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- Scheduler Tests ---

func TestAdd_ComputesNextDue(t *testing.T) {
	s := New(Config{Runner: &fakeRunner{}, Logger: telemetry.Discard()})

	sched := &domain.Schedule{FlowPath: "f.json", IntervalSec: 60, Enabled: true}
	require.NoError(t, s.Add(sched))
	require.NotNil(t, sched.NextDueAt)
	assert.WithinDuration(t, time.Now().Add(time.Minute), *sched.NextDueAt, 5*time.Second)

	require.Error(t, s.Add(&domain.Schedule{FlowPath: "f.json"}))
	assert.Len(t, s.Schedules(), 1)
}

func TestTick_RunsDueSchedules(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"fail.json":    errors.New("boom"),
		"stopped.json": domain.ErrTerminatedByUser,
	}}
	s := New(Config{Runner: runner, Logger: telemetry.Discard()})

	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	ok := &domain.Schedule{FlowPath: "ok.json", IntervalSec: 60, Enabled: true, NextDueAt: ptr(past)}
	fail := &domain.Schedule{FlowPath: "fail.json", IntervalSec: 60, Enabled: true, NextDueAt: ptr(now)}
	stopped := &domain.Schedule{FlowPath: "stopped.json", IntervalSec: 60, Enabled: true, NextDueAt: ptr(past)}
	later := &domain.Schedule{FlowPath: "later.json", IntervalSec: 60, Enabled: true, NextDueAt: ptr(future)}
	disabled := &domain.Schedule{FlowPath: "disabled.json", IntervalSec: 60, NextDueAt: ptr(past)}
	for _, sched := range []*domain.Schedule{ok, fail, stopped, later, disabled} {
		require.NoError(t, s.Add(sched))
	}

	assert.Equal(t, 3, s.Tick(context.Background(), now))
	assert.Equal(t, []string{"ok.json", "fail.json", "stopped.json"}, runner.calls)

	assert.Equal(t, domain.RunStatusSucceeded, ok.LastStatus)
	assert.Equal(t, domain.RunStatusFailed, fail.LastStatus)
	assert.Equal(t, domain.RunStatusCancelled, stopped.LastStatus)
	assert.True(t, now.Add(time.Minute).Equal(*ok.NextDueAt))
	assert.NotNil(t, ok.LastRunAt)
	assert.Nil(t, later.LastRunAt)

	// Повторный тик в то же время ничего не запускает.
	assert.Equal(t, 0, s.Tick(context.Background(), now))
}

func TestRun_LoopsUntilCancelled(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{Runner: runner, TickInterval: 10 * time.Millisecond, Logger: telemetry.Discard()})

	require.NoError(t, s.Add(&domain.Schedule{
		FlowPath:    "f.json",
		IntervalSec: 3600,
		Enabled:     true,
		NextDueAt:   ptr(time.Now().Add(-time.Second)),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 1, runner.count())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedules.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"flow_path": "flows/report.json", "cron_expr": "0 9 * * *", "timezone": "UTC", "enabled": true},
  {"name": "poll", "flow_path": "/abs/poll.json", "interval_sec": 30, "enabled": false, "input": {"page": 1}}
]`), 0o644))

	schedules, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, schedules, 2)

	assert.Equal(t, filepath.Join(dir, "flows", "report.json"), schedules[0].FlowPath)
	assert.Equal(t, "report.json", schedules[0].Name)
	assert.True(t, schedules[0].IsCron())

	assert.Equal(t, "/abs/poll.json", schedules[1].FlowPath)
	assert.False(t, schedules[1].Enabled)
	assert.Equal(t, map[string]any{"page": 1.0}, schedules[1].Input)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"flow_path": "f.json", "cron_expr": "nope"}]`), 0o644))
	_, err := LoadFile(bad)
	require.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
