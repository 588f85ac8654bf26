package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// DefaultTickInterval — период проверки расписаний.
const DefaultTickInterval = time.Second

// Runner выполняет flow-документ. Реализуется *engine.Engine.
type Runner interface {
	Run(ctx context.Context, path string, input any) (*engine.Report, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	Runner       Runner
	TickInterval time.Duration // default: 1s
	Logger       *slog.Logger
}

// Scheduler — планировщик, запускающий flow по расписаниям.
type Scheduler struct {
	runner       Runner
	tickInterval time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	schedules []*domain.Schedule
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		runner:       cfg.Runner,
		tickInterval: tick,
		logger:       logger,
	}
}

// Add проверяет и добавляет расписание.
// Если NextDueAt не задан, он вычисляется от текущего времени.
func (s *Scheduler) Add(sched *domain.Schedule) error {
	if err := Validate(sched); err != nil {
		return err
	}

	if sched.NextDueAt == nil {
		next, err := NextDue(sched, time.Now())
		if err != nil {
			return err
		}
		sched.NextDueAt = &next
	}

	s.mu.Lock()
	s.schedules = append(s.schedules, sched)
	s.mu.Unlock()

	s.logger.Info("schedule added",
		"schedule_name", sched.Name,
		"flow_path", sched.FlowPath,
		"next_due_at", *sched.NextDueAt,
	)
	return nil
}

// Schedules возвращает копию списка расписаний.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	return out
}

// Run вызывает Tick раз в TickInterval, пока ctx не отменён.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "tick_interval", s.tickInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick выполняет один тик планировщика.
//
//  1. Находит due расписания (enabled, next_due_at <= now)
//  2. Сдвигает next_due_at, чтобы долгий запуск не вызвал повтор
//  3. Запускает flow и записывает итог
//
// Ошибки одного расписания не блокируют обработку остальных.
// Возвращает количество запущенных flow.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	due := s.collectDue(now)
	if len(due) == 0 {
		return 0
	}

	s.logger.Debug("found due schedules", "count", len(due))

	started := 0
	for _, sched := range due {
		if ctx.Err() != nil {
			break
		}

		next, err := NextDue(sched, now)
		if err != nil {
			s.logger.Error("failed to calculate next due, disabling schedule",
				"schedule_name", sched.Name,
				"error", err,
			)
			s.mu.Lock()
			sched.Enabled = false
			s.mu.Unlock()
			continue
		}

		status := s.runOnce(ctx, sched)
		started++

		s.mu.Lock()
		sched.RecordRun(status, next)
		s.mu.Unlock()
	}

	s.logger.Info("scheduler tick completed", "due", len(due), "started", started)
	return started
}

// collectDue выбирает расписания, время которых наступило.
func (s *Scheduler) collectDue(now time.Time) []*domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Schedule
	for _, sched := range s.schedules {
		if sched.IsDue(now) {
			due = append(due, sched)
		}
	}
	return due
}

// runOnce запускает flow расписания и возвращает итоговый статус.
func (s *Scheduler) runOnce(ctx context.Context, sched *domain.Schedule) domain.RunStatus {
	logger := telemetry.WithFlowPath(s.logger, sched.FlowPath).With("schedule_name", sched.Name)
	start := time.Now()

	report, err := s.runner.Run(ctx, sched.FlowPath, sched.Input)

	switch {
	case err == nil:
		logger.Info("scheduled run finished",
			"duration", time.Since(start),
			"steps", report.Steps,
		)
		return domain.RunStatusSucceeded
	case errors.Is(err, domain.ErrTerminatedByUser) || ctx.Err() != nil:
		logger.Warn("scheduled run cancelled", "error", err)
		return domain.RunStatusCancelled
	default:
		logger.Error("scheduled run failed", "duration", time.Since(start), "error", err)
		return domain.RunStatusFailed
	}
}
