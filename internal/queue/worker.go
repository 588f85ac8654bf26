package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shaiso/flowrun/internal/backend"
	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/process"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// Start запускает worker.
//
// Запускает:
//   - возврат в очередь зависших захватов (recoverStale)
//   - цикл опроса inbox: события fsnotify + опрос с backoff
//   - периодическую очистку outbox (Sweep)
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelFunc != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancelFunc = cancel
	q.loopDone = make(chan struct{})

	q.logger.Info("starting queue worker",
		"root", q.root,
		"poll_interval", q.pollInterval,
		"max_poll_interval", q.maxPollInterval,
		"default_timeout", q.defaultTimeout,
	)

	if n := q.recoverStale(); n > 0 {
		q.logger.Warn("requeued stale claimed jobs", "count", n)
	}

	go func() {
		defer close(q.loopDone)
		q.pollLoop(ctx)
	}()

	return nil
}

// Stop останавливает цикл опроса и ждёт завершения выполняемых задач.
// Задачи не прерываются: их ограничивают собственные таймауты.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel, done := q.cancelFunc, q.loopDone
	q.cancelFunc, q.loopDone = nil, nil
	q.mu.Unlock()

	if cancel == nil {
		return
	}

	q.logger.Info("stopping queue worker...")
	cancel()
	<-done
	q.jobs.Wait()
	q.logger.Info("queue worker stopped")
}

// pollLoop — цикл опроса inbox.
//
// Скан запускается событием fsnotify или по таймеру. Пока работы нет,
// интервал таймера удваивается до maxPollInterval; найденная задача
// возвращает его к pollInterval.
func (q *Queue) pollLoop(ctx context.Context) {
	events, unsubscribe := q.inboxEvents.subscribe()
	defer unsubscribe()

	wait := newBackoff(q.pollInterval, q.maxPollInterval)
	timer := time.NewTimer(0) // первый скан сразу при старте
	defer timer.Stop()

	sweep := time.NewTicker(defaultSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			q.Sweep()
			continue
		case <-events:
		case <-timer.C:
		}

		if q.scan(ctx) > 0 {
			wait.reset()
		}
		resetTimer(timer, wait.next())
	}
}

// scan захватывает и запускает все ожидающие задачи.
// Возвращает количество захваченных задач.
func (q *Queue) scan(ctx context.Context) int {
	entries, err := os.ReadDir(q.inbox)
	if err != nil {
		q.logger.Error("failed to read inbox", "error", err)
		return 0
	}

	claimed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id := jobIDFromName(entry.Name())
		if id == "" {
			continue
		}

		if err := q.sem.Acquire(ctx, 1); err != nil {
			return claimed
		}

		if !q.claim(id) {
			q.sem.Release(1)
			continue
		}
		claimed++

		q.jobs.Add(1)
		go func() {
			defer q.jobs.Done()
			defer q.sem.Release(1)
			// Задача переживает остановку цикла опроса: Stop ждёт её завершения.
			q.handle(context.WithoutCancel(ctx), id)
		}()
	}

	return claimed
}

// claim атомарно переименовывает <id>.json в <id>.processing.
// Неудача означает, что задачу уже захватил другой цикл или процесс.
func (q *Queue) claim(id string) bool {
	claimed := q.claimedPath(id)
	if err := os.Rename(q.jobPath(id), claimed); err != nil {
		q.logger.Debug("claim skipped", "job_id", id, "error", err)
		return false
	}

	// Время захвата, по нему recoverStale отличает зависшие задачи.
	now := time.Now()
	_ = os.Chtimes(claimed, now, now)

	telemetry.JobsClaimed.Inc()
	return true
}

// handle обрабатывает захваченную задачу.
//
//  1. Результат уже есть — дубликат: захваченный файл удаляется.
//  2. Есть stop-маркер — пишется "Process terminated by user", процесс не запускается.
//  3. Иначе задача выполняется backend'ом, результат пишется в outbox.
func (q *Queue) handle(ctx context.Context, id string) {
	start := time.Now()
	logger := telemetry.WithJobID(q.logger, id)
	claimed := q.claimedPath(id)

	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	job, err := readJob(claimed)
	if err != nil {
		logger.Error("failed to read claimed job", "error", err)
		q.finish(logger, &domain.Job{ID: id}, &domain.Result{ID: id, Error: err.Error()}, start)
		return
	}
	if job.ID != id {
		logger.Warn("job id does not match file name, using file name", "job_field", job.ID)
		job.ID = id
	}
	if job.NodeID != "" {
		logger = telemetry.WithNodeID(logger, job.NodeID)
	}

	if exists(q.resultPath(id)) {
		logger.Info("duplicate job, result already present")
		process.RemoveQuietly(claimed)
		telemetry.JobsFinished.WithLabelValues(string(job.Kind), domain.JobStatusDuplicate.String()).Inc()
		return
	}

	if exists(q.stopPath(id)) {
		logger.Info("job stopped before start")
		q.finish(logger, job, domain.NewErrorResult(job, domain.MsgTerminatedByUser), start)
		return
	}

	logger.Info("job started", "kind", job.Kind)
	result := q.execute(ctx, logger, job)
	if result == nil {
		process.RemoveQuietly(claimed)
		return
	}
	q.finish(logger, job, result, start)
}

// execute выполняет задачу backend'ом под контролем реестра процессов.
// Возвращает nil, если задача с таким ID уже выполняется.
func (q *Queue) execute(ctx context.Context, logger *slog.Logger, job *domain.Job) *domain.Result {
	b, err := q.registry.Get(job.Kind)
	if err != nil {
		return domain.NewErrorResult(job, err.Error())
	}

	req, err := b.Prepare(job)
	if err != nil {
		return domain.NewErrorResult(job, err.Error())
	}
	defer req.Cleanup()

	jobCtx, release, err := q.procs.Track(ctx, job.ID, job.Timeout(q.defaultTimeout))
	if err != nil {
		logger.Warn("job is already running, skipping", "error", err)
		return nil
	}
	defer release()

	go q.procs.Watch(jobCtx, job.ID, q.stopPath(job.ID), q.stopPollInterval)
	go q.touchClaim(jobCtx, job.ID)

	raw, err := b.Run(jobCtx, req)
	if err != nil {
		return domain.NewErrorResult(job, failureMessage(err))
	}

	return &domain.Result{
		ID:     job.ID,
		Output: raw.Output,
		Log:    raw.Log,
		Error:  raw.Error,
	}
}

// touchClaim обновляет mtime захваченного файла, пока задача выполняется.
// recoverStale другого worker'а на том же root не вернёт такую задачу в очередь.
func (q *Queue) touchClaim(ctx context.Context, jobID string) {
	ticker := time.NewTicker(q.heartbeat)
	defer ticker.Stop()

	path := q.claimedPath(jobID)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := os.Chtimes(path, now, now); err != nil {
				q.logger.Debug("claim heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// failureMessage переводит ошибку выполнения в сообщение result-файла.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrTerminatedByUser):
		return domain.MsgTerminatedByUser
	case errors.Is(err, domain.ErrTimedOut):
		return domain.MsgTerminatedTimeout
	case errors.Is(err, backend.ErrInterpreterNotFound):
		return fmt.Sprintf("backend not available: %v", err)
	default:
		return err.Error()
	}
}

// finish пишет результат и убирает файлы задачи.
func (q *Queue) finish(logger *slog.Logger, job *domain.Job, result *domain.Result, start time.Time) {
	elapsed := time.Since(start)
	result.ID = job.ID
	result.ExecutionTime = elapsed.Milliseconds()
	result.DontWaitForOutput = job.DontWaitForOutput

	if err := writeJSONExclusive(q.resultPath(job.ID), result); err != nil {
		if errors.Is(err, ErrResultExists) {
			logger.Info("result already written, dropping worker result")
		} else {
			logger.Error("failed to write result", "error", err)
		}
	}

	process.RemoveQuietly(q.claimedPath(job.ID))
	process.RemoveQuietly(q.stopPath(job.ID))

	status := domain.StatusOf(result)
	telemetry.JobsFinished.WithLabelValues(string(job.Kind), status.String()).Inc()
	telemetry.JobDuration.WithLabelValues(string(job.Kind)).Observe(elapsed.Seconds())

	if result.Failed() {
		logger.Warn("job finished with error",
			"status", status,
			"duration", elapsed,
			"error", result.Error,
		)
		return
	}
	logger.Info("job finished", "status", status, "duration", elapsed)
}

// recoverStale возвращает в очередь задачи, захваченные давно и не
// выполняющиеся в этом процессе (worker упал во время выполнения).
// Живой worker обновляет mtime своих задач (touchClaim), поэтому
// устаревшими считаются только брошенные захваты.
func (q *Queue) recoverStale() int {
	entries, err := os.ReadDir(q.inbox)
	if err != nil {
		q.logger.Error("failed to read inbox", "error", err)
		return 0
	}

	running := make(map[string]bool)
	for _, id := range q.procs.Running() {
		running[id] = true
	}

	requeued := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, claimedSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, claimedSuffix)
		if running[id] {
			continue
		}

		info, err := entry.Info()
		if err != nil || time.Since(info.ModTime()) < q.staleClaimAfter {
			continue
		}

		if err := os.Rename(filepath.Join(q.inbox, name), q.jobPath(id)); err != nil {
			q.logger.Warn("failed to requeue stale job", "job_id", id, "error", err)
			continue
		}
		q.logger.Info("stale job requeued", "job_id", id, "claimed_at", info.ModTime())
		requeued++
	}

	return requeued
}

// Sweep удаляет из outbox результаты и временные файлы старше
// ResultRetention: результаты fire-and-forget задач, метки таймаута
// и остатки прерванных записей. Из inbox удаляются такие же старые
// stop-маркеры задач, которых нет ни в очереди, ни в работе.
// Возвращает число удалённых файлов.
func (q *Queue) Sweep() int {
	removed := q.sweepOutbox() + q.sweepStopMarkers()
	if removed > 0 {
		q.logger.Info("queue swept", "removed", removed)
	}
	return removed
}

// sweepOutbox удаляет старые файлы outbox.
func (q *Queue) sweepOutbox() int {
	entries, err := os.ReadDir(q.outbox)
	if err != nil {
		q.logger.Error("failed to read outbox", "error", err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !q.expired(entry) {
			continue
		}
		if err := os.Remove(filepath.Join(q.outbox, entry.Name())); err == nil {
			removed++
		}
	}
	return removed
}

// sweepStopMarkers удаляет старые stop-маркеры завершённых или
// несуществующих задач.
func (q *Queue) sweepStopMarkers() int {
	entries, err := os.ReadDir(q.inbox)
	if err != nil {
		q.logger.Error("failed to read inbox", "error", err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, stopSuffix) || !q.expired(entry) {
			continue
		}
		id := strings.TrimSuffix(name, stopSuffix)
		if exists(q.jobPath(id)) || exists(q.claimedPath(id)) {
			continue
		}
		if err := os.Remove(filepath.Join(q.inbox, name)); err == nil {
			removed++
		}
	}
	return removed
}

// expired сообщает, старше ли файл ResultRetention.
func (q *Queue) expired(entry os.DirEntry) bool {
	info, err := entry.Info()
	return err == nil && time.Since(info.ModTime()) >= q.resultRetention
}
