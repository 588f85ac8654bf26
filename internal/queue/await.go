package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// Await ждёт результат задачи и потребляет его.
//
// Ожидание ведётся по событиям fsnotify в outbox с опросом
// с backoff в качестве страховки. Результат забирается атомарным
// переименованием, поэтому его получает ровно один потребитель.
//
// По истечении timeout (0 — DefaultTimeout) задача убивается, если
// выполняется в этом процессе, в outbox пишется результат
// "Process terminated due to timeout" и возвращается domain.ErrTimedOut.
// Этот результат остаётся в outbox, чтобы поздний результат worker'а
// не был записан; его удаляет Sweep.
//
// При отмене ctx задача останавливается (abandon): результат больше
// никто не ждёт.
func (q *Queue) Await(ctx context.Context, jobID string, timeout time.Duration) (*domain.Result, error) {
	if err := validateID(jobID); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = q.defaultTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	events, unsubscribe := q.outboxEvents.subscribe()
	defer unsubscribe()

	wait := newBackoff(q.pollInterval, q.maxPollInterval)
	poll := time.NewTimer(0)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			q.abandon(jobID)
			return nil, context.Cause(ctx)
		case <-deadline.C:
			return q.expire(jobID)
		case <-events:
			wait.reset()
		case <-poll.C:
		}

		result, err := q.consume(jobID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		resetTimer(poll, wait.next())
	}
}

// TakeResult забирает готовый результат без ожидания.
// Если результата ещё нет, возвращает ErrNoResult.
func (q *Queue) TakeResult(jobID string) (*domain.Result, error) {
	if err := validateID(jobID); err != nil {
		return nil, err
	}
	result, err := q.consume(jobID)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNoResult)
	}
	return result, err
}

// consume забирает результат: rename в приватное имя, чтение, удаление.
// Если результата нет, возвращает ошибку с fs.ErrNotExist.
func (q *Queue) consume(jobID string) (*domain.Result, error) {
	private := q.resultPath(jobID) + "." + uuid.NewString() + consumingSuffix
	if err := os.Rename(q.resultPath(jobID), private); err != nil {
		return nil, err
	}
	defer os.Remove(private)

	data, err := os.ReadFile(private)
	if err != nil {
		return nil, fmt.Errorf("read result %s: %w", jobID, err)
	}

	var result domain.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", jobID, err)
	}
	return &result, nil
}

// abandon останавливает задачу, результат которой больше не ждут.
//
// Задача, выполняемая в этом процессе, убивается сразу. Для задачи,
// ещё не захваченной или выполняемой другим worker'ом, пишется
// stop-маркер. Готовый результат остаётся в outbox до Sweep.
func (q *Queue) abandon(jobID string) {
	logger := telemetry.WithJobID(q.logger, jobID)

	if q.procs.Kill(jobID, domain.ErrTerminatedByUser) {
		logger.Info("job killed, caller stopped waiting")
		return
	}
	if exists(q.resultPath(jobID)) {
		return
	}
	if err := q.StopJob(jobID); err != nil {
		logger.Warn("failed to stop abandoned job", "error", err)
	}
}

// expire обрабатывает таймаут ожидания.
func (q *Queue) expire(jobID string) (*domain.Result, error) {
	logger := telemetry.WithJobID(q.logger, jobID)

	err := writeJSONExclusive(q.resultPath(jobID), &domain.Result{
		ID:    jobID,
		Error: domain.MsgTerminatedTimeout,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrResultExists):
		// Результат появился одновременно с таймаутом.
		if result, cerr := q.consume(jobID); cerr == nil && result.Error != domain.MsgTerminatedTimeout {
			return result, nil
		}
	default:
		logger.Error("failed to write timeout result", "error", err)
	}

	if q.procs.Kill(jobID, domain.ErrTimedOut) {
		logger.Warn("job killed on timeout")
	} else {
		logger.Warn("job timed out")
	}

	return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrTimedOut)
}
