package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// ErrAlreadyRunning — задача с таким ID уже выполняется.
var ErrAlreadyRunning = errors.New("job already running")

// pipeWaitDelay — сколько Run ждёт закрытия stdout/stderr после выхода
// основного процесса. Фоновые потомки держат каналы открытыми.
const pipeWaitDelay = 500 * time.Millisecond

// entry — запись реестра для одной задачи.
type entry struct {
	cancel context.CancelCauseFunc
	timer  *time.Timer

	mu  sync.Mutex
	pid int
}

// Manager — реестр выполняющихся задач по job ID.
//
// Manager отвечает за:
//   - Регистрацию задачи и её контекст с причиной отмены (Track)
//   - Запуск внешнего процесса в собственной группе процессов (Run)
//   - Таймаут задачи и stop-маркер (Watch)
//   - Завершение всего дерева процессов (Kill)
//
// Каждая очередь владеет своим Manager'ом, глобального состояния нет.
// Удаление записи безопасно вызывать повторно: завершение процесса
// и watchdog stop-маркера могут гоняться друг с другом.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
}

// NewManager создаёт пустой реестр.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Track регистрирует задачу и возвращает её контекст.
//
// Контекст отменяется с причиной domain.ErrTimedOut по истечении timeout
// (timeout <= 0 — без ограничения) или с причиной, переданной в Kill.
// release обязательно вызывать по завершении задачи; повторный вызов безопасен.
func (m *Manager) Track(parent context.Context, jobID string, timeout time.Duration) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[jobID]; exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, jobID)
	}

	ctx, cancel := context.WithCancelCause(parent)
	e := &entry{cancel: cancel}
	m.entries[jobID] = e

	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			m.Kill(jobID, domain.ErrTimedOut)
		})
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if e.timer != nil {
				e.timer.Stop()
			}
			m.remove(jobID, e)
			cancel(nil)
		})
	}

	return ctx, release, nil
}

// remove удаляет запись, только если она всё ещё принадлежит этой задаче.
func (m *Manager) remove(jobID string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.entries[jobID]; ok && cur == e {
		delete(m.entries, jobID)
	}
}

// Kill отменяет задачу с указанной причиной.
//
// Запущенный через Run процесс и всё его дерево будут убиты.
// Запись удаляется из реестра сразу. Возвращает false, если задача
// не зарегистрирована (уже завершилась или выполняется в другом процессе).
func (m *Manager) Kill(jobID string, cause error) bool {
	m.mu.Lock()
	e, ok := m.entries[jobID]
	if ok {
		delete(m.entries, jobID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	if e.timer != nil {
		e.timer.Stop()
	}

	m.logger.Info("killing job",
		"job_id", jobID,
		"reason", cause,
	)
	telemetry.ProcessesKilled.WithLabelValues(reasonLabel(cause)).Inc()

	e.cancel(cause)
	return true
}

// Run запускает cmd в собственной группе процессов и ждёт завершения.
//
// При отмене ctx убивается всё дерево процессов, а возвращается
// context.Cause(ctx). Ошибка kill только логируется: ожидание
// процесса и очистка продолжаются в любом случае.
//
// После выхода основного процесса оставшиеся в его группе потомки
// убиваются, а каналы вывода закрываются не позже чем через pipeWaitDelay.
//
// Возвращает код выхода процесса. Ненулевой код ошибкой не считается.
func (m *Manager) Run(ctx context.Context, jobID string, cmd *exec.Cmd) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, context.Cause(ctx)
	}

	setProcessGroup(cmd)
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = pipeWaitDelay
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start process: %w", err)
	}

	pid := cmd.Process.Pid
	m.attach(jobID, pid)

	m.logger.Debug("process started",
		"job_id", jobID,
		"pid", pid,
		"path", cmd.Path,
	)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if err := killTree(pid); err != nil {
			m.logger.Warn("failed to kill process tree",
				"job_id", jobID,
				"pid", pid,
				"error", err,
			)
		}
		<-done
		return -1, context.Cause(ctx)
	case err := <-done:
		if kerr := killTree(pid); kerr != nil {
			m.logger.Debug("failed to kill leftover processes",
				"job_id", jobID,
				"pid", pid,
				"error", kerr,
			)
		}
		return exitCode(err)
	}
}

// attach сохраняет PID процесса в записи задачи.
func (m *Manager) attach(jobID string, pid int) {
	m.mu.Lock()
	e, ok := m.entries[jobID]
	m.mu.Unlock()

	if !ok {
		return
	}
	e.mu.Lock()
	e.pid = pid
	e.mu.Unlock()
}

// PID возвращает PID процесса задачи (0 — процесс не запущен или задача неизвестна).
func (m *Manager) PID(jobID string) int {
	m.mu.Lock()
	e, ok := m.entries[jobID]
	m.mu.Unlock()

	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pid
}

// Watch следит за stop-маркером задачи.
//
// Каждые interval проверяет существование markerPath; при появлении
// убивает задачу с причиной domain.ErrTerminatedByUser и удаляет маркер.
// Завершается вместе с ctx — обычно это контекст задачи из Track.
func (m *Manager) Watch(ctx context.Context, jobID, markerPath string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(markerPath); err != nil {
				continue
			}
			m.logger.Info("stop marker detected", "job_id", jobID)
			m.Kill(jobID, domain.ErrTerminatedByUser)
			RemoveQuietly(markerPath)
			return
		}
	}
}

// Running возвращает отсортированные ID выполняющихся задач.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveQuietly удаляет файл, игнорируя его отсутствие.
// Маркер и временные файлы могут удаляться одновременно из нескольких мест.
func RemoveQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Debug("remove failed", "path", path, "error", err)
	}
}

// exitCode извлекает код выхода из ошибки cmd.Wait().
func exitCode(err error) (int, error) {
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait process: %w", err)
}

// reasonLabel — значение label reason для метрики ProcessesKilled.
func reasonLabel(cause error) string {
	switch {
	case errors.Is(cause, domain.ErrTerminatedByUser):
		return "user"
	case errors.Is(cause, domain.ErrTimedOut):
		return "timeout"
	default:
		return "other"
	}
}
