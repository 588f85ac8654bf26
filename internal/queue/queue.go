package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shaiso/flowrun/internal/backend"
	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/process"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval     = 200 * time.Millisecond
	defaultMaxPollInterval  = 2 * time.Second
	defaultStopPollInterval = 500 * time.Millisecond
	defaultMaxConcurrent    = 8
	defaultTimeout          = 24 * time.Hour
	defaultResultRetention  = time.Hour
	defaultStaleClaimAfter  = 10 * time.Minute
	maxHeartbeatInterval    = 30 * time.Second
	defaultSweepInterval    = time.Minute
)

// Config — конфигурация Queue.
type Config struct {
	// Root — рабочая директория; inbox/ и outbox/ создаются внутри.
	Root string

	// PollInterval — базовый интервал опроса (default: 200ms).
	PollInterval time.Duration

	// MaxPollInterval — верхняя граница backoff опроса (default: 2s).
	MaxPollInterval time.Duration

	// StopPollInterval — интервал проверки stop-маркера выполняемой задачи (default: 500ms).
	StopPollInterval time.Duration

	// MaxConcurrent — лимит одновременно выполняемых задач (default: 8).
	MaxConcurrent int

	// DefaultTimeout — таймаут задачи без собственного timeout (default: 24h).
	DefaultTimeout time.Duration

	// ResultRetention — возраст, после которого невостребованный результат удаляется (default: 1h).
	ResultRetention time.Duration

	// StaleClaimAfter — возраст захваченной задачи, после которого
	// при старте она возвращается в очередь (default: 10m).
	// Пока задача выполняется, worker обновляет mtime захваченного файла
	// чаще этого интервала.
	StaleClaimAfter time.Duration

	// Processes — реестр процессов (опционально; если nil — создаётся новый).
	Processes *process.Manager

	// Registry — backend'ы по типу узла (опционально; если nil — backend.NewRegistry).
	Registry *backend.Registry

	// Logger
	Logger *slog.Logger
}

// Queue — файловая очередь задач.
//
// Одна и та же Queue служит и отправителем (Submit, Await, StopJob),
// и worker'ом (Start/Stop). Отправитель и worker могут жить в разных
// процессах, если у них общий Root: весь обмен идёт через файлы.
//
//	<root>/inbox/<id>.json         — задача в очереди
//	<root>/inbox/<id>.processing   — задача захвачена worker'ом
//	<root>/inbox/<id>.stop         — запрос остановки
//	<root>/outbox/<id>.result.json — результат
type Queue struct {
	root   string
	inbox  string
	outbox string

	pollInterval     time.Duration
	maxPollInterval  time.Duration
	stopPollInterval time.Duration
	defaultTimeout   time.Duration
	resultRetention  time.Duration
	staleClaimAfter  time.Duration
	heartbeat        time.Duration

	procs    *process.Manager
	registry *backend.Registry
	sem      *semaphore.Weighted

	inboxEvents  *dirWatcher
	outboxEvents *dirWatcher

	// Lifecycle
	logger     *slog.Logger
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	loopDone   chan struct{}
	jobs       sync.WaitGroup
}

// New создаёт Queue и директории inbox/outbox.
func New(cfg Config) (*Queue, error) {
	if cfg.Root == "" {
		return nil, ErrNoRoot
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = max(defaultMaxPollInterval, cfg.PollInterval)
	}
	if cfg.StopPollInterval <= 0 {
		cfg.StopPollInterval = defaultStopPollInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.ResultRetention <= 0 {
		cfg.ResultRetention = defaultResultRetention
	}
	if cfg.StaleClaimAfter <= 0 {
		cfg.StaleClaimAfter = defaultStaleClaimAfter
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	procs := cfg.Processes
	if procs == nil {
		procs = process.NewManager(logger)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = backend.NewRegistry(procs)
	}

	q := &Queue{
		root:             root,
		inbox:            filepath.Join(root, "inbox"),
		outbox:           filepath.Join(root, "outbox"),
		pollInterval:     cfg.PollInterval,
		maxPollInterval:  cfg.MaxPollInterval,
		stopPollInterval: cfg.StopPollInterval,
		defaultTimeout:   cfg.DefaultTimeout,
		resultRetention:  cfg.ResultRetention,
		staleClaimAfter:  cfg.StaleClaimAfter,
		heartbeat:        max(min(cfg.StaleClaimAfter/4, maxHeartbeatInterval), time.Millisecond),
		procs:            procs,
		registry:         registry,
		sem:              semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:           logger,
	}

	for _, dir := range []string{q.inbox, q.outbox} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	q.inboxEvents = newDirWatcher(q.inbox, logger)
	q.outboxEvents = newDirWatcher(q.outbox, logger)

	return q, nil
}

// Root возвращает рабочую директорию.
func (q *Queue) Root() string {
	return q.root
}

// Processes возвращает реестр процессов worker'а.
func (q *Queue) Processes() *process.Manager {
	return q.procs
}

// Registry возвращает backend'ы worker'а.
func (q *Queue) Registry() *backend.Registry {
	return q.registry
}

// Submit ставит задачу в очередь: атомарно пишет inbox/<id>.json.
// Пустой ID заменяется новым uuid.
func (q *Queue) Submit(ctx context.Context, job *domain.Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := validateID(job.ID); err != nil {
		return "", err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	if err := writeJSONAtomic(q.jobPath(job.ID), job); err != nil {
		return "", fmt.Errorf("submit job %s: %w", job.ID, err)
	}

	telemetry.JobsSubmitted.Inc()
	telemetry.WithJobID(q.logger, job.ID).Debug("job submitted",
		"kind", job.Kind,
		"node_id", job.NodeID,
		"dont_wait", job.DontWaitForOutput,
	)

	return job.ID, nil
}

// StopJob запрашивает остановку задачи: создаёт пустой inbox/<id>.stop.
//
// Ещё не начатая задача завершится без запуска процесса, выполняемая
// будет убита вместе с дочерними процессами. В обоих случаях
// результатом будет ошибка "Process terminated by user".
func (q *Queue) StopJob(jobID string) error {
	if err := validateID(jobID); err != nil {
		return err
	}
	if err := os.WriteFile(q.stopPath(jobID), nil, 0o644); err != nil {
		return fmt.Errorf("write stop marker: %w", err)
	}
	telemetry.WithJobID(q.logger, jobID).Info("stop requested")
	return nil
}

// Close останавливает worker (если запущен) и наблюдение за директориями.
func (q *Queue) Close() error {
	q.Stop()
	_ = q.inboxEvents.Close()
	return q.outboxEvents.Close()
}
