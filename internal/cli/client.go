package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/queue"
)

// ClientConfig — параметры Client, заполняемые из флагов.
type ClientConfig struct {
	// Root — рабочая директория очереди (inbox/, outbox/).
	Root string

	// NodeTimeout — таймаут узла без собственного timeout.
	NodeTimeout time.Duration

	// StepBudget — лимит шагов обхода.
	StepBudget int

	// Concurrency — лимит одновременно выполняемых задач worker'а.
	Concurrency int

	// Logger
	Logger *slog.Logger
}

// Client — доступ к очереди и движку в рабочей директории.
//
// Команды не держат долгоживущих соединений: каждая открывает
// Queue над общей директорией, поэтому run, submit и stop
// из разных процессов видят одни и те же файлы.
type Client struct {
	cfg ClientConfig
}

// NewClient создаёт клиент.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{cfg: cfg}
}

// OpenQueue открывает очередь в Root.
func (c *Client) OpenQueue() (*queue.Queue, error) {
	return queue.New(queue.Config{
		Root:           c.cfg.Root,
		MaxConcurrent:  c.cfg.Concurrency,
		DefaultTimeout: c.cfg.NodeTimeout,
		Logger:         c.cfg.Logger,
	})
}

// Engine создаёт движок поверх очереди.
func (c *Client) Engine(q *queue.Queue) *engine.Engine {
	return engine.New(engine.Config{
		Submitter:   q,
		StepBudget:  c.cfg.StepBudget,
		NodeTimeout: c.cfg.NodeTimeout,
		Logger:      c.cfg.Logger,
	})
}

// RunFlow выполняет flow-документ.
//
// С withWorker=true задачи узлов исполняет worker в этом же процессе;
// иначе их должен забрать отдельный `flowrun worker` с тем же Root.
// Worker останавливается после завершения обхода.
func (c *Client) RunFlow(ctx context.Context, path string, input any, withWorker bool) (*engine.Report, error) {
	q, err := c.OpenQueue()
	if err != nil {
		return nil, err
	}
	defer q.Close()

	eng := c.Engine(q)
	if !withWorker {
		return eng.Run(ctx, path, input)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if err := q.Start(runCtx); err != nil {
		return nil, err
	}

	var report *engine.Report
	g.Go(func() error {
		defer cancel()
		var runErr error
		report, runErr = eng.Run(runCtx, path, input)
		return runErr
	})
	g.Go(func() error {
		<-runCtx.Done()
		q.Stop()
		return nil
	})

	err = g.Wait()
	return report, err
}

// Validate загружает документ, проверяет источники кода
// и возвращает индекс графа с точкой входа.
func (c *Client) Validate(path string) (*engine.Graph, string, error) {
	doc, err := engine.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	if err := engine.CheckSources(doc); err != nil {
		return nil, "", err
	}

	g, err := engine.BuildGraph(doc)
	if err != nil {
		return nil, "", err
	}
	entry, err := engine.ResolveEntry(g, c.cfg.Logger)
	if err != nil {
		return nil, "", err
	}
	return g, entry, nil
}

// Submit ставит задачу в очередь. Если wait=true, ждёт результат
// не дольше timeout (0 — таймаут задачи или NodeTimeout).
func (c *Client) Submit(ctx context.Context, job *domain.Job, wait bool, timeout time.Duration) (string, *domain.Result, error) {
	q, err := c.OpenQueue()
	if err != nil {
		return "", nil, err
	}
	defer q.Close()

	id, err := q.Submit(ctx, job)
	if err != nil {
		return "", nil, err
	}
	if !wait {
		return id, nil, nil
	}

	if timeout <= 0 {
		timeout = job.Timeout(c.cfg.NodeTimeout)
	}
	result, err := q.Await(ctx, id, timeout)
	return id, result, err
}

// StopJob пишет stop-маркер задачи.
func (c *Client) StopJob(id string) error {
	q, err := c.OpenQueue()
	if err != nil {
		return err
	}
	defer q.Close()
	return q.StopJob(id)
}

// ParseInput разбирает значение флага --input.
// Пустая строка — nil, валидный JSON декодируется,
// остальное передаётся как строка.
func ParseInput(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return raw, nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return v, nil
}
