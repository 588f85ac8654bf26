// flowrun-worker — отдельный worker файловой очереди.
//
// Worker:
//   - Забирает задачи из <root>/inbox атомарным rename
//   - Исполняет код узла backend'ом (javascript, python, node, shell, powershell)
//   - Следит за stop-маркерами и таймаутами, убивает деревья процессов
//   - Пишет результат в <root>/outbox
//   - Отдаёт HTTP API: /api/v1/jobs, /api/v1/runs, /healthz, /metrics
//
// Несколько worker'ов могут обслуживать один root.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/flowrun/internal/api"
	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/queue"
	"github.com/shaiso/flowrun/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting flowrun-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := os.Getenv("FLOWRUN_ROOT")
	if root == "" {
		root = ".flowrun"
	}

	maxConcurrent := 0
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			logger.Error("invalid WORKER_CONCURRENCY", "value", v, "error", err)
			os.Exit(1)
		}
		maxConcurrent = n
	}

	q, err := queue.New(queue.Config{
		Root:          root,
		MaxConcurrent: maxConcurrent,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to open queue", "root", root, "error", err)
		os.Exit(1)
	}
	defer q.Close()

	// Запускаем worker
	if err := q.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Движок для POST /api/v1/runs: узлы исполняет этот же worker
	eng := engine.New(engine.Config{Submitter: q, Logger: logger})

	// HTTP mux: /healthz + /metrics + API
	mux := http.NewServeMux()
	api.NewHandler(api.Config{Queue: q, Engine: eng, Logger: logger}).RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker: выполняемые задачи дорабатывают
	q.Stop()
	logger.Info("flowrun-worker stopped")
}
