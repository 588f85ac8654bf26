// flowrun-scheduler — запускает flow-документы по расписаниям из файла.
//
// Расписания читаются из FLOWRUN_SCHEDULES (JSON-массив). Узлы flow
// исполняет worker в этом же процессе; с SCHED_EXTERNAL_WORKER=1 задачи
// остаются в очереди для отдельного flowrun-worker с тем же FLOWRUN_ROOT.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/queue"
	"github.com/shaiso/flowrun/internal/scheduler"
	"github.com/shaiso/flowrun/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting flowrun-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	schedulesPath := os.Getenv("FLOWRUN_SCHEDULES")
	if schedulesPath == "" {
		schedulesPath = "schedules.json"
	}

	schedules, err := scheduler.LoadFile(schedulesPath)
	if err != nil {
		logger.Error("failed to load schedules", "path", schedulesPath, "error", err)
		os.Exit(1)
	}

	root := os.Getenv("FLOWRUN_ROOT")
	if root == "" {
		root = ".flowrun"
	}

	q, err := queue.New(queue.Config{Root: root, Logger: logger})
	if err != nil {
		logger.Error("failed to open queue", "root", root, "error", err)
		os.Exit(1)
	}
	defer q.Close()

	if os.Getenv("SCHED_EXTERNAL_WORKER") != "1" {
		if err := q.Start(ctx); err != nil {
			logger.Error("failed to start worker", "error", err)
			os.Exit(1)
		}
	}

	sched := scheduler.New(scheduler.Config{
		Runner: engine.New(engine.Config{Submitter: q, Logger: logger}),
		Logger: logger,
	})
	for _, s := range schedules {
		if err := sched.Add(s); err != nil {
			logger.Error("failed to add schedule", "schedule_name", s.Name, "error", err)
			os.Exit(1)
		}
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Блокирует до сигнала завершения
	_ = sched.Run(ctx)

	q.Stop()
	logger.Info("flowrun-scheduler stopped")
}
