package api

import (
	"log/slog"

	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/queue"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	queue  *queue.Queue
	engine *engine.Engine
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Queue  *queue.Queue
	Engine *engine.Engine // опционально; без него /runs отвечает 501
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		queue:  cfg.Queue,
		engine: cfg.Engine,
		logger: logger,
	}
}
