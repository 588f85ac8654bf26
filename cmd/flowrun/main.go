// flowrun — инструмент командной строки для выполнения flow-документов.
//
// Использование:
//
//	flowrun [--root DIR] [--json] [--log-level LEVEL] <command> [flags]
//
// Команды:
//
//	run       Выполнить flow-документ
//	validate  Проверить flow-документ
//	worker    Обрабатывать очередь задач
//	submit    Поставить задачу в очередь
//	stop      Остановить задачу
//	schedule  Запускать flow по расписанию
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowrun/internal/cli"
	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var root string
	var jsonOutput bool
	var logLevel string
	var logFormat string
	var nodeTimeout time.Duration
	var stepBudget int
	var concurrency int

	rootCmd := &cobra.Command{
		Use:           "flowrun",
		Short:         "flowrun — flow document execution engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultRoot := os.Getenv("FLOWRUN_ROOT")
	if defaultRoot == "" {
		defaultRoot = ".flowrun"
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&root, "root", defaultRoot, "Queue directory shared with workers (env FLOWRUN_ROOT)")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Log level: DEBUG, INFO, WARN, ERROR")
	flags.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	flags.DurationVar(&nodeTimeout, "node-timeout", engine.DefaultNodeTimeout, "Timeout for nodes without their own timeout")
	flags.IntVar(&stepBudget, "step-budget", engine.DefaultStepBudget, "Maximum traversal steps per run")
	flags.IntVar(&concurrency, "concurrency", 0, "Maximum concurrently executing jobs (default: 8)")

	clientFn := func() *cli.Client {
		logger := telemetry.NewLogger(os.Stderr, telemetry.ParseLevel(logLevel), logFormat)
		return cli.NewClient(cli.ClientConfig{
			Root:        root,
			NodeTimeout: nodeTimeout,
			StepBudget:  stepBudget,
			Concurrency: concurrency,
			Logger:      logger,
		})
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewValidateCmd(clientFn, outputFn),
		cli.NewWorkerCmd(clientFn, outputFn),
		cli.NewSubmitCmd(clientFn, outputFn),
		cli.NewStopCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
