package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/scheduler"
)

// NewScheduleCmd создаёт команду периодического запуска flow.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var cronExpr string
	var intervalSec int
	var timezone string
	var input string

	cmd := &cobra.Command{
		Use:   "schedule FLOW.json",
		Short: "Run a flow periodically until interrupted",
		Long: `Run a flow on a cron expression or a fixed interval.

Examples:
  flowrun schedule report.json --cron "0 9 * * 1-5" --timezone Europe/Moscow
  flowrun schedule poll.json --cron "@every 30s"
  flowrun schedule poll.json --interval 60`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			in, err := ParseInput(input)
			if err != nil {
				return err
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(path)
			}

			sched := &domain.Schedule{
				Name:        name,
				FlowPath:    path,
				CronExpr:    cronExpr,
				IntervalSec: intervalSec,
				Timezone:    timezone,
				Enabled:     true,
				Input:       in,
			}

			q, err := client.OpenQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			if err := q.Start(cmd.Context()); err != nil {
				return err
			}

			s := scheduler.New(scheduler.Config{
				Runner: client.Engine(q),
				Logger: client.cfg.Logger,
			})
			if err := s.Add(sched); err != nil {
				return err
			}

			interval := ""
			if sched.IntervalSec > 0 {
				interval = strconv.Itoa(sched.IntervalSec) + "s"
			}
			out.Success(fmt.Sprintf("Schedule started: %s", sched.Name))
			out.Print(
				[]string{"NAME", "FLOW", "CRON", "INTERVAL", "TIMEZONE", "NEXT_DUE"},
				[][]string{{
					sched.Name, sched.FlowPath, sched.CronExpr, interval,
					sched.Timezone, sched.NextDueAt.Format("2006-01-02 15:04:05Z07:00"),
				}},
				sched,
			)

			return s.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Schedule name (default: file name)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression, e.g. \"0 9 * * *\" or \"@every 1m\"")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "Interval in seconds (used if --cron is empty)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Timezone for cron expressions")
	cmd.Flags().StringVar(&input, "input", "", "External input as JSON for every run")

	return cmd
}
