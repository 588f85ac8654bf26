package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWorkerCmd создаёт команду запуска отдельного worker'а очереди.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			q, err := client.OpenQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			if err := q.Start(cmd.Context()); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Worker started: %s", q.Root()))

			<-cmd.Context().Done()
			return nil
		},
	}
}
