package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowrun/internal/domain"
)

// NewSubmitCmd создаёт команду постановки задачи в очередь.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var kind string
	var code string
	var codeFile string
	var input string
	var id string
	var noWait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job to the queue and wait for its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if code == "" && codeFile == "" {
				return fmt.Errorf("either --code or --code-file is required")
			}
			if !domain.NodeKind(kind).IsValid() || domain.NodeKind(kind).IsControl() {
				return fmt.Errorf("unsupported job type %q", kind)
			}

			in, err := ParseInput(input)
			if err != nil {
				return err
			}

			basePath, err := os.Getwd()
			if err != nil {
				return err
			}

			job := &domain.Job{
				ID:                id,
				Kind:              domain.NodeKind(kind),
				Code:              code,
				CodeFilePath:      codeFile,
				Input:             in,
				BasePath:          basePath,
				DontWaitForOutput: noWait,
				TimeoutMs:         timeout.Milliseconds(),
			}

			jobID, result, err := client.Submit(cmd.Context(), job, !noWait, timeout)
			if err != nil {
				return err
			}

			if result == nil {
				out.Success(fmt.Sprintf("Job submitted: %s", jobID))
			}
			out.Result(jobID, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "type", string(domain.KindJavaScript), "Job type (javascript, python, node, shell, powershell)")
	cmd.Flags().StringVar(&code, "code", "", "Inline code")
	cmd.Flags().StringVar(&codeFile, "code-file", "", "Path to a code file")
	cmd.Flags().StringVar(&input, "input", "", "Job input as JSON")
	cmd.Flags().StringVar(&id, "id", "", "Job ID (generated if empty)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Do not wait for the result")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Job timeout (default: --node-timeout)")

	return cmd
}

// NewStopCmd создаёт команду остановки задачи.
func NewStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop JOB_ID",
		Short: "Request termination of a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.StopJob(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Stop requested: %s", args[0]))
			return nil
		},
	}
}
