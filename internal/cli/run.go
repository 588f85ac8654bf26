package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт команду запуска flow.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var input string
	var external bool

	cmd := &cobra.Command{
		Use:   "run FLOW.json",
		Short: "Run a flow document",
		Long: `Run a flow document and print its report.

Executable nodes are processed by a worker started in this process.
With --external-worker jobs are left for a separate "flowrun worker"
sharing the same --root.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			in, err := ParseInput(input)
			if err != nil {
				return err
			}

			report, runErr := client.RunFlow(cmd.Context(), args[0], in, !external)
			if report != nil {
				out.Report(report, runErr)
			}
			if runErr != nil {
				return fmt.Errorf("run %s: %w", args[0], runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "External input as JSON (plain text is passed as a string)")
	cmd.Flags().BoolVar(&external, "external-worker", false, "Do not start an in-process worker")

	return cmd
}

// NewValidateCmd создаёт команду проверки flow-документа.
func NewValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FLOW.json",
		Short: "Validate a flow document and print its entry node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			g, entry, err := client.Validate(args[0])
			if err != nil {
				return err
			}

			doc := g.Doc
			entryKind := doc.NodeByID(entry).Kind
			out.Success(fmt.Sprintf("Flow is valid: %s", doc.Path))
			out.Print(
				[]string{"PATH", "NODES", "EDGES", "ENTRY", "KIND", "ORDER"},
				[][]string{{
					doc.Path, fmt.Sprint(len(doc.Nodes)), fmt.Sprint(len(doc.Edges)),
					entry, string(entryKind), strings.Join(g.Order, ","),
				}},
				map[string]any{
					"path":       doc.Path,
					"nodes":      len(doc.Nodes),
					"edges":      len(doc.Edges),
					"entry":      entry,
					"entry_kind": entryKind,
					"order":      g.Order,
				},
			)
			return nil
		},
	}
}
