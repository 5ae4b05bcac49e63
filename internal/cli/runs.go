package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runHeaders = []string{"ID", "WORKFLOW_ID", "STATUS", "ERROR", "CREATED"}

func runRow(r RunResponse) []string {
	return []string{r.ID, r.WorkflowID, r.Status, r.Error, r.CreatedAt}
}

// NewRunsCmd создаёт команду списка runs.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.WorkflowID, "workflow-id", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, running, completed, failed, aborted)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

// NewRunStatusCmd создаёт команду просмотра run.
func NewRunStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "run-status ID",
		Short: "Show run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if trace && run.Result != nil && !out.JSONMode() {
				PrintExecution(out, run.Result)
				return nil
			}

			out.Print(runHeaders, [][]string{runRow(*run)}, run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "Print the execution trace of a finished run")

	return cmd
}

// NewCancelCmd создаёт команду отмены run.
func NewCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pending or running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.CancelRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run %s: %s", args[0], status))
			return nil
		},
	}
}
