package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Graphflow/internal/domain"
)

// NewWorkflowCmd создаёт группу команд для сохранённых документов.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage stored workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowExecuteCmd(clientFn, outputFn),
		newWorkflowSubmitCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			items, err := client.ListWorkflows(limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "NODES", "EDGES", "CREATED"}
			rows := make([][]string, len(items))
			for i, w := range items {
				rows[i] = []string{w.ID, w.Name, strconv.Itoa(w.Nodes), strconv.Itoa(w.Edges), w.CreatedAt}
			}

			out.Print(headers, rows, items)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "create FILE",
		Short: "Validate and store a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := LoadWorkflow(args[0])
			if err != nil {
				return err
			}

			wf, err := client.CreateWorkflow(doc)
			if err != nil {
				return err
			}

			for _, w := range wf.Warnings {
				out.Warn(w)
			}
			out.Success(fmt.Sprintf("Workflow created: %s", wf.ID))
			out.Print(
				[]string{"ID", "NAME", "NODES", "EDGES", "CREATED"},
				[][]string{{wf.ID, wf.Name, strconv.Itoa(len(wf.Document.Nodes)), strconv.Itoa(len(wf.Document.Edges)), wf.CreatedAt}},
				wf,
			)
			return nil
		},
	}
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteWorkflow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow deleted: %s", args[0]))
			return nil
		},
	}
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a stored workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(wf)
				return nil
			}

			out.Success(fmt.Sprintf("Workflow %s (%s), created %s", wf.ID, wf.Name, wf.CreatedAt))
			out.Table([]string{"NODE", "TYPE"}, nodeRows(wf.Document))

			edges := make([][]string, len(wf.Document.Edges))
			for i, e := range wf.Document.Edges {
				edges[i] = []string{e.From, e.To, e.Label()}
			}
			out.Table([]string{"FROM", "TO", "OUTPUT"}, edges)
			return nil
		},
	}
}

func nodeRows(doc domain.Workflow) [][]string {
	rows := make([][]string, len(doc.Nodes))
	for i, n := range doc.Nodes {
		rows[i] = []string{n.ID, n.Type.String()}
	}
	return rows
}

// runRequestFlags — общие флаги execute и submit.
type runRequestFlags struct {
	inputs     []string
	maxSteps   int
	timeBudget int64
	continueOn []string
}

func (f *runRequestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "Maximum executed nodes (tightens the server limit)")
	cmd.Flags().Int64Var(&f.timeBudget, "time-budget-ms", 0, "Wall-clock budget in milliseconds (tightens the server limit)")
	cmd.Flags().StringSliceVar(&f.continueOn, "continue-on-error", nil, "Node IDs whose failure follows the error edge")
}

func (f *runRequestFlags) request() (RunRequest, error) {
	inputs, err := ParseInputs(f.inputs)
	if err != nil {
		return RunRequest{}, err
	}
	return RunRequest{
		Inputs: inputs,
		Options: domain.ExecutionOptions{
			MaxSteps:               f.maxSteps,
			TimeBudgetMs:           f.timeBudget,
			ContinueOnErrorNodeIDs: f.continueOn,
		},
	}, nil
}

func newWorkflowExecuteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var f runRequestFlags

	cmd := &cobra.Command{
		Use:   "execute ID",
		Short: "Execute a stored workflow and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req, err := f.request()
			if err != nil {
				return err
			}

			resp, err := client.ExecuteByID(args[0], req)
			if err != nil {
				return err
			}

			PrintExecution(out, resp)
			if resp.Status != domain.RunStatusCompleted {
				return fmt.Errorf("workflow %s: %s", resp.Status, resp.Error)
			}
			return nil
		},
	}

	f.register(cmd)

	return cmd
}

func newWorkflowSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var f runRequestFlags

	cmd := &cobra.Command{
		Use:   "submit ID",
		Short: "Queue a stored workflow for asynchronous execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req, err := f.request()
			if err != nil {
				return err
			}

			run, err := client.CreateRun(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run queued: %s", run.ID))
			out.Print(runHeaders, [][]string{runRow(*run)}, run)
			return nil
		},
	}

	f.register(cmd)

	return cmd
}
