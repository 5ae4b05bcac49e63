package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Graphflow/internal/config"
	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/engine"
	"github.com/shaiso/Graphflow/internal/runner"
	"github.com/shaiso/Graphflow/internal/steps"
	"github.com/shaiso/Graphflow/internal/store"
	"github.com/shaiso/Graphflow/internal/telemetry"
)

// ValidationDetails форматирует ошибку валидации для вывода.
func ValidationDetails(err error) string {
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msg := string(ve.Kind) + ": " + ve.Message
	if ve.NodeID != "" {
		msg += " [node " + ve.NodeID
		if ve.Field != "" {
			msg += ", field " + ve.Field
		}
		msg += "]"
	}
	return msg
}

// NewValidateCmd создаёт команду локальной проверки документа.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	var allowSelfLoops bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow document (JSON or YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			doc, err := LoadWorkflow(args[0])
			if err != nil {
				return err
			}

			wf, err := engine.Validate(doc, engine.ValidateOptions{AllowSelfLoopEdges: allowSelfLoops})
			if err != nil {
				return fmt.Errorf("invalid workflow: %s", ValidationDetails(err))
			}

			for _, w := range wf.Warnings() {
				out.Warn(w)
			}
			out.Success(fmt.Sprintf("Workflow is valid: %d nodes, start %s", wf.Size(), wf.Start().ID))
			if out.JSONMode() {
				out.JSON(ValidateResponse{Valid: true, Workflow: *wf.Document(), Warnings: wf.Warnings()})
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowSelfLoops, "allow-self-loops", false, "Allow edges from a node to itself")

	return cmd
}

// localRunFlags — параметры локального выполнения.
type localRunFlags struct {
	memory         bool
	mongoURI       string
	configPath     string
	maxSteps       int
	timeBudget     time.Duration
	allowSelfLoops bool
	continueOn     []string
	inputs         []string
	verbose        bool
}

// NewRunCmd создаёт команду локального выполнения документа.
//
// Документ выполняется в этом процессе: хранилищем служит MongoDB
// (--mongo-uri или MONGO_URI) либо память процесса (--memory).
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	var f localRunFlags

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a workflow document locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			doc, err := LoadWorkflow(args[0])
			if err != nil {
				return err
			}
			inputs, err := ParseInputs(f.inputs)
			if err != nil {
				return err
			}

			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if f.verbose {
				level = slog.LevelDebug
			}
			logger := telemetry.NewLogger(cmd.ErrOrStderr(), "text", level)

			docs, closeStore, err := openStore(cmd.Context(), f, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			opts := cfg.Effective(domain.ExecutionOptions{
				MaxSteps:               f.maxSteps,
				TimeBudgetMs:           f.timeBudget.Milliseconds(),
				AllowSelfLoopEdges:     f.allowSelfLoops,
				ContinueOnErrorNodeIDs: f.continueOn,
			})

			resp, err := ExecuteLocal(cmd.Context(), LocalConfig{
				Engine: cfg,
				Store:  docs,
				Logger: logger,
			}, doc, opts, inputs)
			if err != nil {
				return fmt.Errorf("invalid workflow: %s", ValidationDetails(err))
			}

			PrintExecution(out, resp)
			if resp.Status != domain.RunStatusCompleted {
				return fmt.Errorf("workflow %s: %s", resp.Status, resp.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&f.memory, "memory", false, "Use an in-memory document store instead of MongoDB")
	cmd.Flags().StringVar(&f.mongoURI, "mongo-uri", "", "MongoDB connection string (default $MONGO_URI)")
	cmd.Flags().StringVar(&f.configPath, "config", os.Getenv(config.EnvConfigPath), "Engine config file (YAML)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "Maximum executed nodes (tightens the configured limit)")
	cmd.Flags().DurationVar(&f.timeBudget, "time-budget", 0, "Wall-clock budget (tightens the configured limit)")
	cmd.Flags().BoolVar(&f.allowSelfLoops, "allow-self-loops", false, "Allow edges from a node to itself")
	cmd.Flags().StringSliceVar(&f.continueOn, "continue-on-error", nil, "Node IDs whose failure follows the error edge")
	cmd.Flags().StringSliceVar(&f.inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log every executed node")

	return cmd
}

func openStore(ctx context.Context, f localRunFlags, cfg *config.EngineConfig, logger *slog.Logger) (store.DocumentStore, func(), error) {
	if f.memory {
		return store.NewMemoryStore(), func() {}, nil
	}

	uri := f.mongoURI
	if uri == "" {
		uri = config.GetEnv("MONGO_URI", store.DefaultMongoURI)
	}

	mongoStore, err := store.Connect(ctx, store.MongoConfig{
		URI:     uri,
		Timeout: cfg.StoreTimeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return mongoStore, func() { _ = mongoStore.Close(context.Background()) }, nil
}

// LocalConfig — зависимости локального выполнения.
type LocalConfig struct {
	Engine *config.EngineConfig
	Store  store.DocumentStore
	Logger *slog.Logger
}

// ExecuteLocal проверяет и выполняет документ в текущем процессе.
// Ошибка (*engine.ValidationError) возвращается только для невалидного документа.
func ExecuteLocal(ctx context.Context, cfg LocalConfig, doc *domain.Workflow, opts domain.ExecutionOptions, inputs map[string]any) (*domain.ExecutionResponse, error) {
	if cfg.Engine == nil {
		cfg.Engine = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	wf, err := engine.Validate(doc, engine.ValidateOptions{AllowSelfLoopEdges: opts.AllowSelfLoopEdges})
	if err != nil {
		return nil, err
	}

	r := runner.New(runner.Config{
		Registry:   steps.DefaultRegistry(cfg.Store),
		MaxSteps:   cfg.Engine.MaxSteps,
		TimeBudget: cfg.Engine.TimeBudget(),
		Logger:     cfg.Logger,
	})
	return r.Run(ctx, wf, runner.OptionsFrom(uuid.NewString(), opts, inputs)), nil
}

// PrintExecution выводит trace и итог выполнения.
func PrintExecution(out *Output, resp *domain.ExecutionResponse) {
	if out.JSONMode() {
		out.JSON(resp)
		return
	}

	headers := []string{"STEP", "NODE", "TYPE", "OUTPUT", "DURATION", "ERROR"}
	rows := make([][]string, len(resp.Trace))
	for i, e := range resp.Trace {
		errMsg := ""
		if e.Error != nil {
			errMsg = e.Error.Error()
		}
		rows[i] = []string{
			strconv.Itoa(e.Step),
			e.NodeID,
			e.Type.String(),
			e.OutputLabel,
			strconv.FormatInt(e.DurationMs, 10) + "ms",
			errMsg,
		}
	}
	out.Table(headers, rows)

	for _, w := range resp.Warnings {
		out.Warn(w)
	}
	msg := fmt.Sprintf("Run %s: %s (%d steps, %dms)", resp.RunID, resp.Status, resp.Steps, resp.DurationMs)
	if resp.Error != nil {
		msg += " - " + resp.Error.Error()
	}
	out.Success(msg)
}
