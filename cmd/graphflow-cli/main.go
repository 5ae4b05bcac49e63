// Graphflow CLI — инструмент командной строки для проверки и выполнения
// workflow локально и через HTTP API.
//
// Использование:
//
//	graphflow [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	validate    Проверить документ локально
//	run         Выполнить документ локально
//	workflow    Управление сохранёнными документами
//	runs        Список runs
//	run-status  Статус run
//	cancel      Отмена run
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Graphflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "graphflow",
		Short:         "Graphflow CLI — workflow graph execution tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("GRAPHFLOW_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewValidateCmd(outputFn),
		cli.NewRunCmd(outputFn),
		cli.NewWorkflowCmd(clientFn, outputFn),
		cli.NewRunsCmd(clientFn, outputFn),
		cli.NewRunStatusCmd(clientFn, outputFn),
		cli.NewCancelCmd(clientFn, outputFn),
	)

	// Ctrl-C отменяет локальный run на ближайшей границе шага
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
