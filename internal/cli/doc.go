// Package cli реализует инструмент командной строки Graphflow.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - локально: validate и run проверяют и выполняют документ в своём
//     процессе (engine + runner), хранилище — MongoDB или память;
//   - через API: workflow, runs, run-status и cancel обращаются к
//     graphflow-api по HTTP и не импортируют internal/api.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Graphflow API. Разбирает конверты {"data": ...} и
// {"data": [...], "total": N}; ошибки сервера возвращаются как *APIError,
// для VALIDATION_FAILED с kind, node_id и field.
//
//	client := cli.NewClient("http://localhost:8080")
//	wf, err := client.CreateWorkflow(doc)
//
// ## Загрузка документов
//
// LoadWorkflow читает JSON или YAML (по расширению файла), "-" — stdin.
// ParseInputs разбирает --input KEY=VALUE, значение трактуется как JSON.
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию или JSON с флагом --json.
// Данные выводятся в stdout, сообщения в stderr:
//
//	graphflow runs --status failed --json | jq .
//
// ## Commands
//
//	validate FILE
//	run FILE [--memory] [--mongo-uri URI] [--max-steps N] [--time-budget D]
//	workflow list | create FILE | show ID | delete ID | execute ID | submit ID
//	runs [--workflow-id ID] [--status S]
//	run-status ID [--trace]
//	cancel ID
//
// Команды создаются фабриками, принимающими clientFn и outputFn: Client и
// Output создаются лениво, после разбора PersistentFlags.
package cli
