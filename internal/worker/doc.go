// Package worker исполняет асинхронные runs.
//
// Worker получает run.pending из RabbitMQ и дополнительно опрашивает БД
// на случай потерянных сообщений. Для каждого run:
//
//  1. атомарно переводит его из pending в running (ClaimPending);
//  2. загружает документ workflow и валидирует его заново;
//  3. регистрирует run в cancel.Registry, чтобы его можно было отменить;
//  4. обходит граф через runner.Runner;
//  5. сохраняет ExecutionResponse и публикует run.finished.
//
// Несколько воркеров безопасно читают одну очередь: run исполняет тот,
// кто первым выполнил ClaimPending.
//
//	w := worker.New(worker.Config{
//	    Runs:      repo.NewRunRepo(pool),
//	    Workflows: repo.NewWorkflowRepo(pool),
//	    Runner:    r,
//	    Cancels:   cancels,
//	    Publisher: publisher,
//	    Conn:      conn,
//	})
//	w.Start(ctx)
//	defer w.Stop()
package worker
