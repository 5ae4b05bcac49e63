// Package mq связывает API и воркеры Graphflow через RabbitMQ.
//
// API публикует run.pending после постановки асинхронного запуска,
// воркер потребляет runs.pending, исполняет граф и публикует run.finished.
//
// Топология:
//   - graphflow.runs (direct): runs.pending, runs.finished
//   - graphflow.dlq (direct): dlq.runs, сюда уходят отклонённые runs.pending
package mq
