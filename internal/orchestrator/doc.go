// Package orchestrator следит за жизненным циклом асинхронных runs.
//
// Orchestrator отвечает за:
//   - Восстановление runs, застрявших в running после потери воркера:
//     такие runs переводятся в failed (InternalError) и публикуются как run.finished
//   - Сбор статистики по завершённым runs из очереди runs.finished
//
// Выполнением узлов занимается worker; orchestrator не исполняет документы
// и может работать в единственном экземпляре или в нескольких (строки
// захватываются с SKIP LOCKED).
package orchestrator
