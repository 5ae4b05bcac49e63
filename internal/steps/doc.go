// Package steps содержит исполнители узлов workflow.
//
// # Интерфейс Executor
//
//	type Executor interface {
//	    Type() domain.NodeType
//	    Execute(ctx context.Context, req *Request) (*Result, error)
//	}
//
// Request содержит ID узла, типизированный конфиг и scope только на чтение.
// Result содержит метку выбранной ветки, данные для trace и Delta —
// изменения scope, которые walker применит после успешного выполнения.
// Исполнитель никогда не пишет в scope напрямую.
//
// # Типы узлов
//
//   - start          — кладёт initialData в scope, метка default
//   - condition      — сравнивает lhs и rhs, метка true/false
//   - mongodb_insert — вставляет документ, пишет lastInsertedId
//   - mongodb_find   — ищет документы, пишет <outputKey> и <outputKey>Count
//
// Ошибки возвращаются как *NodeError с категорией (TypeMismatch, StoreError, BadConfig).
package steps
