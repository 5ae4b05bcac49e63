// Package api содержит HTTP API Graphflow.
//
// Структура:
//   - handler.go          — Handler и его зависимости
//   - routes.go           — регистрация маршрутов v1 и совместимых маршрутов UI
//   - middleware.go       — recovery, logging, лимит тела, CORS
//   - response.go         — JSON-конверты ответов и ошибок
//   - dto.go              — запросы и ответы
//   - workflow_handler.go — /api/v1/workflows: validate, create, delete, execute
//   - run_handler.go      — асинхронные runs и их отмена
//   - legacy_handler.go   — /execute-workflow, /execute-workflow-by-id, /create-workflow
//
// Синхронное выполнение всегда отвечает 200 с ExecutionResponse, даже если
// run завершился failed или aborted; 400 означает, что документ не прошёл валидацию.
// Тело больше MaxBodyBytes отклоняется с 413.
package api
