// Package engine содержит модель проверенного workflow.
//
// Включает:
//   - validate.go — проверка документа и сборка неизменяемого Workflow
//   - schema.go   — JSON Schema конфигов узлов
//   - graph.go    — Workflow: узлы, рёбра по меткам, достижимость
//   - scope.go    — упорядоченное хранилище переменных одного run
//   - template.go — подстановка {{ path }} из scope
//
// Engine не выполняет узлы: обход графа живёт в пакете runner,
// исполнители узлов — в пакете steps.
package engine
