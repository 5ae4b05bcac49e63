// Package runner выполняет проверенный workflow.
//
// Walker начинает с узла start и на каждом шаге:
//
//  1. проверяет границы: отмена, лимит шагов, бюджет времени
//  2. снимает snapshot scope и вызывает исполнитель узла
//  3. применяет Delta к scope и записывает шаг в trace
//  4. выбирает ребро по выданной метке
//
// Нет подходящего ребра — run завершён (completed). Больше одного — failed
// с AmbiguousBranch. Ошибка узла без continue-on-error — failed.
// Превышение лимитов или отмена — aborted; проверка выполняется только
// между узлами, исполнитель всегда доводится до конца.
//
// Состояния walker'а:
//
//	Ready → Running ⇄ Branching → Completed
//	           ↓           ↓
//	     Failed/Aborted  Failed
package runner
