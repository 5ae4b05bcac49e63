package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/mq"
)

// inlineWorkflow — ключ статистики для runs без сохранённого документа.
const inlineWorkflow = "-"

// defaultSeenLimit — сколько последних run_id помнится для отсева повторных доставок.
const defaultSeenLimit = 10000

// WorkflowStats — агрегат по завершённым runs одного workflow.
type WorkflowStats struct {
	WorkflowID string `json:"workflow_id"`

	// Runs — число учтённых runs.
	Runs int `json:"runs"`

	// ByStatus и ByReason — распределение по статусу и причине завершения.
	ByStatus map[string]int `json:"by_status"`
	ByReason map[string]int `json:"by_reason,omitempty"`

	TotalSteps      int   `json:"total_steps"`
	TotalDurationMs int64 `json:"total_duration_ms"`

	LastRunID      uuid.UUID `json:"last_run_id"`
	LastStatus     string    `json:"last_status"`
	LastFinishedAt time.Time `json:"last_finished_at"`
}

// AvgDurationMs возвращает среднюю длительность run.
func (s WorkflowStats) AvgDurationMs() int64 {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalDurationMs / int64(s.Runs)
}

// clone возвращает копию без общих map.
func (s *WorkflowStats) clone() WorkflowStats {
	out := *s
	out.ByStatus = make(map[string]int, len(s.ByStatus))
	for k, v := range s.ByStatus {
		out.ByStatus[k] = v
	}
	if s.ByReason != nil {
		out.ByReason = make(map[string]int, len(s.ByReason))
		for k, v := range s.ByReason {
			out.ByReason[k] = v
		}
	}
	return out
}

// Stats — статистика завершённых runs в памяти процесса.
//
// Повторная доставка одного run.finished не учитывается дважды.
type Stats struct {
	mu         sync.RWMutex
	byWorkflow map[string]*WorkflowStats
	seen       map[uuid.UUID]struct{}
	order      []uuid.UUID
	seenLimit  int
	now        func() time.Time
}

// NewStats создаёт пустую статистику.
func NewStats() *Stats {
	return &Stats{
		byWorkflow: make(map[string]*WorkflowStats),
		seen:       make(map[uuid.UUID]struct{}),
		seenLimit:  defaultSeenLimit,
		now:        time.Now,
	}
}

// Record учитывает завершённый run. Возвращает false для повторов.
func (s *Stats) Record(p mq.RunFinishedPayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[p.RunID]; dup {
		return false
	}
	s.remember(p.RunID)

	key := p.WorkflowID
	if key == "" {
		key = inlineWorkflow
	}

	ws, ok := s.byWorkflow[key]
	if !ok {
		ws = &WorkflowStats{WorkflowID: key, ByStatus: make(map[string]int)}
		s.byWorkflow[key] = ws
	}

	ws.Runs++
	ws.ByStatus[p.Status]++
	if p.Reason != "" {
		if ws.ByReason == nil {
			ws.ByReason = make(map[string]int)
		}
		ws.ByReason[p.Reason]++
	}
	ws.TotalSteps += p.Steps
	ws.TotalDurationMs += p.DurationMs
	ws.LastRunID = p.RunID
	ws.LastStatus = p.Status
	ws.LastFinishedAt = s.now()
	return true
}

// remember запоминает run_id, вытесняя самые старые. Вызывается под mu.
func (s *Stats) remember(id uuid.UUID) {
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.seenLimit {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
}

// Get возвращает статистику workflow.
func (s *Stats) Get(workflowID string) (WorkflowStats, bool) {
	if workflowID == "" {
		workflowID = inlineWorkflow
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, ok := s.byWorkflow[workflowID]
	if !ok {
		return WorkflowStats{}, false
	}
	return ws.clone(), true
}

// All возвращает статистику всех workflow, упорядоченную по ID.
func (s *Stats) All() []WorkflowStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]WorkflowStats, 0, len(s.byWorkflow))
	for _, ws := range s.byWorkflow {
		out = append(out, ws.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out
}
