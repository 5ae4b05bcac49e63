package steps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/engine"
)

// ConditionExecutor сравнивает два операнда и выбирает ветку true/false.
type ConditionExecutor struct{}

// NewConditionExecutor создаёт исполнитель узла condition.
func NewConditionExecutor() *ConditionExecutor {
	return &ConditionExecutor{}
}

// Type реализует Executor.
func (e *ConditionExecutor) Type() domain.NodeType {
	return domain.NodeTypeCondition
}

// Execute реализует Executor. Scope не изменяется.
func (e *ConditionExecutor) Execute(_ context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*domain.ConditionConfig](req)
	if err != nil {
		return nil, err
	}

	lhs, lw := engine.Resolve(cfg.LHS, req.Scope)
	rhs, rw := engine.Resolve(cfg.RHS, req.Scope)

	ok, err := Compare(lhs, cfg.Operator, rhs)
	if err != nil {
		kind := KindTypeMismatch
		if !errors.Is(err, ErrTypeMismatch) {
			kind = KindBadConfig
		}
		return nil, &NodeError{Kind: kind, NodeID: req.NodeID, Message: err.Error(), Err: err}
	}

	label := domain.LabelFalse
	if ok {
		label = domain.LabelTrue
	}

	return &Result{
		OutputLabel: label,
		Data: map[string]any{
			"lhs":      lhs,
			"operator": string(cfg.Operator),
			"rhs":      rhs,
			"result":   ok,
		},
		Warnings: append(lw, rw...),
	}, nil
}

// Compare сравнивает разрешённые операнды.
//
// Если оба операнда разбираются как конечные числа, сравнение числовое.
// Иначе == и != сравнивают строки, а операторы порядка возвращают ErrTypeMismatch.
func Compare(lhs string, op domain.Operator, rhs string) (bool, error) {
	ln, lok := parseNumber(lhs)
	rn, rok := parseNumber(rhs)

	if lok && rok {
		switch op {
		case domain.OpEqual:
			return ln == rn, nil
		case domain.OpNotEqual:
			return ln != rn, nil
		case domain.OpGreater:
			return ln > rn, nil
		case domain.OpLess:
			return ln < rn, nil
		case domain.OpGreaterEqual:
			return ln >= rn, nil
		case domain.OpLessEqual:
			return ln <= rn, nil
		}
		return false, fmt.Errorf("unknown operator %q", op)
	}

	switch op {
	case domain.OpEqual:
		return lhs == rhs, nil
	case domain.OpNotEqual:
		return lhs != rhs, nil
	}
	if op.IsOrdering() {
		return false, fmt.Errorf("%w: cannot apply %s to %q and %q: both operands must be numeric",
			ErrTypeMismatch, op, lhs, rhs)
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

// parseNumber разбирает десятичное число; NaN и бесконечности числами не считаются.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
