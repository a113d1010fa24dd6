package badge

import (
	"context"
	"fmt"
)

// Select returns the candidates of condition that value qualifies for and
// that are not in held. Order of candidates is kept.
func Select(candidates []Badge, held map[string]struct{}, condition ConditionType, value int) []Badge {
	var out []Badge
	for _, b := range candidates {
		if b.Condition != condition || !b.Qualifies(value) {
			continue
		}
		if _, ok := held[b.ID]; ok {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Evaluator finds badges a user newly qualifies for.
type Evaluator struct {
	repo Repository
}

// NewEvaluator creates an Evaluator over repo.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo}
}

// Evaluate returns catalog badges of condition whose threshold is met by
// value and which userID does not hold yet. The result is advisory: the
// award itself must still go through Repository.Award.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, condition ConditionType, value int) ([]Badge, error) {
	candidates, err := e.repo.Qualifying(ctx, condition, value)
	if err != nil {
		return nil, fmt.Errorf("badge evaluate %s: %w", condition, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	held, err := e.repo.HeldBadgeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("badge evaluate %s: %w", condition, err)
	}
	return Select(candidates, held, condition, value), nil
}
