package settlement

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

// expressionEvaluator compiles and caches CEL trigger expressions evaluated
// over the variables event and contract.
type expressionEvaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newExpressionEvaluator() (*expressionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.DynType),
		cel.Variable("contract", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &expressionEvaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

// Check compiles expr and requires a boolean result type.
func (e *expressionEvaluator) Check(expr string) error {
	_, err := e.program(expr)
	if err != nil {
		return domain.Validation("trigger_conditions.expression", "%v", err)
	}
	return nil
}

func (e *expressionEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.programs[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.programs[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", out)
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.programs[expr] = prg
	return prg, nil
}

// Eval reports whether expr holds for the contract and event.
func (e *expressionEvaluator) Eval(expr string, c *domain.SettlementContract, ev domain.TriggerEvent) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"event":    eventVars(ev),
		"contract": contractVars(c),
	})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression result is %T, not bool", out.Value())
	}
	return val, nil
}

func eventVars(ev domain.TriggerEvent) map[string]any {
	attrs := ev.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	vars := map[string]any{
		"deal_id":     ev.DealID,
		"type":        string(ev.Type),
		"amount":      ev.Amount.InexactFloat64(),
		"currency":    ev.Currency,
		"milestone":   ev.Milestone,
		"verified":    ev.Verified,
		"reference":   ev.Reference,
		"approved_by": ev.ApprovedBy,
		"attributes":  attrs,
	}
	if ev.PreviousUsage != nil {
		vars["previous_usage"] = ev.PreviousUsage.InexactFloat64()
	}
	if ev.CurrentUsage != nil {
		vars["current_usage"] = ev.CurrentUsage.InexactFloat64()
	}
	return vars
}

func contractVars(c *domain.SettlementContract) map[string]any {
	return map[string]any{
		"id":                 c.ID,
		"deal_id":            c.DealID,
		"name":               c.Name,
		"trigger_type":       string(c.TriggerType),
		"currency":           c.Currency,
		"total_distributed":  c.TotalDistributed.InexactFloat64(),
		"distribution_logic": string(c.DistributionLogic),
	}
}
