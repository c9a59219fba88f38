package engine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-legal/covenant/internal/domain"
)

// ExpressionEngine compiles and evaluates CEL expressions for EXPRESSION
// rules. Expressions see the resolved evidence and must return bool: true
// means the clause is compliant.
type ExpressionEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledExpression
}

// CompiledExpression holds a pre-compiled CEL program for one rule.
type CompiledExpression struct {
	Rule    *domain.Rule
	Program cel.Program
}

// NewExpressionEngine creates an engine with the evidence variables bound.
func NewExpressionEngine() (*ExpressionEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("present", cel.BoolType),
		cel.Variable("category", cel.StringType),
		cel.Variable("excerpt", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ExpressionEngine{
		env:      env,
		compiled: make(map[string]*CompiledExpression),
	}, nil
}

// ValidateRule compiles a rule's expression without loading it.
func (e *ExpressionEngine) ValidateRule(rule *domain.Rule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(rule)
	return err
}

// LoadRule compiles and loads one EXPRESSION rule.
func (e *ExpressionEngine) LoadRule(rule *domain.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(rule)
	if err != nil {
		return err
	}

	e.compiled[rule.ID] = compiled
	return nil
}

// LoadRules loads all enabled EXPRESSION rules from a rule set. Rules of
// other types are ignored.
func (e *ExpressionEngine) LoadRules(rules []*domain.Rule) error {
	for _, rule := range rules {
		if rule.Type != domain.RuleExpression || !rule.Enabled {
			continue
		}
		if err := e.LoadRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules clears all compiled expressions and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *ExpressionEngine) ReloadRules(rules []*domain.Rule) error {
	newCompiled := make(map[string]*CompiledExpression)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if rule.Type != domain.RuleExpression || !rule.Enabled {
			continue
		}
		compiled, err := e.compile(rule)
		if err != nil {
			return err
		}
		newCompiled[rule.ID] = compiled
	}

	e.compiled = newCompiled
	return nil
}

// Count returns the number of loaded expressions.
func (e *ExpressionEngine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Evaluate runs the compiled expression for a rule against its evidence.
// Returns whether the clause is compliant.
func (e *ExpressionEngine) Evaluate(ruleID string, ev *domain.EvidenceItem) (bool, error) {
	e.mu.RLock()
	compiled, ok := e.compiled[ruleID]
	e.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("no compiled expression for rule %s", ruleID)
	}

	activation := map[string]any{
		"value":      nil,
		"confidence": 0.0,
		"present":    false,
		"category":   "",
		"excerpt":    "",
	}
	if ev != nil {
		activation["value"] = ev.Value
		activation["confidence"] = ev.Confidence
		activation["present"] = true
		activation["category"] = ev.ClauseCategory
		activation["excerpt"] = ev.Excerpt
	}

	out, _, err := compiled.Program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed for rule %s: %w", ruleID, err)
	}

	result, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression for rule %s did not return bool", ruleID)
	}

	return bool(result), nil
}

// Close cleans up the engine.
func (e *ExpressionEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledExpression)
	return nil
}

func (e *ExpressionEngine) compile(rule *domain.Rule) (*CompiledExpression, error) {
	if rule.Expression == "" {
		return nil, fmt.Errorf("rule %s: expression is required", rule.ID)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledExpression{Rule: rule, Program: program}, nil
}
