package domain

// RuleType determines how a rule's expectation is checked against evidence.
type RuleType string

const (
	// RuleRequired flags a clause that must be present with sufficient confidence.
	RuleRequired RuleType = "REQUIRED"

	// RuleForbidden flags a clause that must not be present.
	RuleForbidden RuleType = "FORBIDDEN"

	// RuleMinValue requires the extracted value to be >= the expected value.
	RuleMinValue RuleType = "MIN_VALUE"

	// RuleMaxValue requires the extracted value to be <= the expected value.
	RuleMaxValue RuleType = "MAX_VALUE"

	// RuleAllowedValues requires the extracted value to match one of the
	// expected strings (case-insensitive).
	RuleAllowedValues RuleType = "ALLOWED_VALUES"

	// RuleExpression evaluates a CEL expression over the resolved evidence.
	// The expression must return bool: true means compliant.
	RuleExpression RuleType = "EXPRESSION"
)

// Severity classifies how serious a violation of a rule is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities from most to least severe. Unknown or empty
// severities rank last.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// MoreSevere reports whether a outranks b. An empty severity never outranks.
func MoreSevere(a, b Severity) bool {
	ra, ok := severityRank[a]
	if !ok {
		return false
	}
	rb, ok := severityRank[b]
	if !ok {
		return true
	}
	return ra < rb
}

// RiskCategory groups rules into the fixed risk taxonomy.
type RiskCategory string

const (
	RiskLegal       RiskCategory = "LEGAL"
	RiskFinancial   RiskCategory = "FINANCIAL"
	RiskOperational RiskCategory = "OPERATIONAL"
	RiskData        RiskCategory = "DATA"
	RiskSecurity    RiskCategory = "SECURITY"
)

// RiskCategories lists all categories in their canonical order. Cluster
// output preserves this order.
var RiskCategories = []RiskCategory{
	RiskLegal,
	RiskFinancial,
	RiskOperational,
	RiskData,
	RiskSecurity,
}

// Rule is one policy check. Rules are immutable during an evaluation and
// owned by a policy.
type Rule struct {
	ID             string   `json:"id"`
	WorkspaceID    string   `json:"workspaceId"`
	PolicyID       string   `json:"policyId"`
	ClauseCategory string   `json:"clauseCategory"`
	Type           RuleType `json:"type"`

	// ExpectedValue is the comparison target for MIN_VALUE, MAX_VALUE and
	// ALLOWED_VALUES rules. Loosely typed; coerced at evaluation time.
	ExpectedValue any `json:"expectedValue,omitempty"`

	// Expression is the CEL source for EXPRESSION rules.
	Expression string `json:"expression,omitempty"`

	// Weight is the score deduction on violation. Always positive.
	Weight int `json:"weight"`

	Severity       Severity     `json:"severity,omitempty"`
	RiskCategory   RiskCategory `json:"riskCategory,omitempty"`
	Recommendation string       `json:"recommendation,omitempty"`

	Enabled bool `json:"enabled"`
}

// Key returns the canonical join key for a rule: the rule id, falling back
// to the clause category when a rule was deleted and re-added between
// versions. Scorer, aggregator and differ all key on this.
func (r *Rule) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.ClauseCategory
}
