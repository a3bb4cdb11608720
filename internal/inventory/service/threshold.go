package service

import (
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
)

// Alert severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is the result of a threshold rule firing.
type Alert struct {
	RuleID    string `json:"rule_id"`
	Metric    string `json:"metric"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
	Severity  string `json:"severity"`
}

// EvaluateThreshold is a pure function: identical (quantity, rule) inputs
// always yield identical output, which is what makes it unit-testable in
// isolation from the ledger. Returns the alert and whether the rule fired.
func EvaluateThreshold(quantity int, rule *repository.ThresholdRule) (*Alert, bool) {
	if !compare(quantity, rule.Operator, rule.Value) {
		return nil, false
	}

	return &Alert{
		RuleID:    rule.ID,
		Metric:    rule.Metric,
		Quantity:  quantity,
		Threshold: rule.Value,
		Severity:  severityFor(quantity, rule),
	}, true
}

func compare(quantity int, operator string, value int) bool {
	switch operator {
	case "<":
		return quantity < value
	case "<=":
		return quantity <= value
	case ">":
		return quantity > value
	case ">=":
		return quantity >= value
	case "=":
		return quantity == value
	case "!=":
		return quantity != value
	default:
		return false
	}
}

// severityFor escalates to critical when the quantity breaches the rule's
// secondary threshold in the direction the operator watches. Equality
// operators never escalate.
func severityFor(quantity int, rule *repository.ThresholdRule) string {
	severity := rule.Severity
	if severity == "" {
		severity = SeverityWarning
	}

	if rule.CriticalValue == nil {
		return severity
	}

	switch rule.Operator {
	case "<", "<=":
		if quantity <= *rule.CriticalValue {
			return SeverityCritical
		}
	case ">", ">=":
		if quantity >= *rule.CriticalValue {
			return SeverityCritical
		}
	}

	return severity
}
