package service_test

import (
	"testing"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func lowStockRule() *repository.ThresholdRule {
	return &repository.ThresholdRule{
		ID:            "r1",
		Scope:         repository.RuleScopeProduct,
		Metric:        repository.MetricOnHand,
		Operator:      "<=",
		Value:         5,
		CriticalValue: intPtr(2),
		Severity:      service.SeverityWarning,
	}
}

func TestEvaluateThreshold_Operators(t *testing.T) {
	cases := []struct {
		operator string
		value    int
		quantity int
		fires    bool
	}{
		{"<", 5, 4, true},
		{"<", 5, 5, false},
		{"<=", 5, 5, true},
		{"<=", 5, 6, false},
		{">", 100, 101, true},
		{">", 100, 100, false},
		{">=", 100, 100, true},
		{">=", 100, 99, false},
		{"=", 0, 0, true},
		{"=", 0, 1, false},
		{"!=", 0, 1, true},
		{"!=", 0, 0, false},
		{"<>", 0, 1, false}, // unknown operator never fires
	}

	for _, tc := range cases {
		rule := &repository.ThresholdRule{ID: "r", Operator: tc.operator, Value: tc.value}
		_, fired := service.EvaluateThreshold(tc.quantity, rule)
		assert.Equal(t, tc.fires, fired, "operator %s value %d quantity %d", tc.operator, tc.value, tc.quantity)
	}
}

func TestEvaluateThreshold_SeverityEscalation(t *testing.T) {
	rule := lowStockRule()

	alert, fired := service.EvaluateThreshold(4, rule)
	require.True(t, fired)
	assert.Equal(t, service.SeverityWarning, alert.Severity)

	alert, fired = service.EvaluateThreshold(2, rule)
	require.True(t, fired)
	assert.Equal(t, service.SeverityCritical, alert.Severity)

	alert, fired = service.EvaluateThreshold(0, rule)
	require.True(t, fired)
	assert.Equal(t, service.SeverityCritical, alert.Severity)
}

func TestEvaluateThreshold_UpperBoundEscalation(t *testing.T) {
	rule := &repository.ThresholdRule{
		ID:            "overstock",
		Metric:        repository.MetricOnHand,
		Operator:      ">=",
		Value:         100,
		CriticalValue: intPtr(500),
		Severity:      service.SeverityWarning,
	}

	alert, fired := service.EvaluateThreshold(100, rule)
	require.True(t, fired)
	assert.Equal(t, service.SeverityWarning, alert.Severity)

	alert, fired = service.EvaluateThreshold(500, rule)
	require.True(t, fired)
	assert.Equal(t, service.SeverityCritical, alert.Severity)
}

func TestEvaluateThreshold_IsDeterministic(t *testing.T) {
	rule := lowStockRule()

	first, firedFirst := service.EvaluateThreshold(3, rule)
	second, firedSecond := service.EvaluateThreshold(3, rule)

	require.True(t, firedFirst)
	require.True(t, firedSecond)
	assert.Equal(t, first, second)
}

func TestEvaluateThreshold_DefaultsSeverityToWarning(t *testing.T) {
	rule := &repository.ThresholdRule{ID: "r", Operator: "<", Value: 10}

	alert, fired := service.EvaluateThreshold(1, rule)
	require.True(t, fired)
	assert.Equal(t, service.SeverityWarning, alert.Severity)
}

func TestEvaluateThreshold_AlertCarriesRuleContext(t *testing.T) {
	rule := lowStockRule()
	rule.Metric = repository.MetricAvailable

	alert, fired := service.EvaluateThreshold(5, rule)
	require.True(t, fired)
	assert.Equal(t, "r1", alert.RuleID)
	assert.Equal(t, repository.MetricAvailable, alert.Metric)
	assert.Equal(t, 5, alert.Quantity)
	assert.Equal(t, 5, alert.Threshold)
}
