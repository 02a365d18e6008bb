package alert

import (
	"fmt"
	"math"
	"strings"

	"github.com/wegroup/pulse/pkg/types"
)

// epsilon is the tolerance for float equality in EQUALS / NOT_EQUALS.
const epsilon = 0.001

// Compare applies a rule operator to a metric value and threshold.
func Compare(value, threshold float64, op types.Operator) (bool, error) {
	switch op {
	case types.OpGreaterThan:
		return value > threshold, nil
	case types.OpLessThan:
		return value < threshold, nil
	case types.OpEquals:
		return math.Abs(value-threshold) < epsilon, nil
	case types.OpNotEquals:
		return math.Abs(value-threshold) >= epsilon, nil
	case types.OpGreaterThanOrEqual:
		return value >= threshold, nil
	case types.OpLessThanOrEqual:
		return value <= threshold, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}

// Applicable reports whether rule should be evaluated for a metric from
// tenantID. A rule applies when it is tenant-global or belongs to the same
// tenant, and its query contains the metric's name or component as a
// case-insensitive substring. This is deliberately a loose textual match,
// not a query language.
func Applicable(rule *types.AlertRule, m *types.Metric, tenantID string) bool {
	if rule.TenantID != "" && rule.TenantID != tenantID {
		return false
	}
	query := strings.ToLower(rule.MetricQuery)
	if m.Name != "" && strings.Contains(query, strings.ToLower(m.Name)) {
		return true
	}
	if m.Component != "" && strings.Contains(query, strings.ToLower(m.Component)) {
		return true
	}
	return false
}
