package policy

import "skycover/internal/models"

// Triggered evaluates a trigger condition. Pure and deterministic; unknown
// operators never trigger.
func Triggered(operator string, value, threshold int64) bool {
	switch operator {
	case models.OperatorGreaterThan:
		return value > threshold
	case models.OperatorLessThan:
		return value < threshold
	case models.OperatorEqualTo:
		return value == threshold
	}
	return false
}
