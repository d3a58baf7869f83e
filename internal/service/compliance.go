package service

import "github.com/opencampus/registrar-api/internal/models"

// Compliance tier thresholds, evaluated on the attendance percentage.
const (
	tierAutoFailBelow   = 25.0
	tierIneligibleBelow = 50.0
	tierAtRiskBelow     = 75.0
)

// ComplianceResult pairs the computed percentage with its tier.
type ComplianceResult struct {
	Percentage float64               `json:"percentage"`
	Tier       models.ComplianceTier `json:"tier"`
}

// Classify derives the compliance tier from attendance aggregates. A term
// with no sessions held never penalizes a student: the result is
// (0, COMPLIANT) regardless of the present count.
func Classify(presentCount, totalSessions int) ComplianceResult {
	if totalSessions == 0 {
		return ComplianceResult{Percentage: 0, Tier: models.TierCompliant}
	}
	percentage := 100 * float64(presentCount) / float64(totalSessions)
	switch {
	case percentage < tierAutoFailBelow:
		return ComplianceResult{Percentage: percentage, Tier: models.TierAutoFail}
	case percentage < tierIneligibleBelow:
		return ComplianceResult{Percentage: percentage, Tier: models.TierExamIneligible}
	case percentage < tierAtRiskBelow:
		return ComplianceResult{Percentage: percentage, Tier: models.TierAtRisk}
	default:
		return ComplianceResult{Percentage: percentage, Tier: models.TierCompliant}
	}
}
