package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opencampus/registrar-api/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		present int
		total   int
		want    models.ComplianceTier
	}{
		{"no sessions held", 0, 0, models.TierCompliant},
		{"zero attendance", 0, 10, models.TierAutoFail},
		{"just below auto fail", 24, 100, models.TierAutoFail},
		{"exactly 25 percent", 25, 100, models.TierExamIneligible},
		{"just below ineligible", 49, 100, models.TierExamIneligible},
		{"exactly 50 percent", 50, 100, models.TierAtRisk},
		{"just below at risk", 74, 100, models.TierAtRisk},
		{"exactly 75 percent", 75, 100, models.TierCompliant},
		{"full attendance", 10, 10, models.TierCompliant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Classify(tt.present, tt.total)
			assert.Equal(t, tt.want, result.Tier)
		})
	}
}

func TestClassifyPercentage(t *testing.T) {
	result := Classify(3, 4)
	assert.InDelta(t, 75.0, result.Percentage, 0.001)
	assert.Equal(t, models.TierCompliant, result.Tier)

	result = Classify(0, 0)
	assert.Zero(t, result.Percentage)
}
