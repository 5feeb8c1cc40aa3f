package filesec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssessRiskClean(t *testing.T) {
	risk := AssessRisk(ScanResult{IsSafe: true}, RiskConfig{})
	require.Equal(t, RiskLow, risk.Level)
	require.True(t, risk.IsSafe)
	require.Equal(t, 0, risk.BehaviorScore)
}

func TestAssessRiskAnyThreatIsHigh(t *testing.T) {
	risk := AssessRisk(ScanResult{Threats: []string{"script injection: script tag"}}, RiskConfig{})
	require.Equal(t, RiskHigh, risk.Level)
	require.False(t, risk.IsSafe)
	require.Equal(t, 20, risk.BehaviorScore)
}

func TestAssessRiskScoreComposition(t *testing.T) {
	result := ScanResult{
		Warnings: []string{"w1"},
		ContentAnalysis: ContentAnalysis{
			Entropy:                7.9,
			SuspiciousPatternCount: 2,
			EmbeddedFilesDetected:  true,
		},
	}
	risk := AssessRisk(result, RiskConfig{})
	// 30 entropy + 20 patterns + 25 embedded + 20 warning
	require.Equal(t, 95, risk.BehaviorScore)
	require.Equal(t, RiskHigh, risk.Level)
}

func TestAssessRiskMediumByWarnings(t *testing.T) {
	result := ScanResult{Warnings: []string{"w1", "w2", "w3"}}
	risk := AssessRisk(result, RiskConfig{HighRiskScore: 100, MediumRiskScore: 90})
	require.Equal(t, RiskMedium, risk.Level)
	require.True(t, risk.IsSafe)
}

func TestAssessRiskMediumByScore(t *testing.T) {
	result := ScanResult{ContentAnalysis: ContentAnalysis{Entropy: 7.6, SuspiciousPatternCount: 1}}
	risk := AssessRisk(result, RiskConfig{})
	// 15 entropy + 10 pattern
	require.Equal(t, 25, risk.BehaviorScore)
	require.Equal(t, RiskMedium, risk.Level)
}
