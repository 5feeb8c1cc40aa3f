package filesec

// RiskLevel buckets a scan into quarantine-relevant classes.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskConfig tunes the behaviour-score thresholds.
type RiskConfig struct {
	HighRiskScore   int
	MediumRiskScore int
}

// DefaultRiskConfig returns the standard scoring thresholds.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{HighRiskScore: 50, MediumRiskScore: 25}
}

// RiskAssessment combines scan output into a numeric behaviour score.
type RiskAssessment struct {
	BehaviorScore int       `json:"behaviorScore"`
	Level         RiskLevel `json:"level"`
	IsSafe        bool      `json:"isSafe"`
}

// AssessRisk scores a scan result. High risk means the behaviour score
// crossed the high threshold or any threat was found; IsSafe is false
// exactly when the file is high risk.
func AssessRisk(result ScanResult, cfg RiskConfig) RiskAssessment {
	if cfg.HighRiskScore <= 0 {
		cfg.HighRiskScore = DefaultRiskConfig().HighRiskScore
	}
	if cfg.MediumRiskScore <= 0 {
		cfg.MediumRiskScore = DefaultRiskConfig().MediumRiskScore
	}

	score := 0
	switch {
	case result.ContentAnalysis.Entropy > 7.8:
		score += 30
	case result.ContentAnalysis.Entropy > 7.5:
		score += 15
	}
	score += 10 * result.ContentAnalysis.SuspiciousPatternCount
	if result.ContentAnalysis.EmbeddedFilesDetected {
		score += 25
	}
	score += 20 * (len(result.Threats) + len(result.Warnings))

	level := RiskLow
	switch {
	case score >= cfg.HighRiskScore || len(result.Threats) > 0:
		level = RiskHigh
	case score >= cfg.MediumRiskScore || len(result.Warnings) > 2:
		level = RiskMedium
	}

	return RiskAssessment{
		BehaviorScore: score,
		Level:         level,
		IsSafe:        level != RiskHigh,
	}
}
